// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEscapedCSVLineUnescapesCommas(t *testing.T) {
	fields := splitEscapedCSVLine(`F,Error,20,5,field ID\, renamed,OzoneSonde`)
	require.Equal(t, []string{"F", "Error", "20", "5", "field ID, renamed", "OzoneSonde"}, fields)
}

func TestParseOperatorReportNameExtractsDateAndRun(t *testing.T) {
	date, run := parseOperatorReportName("operator-report-2026-07-31-run3.csv")
	require.Equal(t, "2026-07-31", date)
	require.Equal(t, 3, run)
}

func TestParseOperatorReportNameRejectsUnmatchedName(t *testing.T) {
	date, run := parseOperatorReportName("not-a-report.csv")
	require.Equal(t, "not-a-report.csv", date)
	require.Equal(t, 0, run)
}

func operatorRowCSV(status, errType, code, line, message, dataset, level, form, agency, stationType, stationID, filename string) string {
	return status + "," + errType + "," + code + "," + line + "," + message + "," +
		dataset + "," + level + "," + form + "," + agency + "," + stationType + "," + stationID + "," + filename
}

func TestComputeRunStatisticsTracksPassFixFail(t *testing.T) {
	wd := newMemWorkDir()

	header := "Processing Status,Error Type,Error Code,Line Number,Message,Dataset,Data Level,Data Form,Agency,Station Type,Station ID,Filename,Incoming Path,Outgoing Path,URN"
	run1 := header + "\n" +
		operatorRowCSV("F", "Error", "30", "5", "bad time", "OzoneSonde", "1", "1", "NOAA", "STN", "001", "a.csv") + ",,,\n"
	run2 := header + "\n" +
		operatorRowCSV("P", "", "", "", "", "OzoneSonde", "1", "1", "NOAA", "STN", "001", "a.csv") + ",,,\n"

	wd.files["operator-report-2026-07-31-run1.csv"] = &strings.Builder{}
	wd.files["operator-report-2026-07-31-run1.csv"].WriteString(run1)
	wd.files["operator-report-2026-07-31-run2.csv"] = &strings.Builder{}
	wd.files["operator-report-2026-07-31-run2.csv"].WriteString(run2)

	b := &Builder{workDir: wd}
	stats, err := b.computeRunStatistics()
	require.NoError(t, err)

	require.True(t, stats.passed["NOAA"].has("a.csv"))
	require.Contains(t, stats.fixed["NOAA"]["a.csv"], "bad time")
	require.Empty(t, stats.failed["NOAA"])
}

func TestComputeRunStatisticsExcludesDuplicateVersionError(t *testing.T) {
	wd := newMemWorkDir()
	header := "Processing Status,Error Type,Error Code,Line Number,Message,Dataset,Data Level,Data Form,Agency,Station Type,Station ID,Filename,Incoming Path,Outgoing Path,URN"
	run1 := header + "\n" +
		operatorRowCSV("F", "Error", "209", "", "duplicate record", "OzoneSonde", "1", "1", "NOAA", "STN", "001", "a.csv") + ",,,\n"
	wd.files["operator-report-2026-07-31-run1.csv"] = &strings.Builder{}
	wd.files["operator-report-2026-07-31-run1.csv"].WriteString(run1)

	b := &Builder{workDir: wd}
	stats, err := b.computeRunStatistics()
	require.NoError(t, err)
	require.Empty(t, stats.failed["NOAA"])
}
