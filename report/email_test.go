// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountNounSingularAndPlural(t *testing.T) {
	require.Equal(t, "1 file", countNoun(1))
	require.Equal(t, "0 files", countNoun(0))
	require.Equal(t, "3 files", countNoun(3))
}

func TestGroupByErrorSetGroupsIdenticalFailureSets(t *testing.T) {
	input := map[string]stringSet{
		"a.csv": newStringSet("bad time"),
		"b.csv": newStringSet("bad time"),
		"c.csv": newStringSet("bad offset"),
	}

	groups := groupByErrorSet(input)
	require.Len(t, groups, 2)

	var sharedGroup, soloGroup *errorGroup
	for i := range groups {
		if len(groups[i].files) == 2 {
			sharedGroup = &groups[i]
		} else {
			soloGroup = &groups[i]
		}
	}
	require.NotNil(t, sharedGroup)
	require.ElementsMatch(t, []string{"a.csv", "b.csv"}, sharedGroup.files)
	require.Equal(t, []string{"bad time"}, sharedGroup.messages)

	require.NotNil(t, soloGroup)
	require.Equal(t, []string{"c.csv"}, soloGroup.files)
}

func TestWriteEmailReportSkippedForNilWorkDir(t *testing.T) {
	b := &Builder{workDir: nil}
	require.NoError(t, b.writeEmailReport())
}

func TestWriteEmailReportIncludesPerAgencyCounts(t *testing.T) {
	wd := newMemWorkDir()
	b, err := NewBuilder(Options{WorkDir: wd, Errors: testErrorCatalog(t), Now: fixedNow})
	require.NoError(t, err)

	err = b.RecordFailingFile("/incoming/bad.csv", "NOAA", nil)
	require.NoError(t, err)
	require.NoError(t, b.writeEmailReport())

	contents, err := wd.Read("failed-files-2026-07-31")
	require.NoError(t, err)
	require.Contains(t, string(contents), "NOAA")
	require.Contains(t, string(contents), "passed")
}
