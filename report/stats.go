// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"sort"
	"strconv"
	"strings"
)

// stringSet is a small local set-of-strings helper; cross-run statistics
// deal in sets of filenames and sets of distinct error messages.
type stringSet map[string]bool

func newStringSet(items ...string) stringSet {
	s := make(stringSet, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

func (s stringSet) add(v string)      { s[v] = true }
func (s stringSet) has(v string) bool { return s[v] }

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// runStats is the result of scanning every operator report in a working
// directory chronologically (§4.3): which files passed the first time,
// which were later fixed, and which are still failing, per contributor.
type runStats struct {
	passed map[string]stringSet            // agency -> filenames
	fixed  map[string]map[string]stringSet // agency -> filename -> error messages, fixed since
	failed map[string]map[string]stringSet // agency -> filename -> error messages, still failing
}

func newRunStats() *runStats {
	return &runStats{
		passed: map[string]stringSet{},
		fixed:  map[string]map[string]stringSet{},
		failed: map[string]map[string]stringSet{},
	}
}

// errorDuplicateVersion is excluded from cross-run accounting: re-running
// an already-ingested file is benign (§4.3).
const errorDuplicateVersion = 209

// computeRunStatistics scans every operator report in the working
// directory, oldest first, tracking per (agency, filename) the set of
// error messages seen; a file counted as failing in one report and
// passing in a later one moves its intervening error set from "still
// failing" to "manually fixed" (§4.3). It performs no writes.
func (b *Builder) computeRunStatistics() (*runStats, error) {
	stats := newRunStats()
	if b.workDir == nil {
		return stats, nil
	}
	reportNames, err := b.findOperatorReports()
	if err != nil {
		return nil, err
	}
	sort.Slice(reportNames, func(i, j int) bool {
		di, ri := parseOperatorReportName(reportNames[i])
		dj, rj := parseOperatorReportName(reportNames[j])
		if di != dj {
			return di < dj
		}
		return ri < rj
	})

	for _, name := range reportNames {
		contents, err := b.workDir.Read(name)
		if err != nil {
			return nil, err
		}
		localFilesToErrors := map[string]map[string]stringSet{}
		rows := splitOperatorReportRows(string(contents))
		for _, row := range rows {
			if len(row) < 12 {
				continue
			}
			agency := row[8]
			if agency == "" {
				agency = "UNKNOWN"
			}
			filename := row[11]
			status := row[0]
			errType := row[1]
			errCode, _ := strconv.Atoi(row[2])
			msg := row[4]

			if localFilesToErrors[agency] == nil {
				localFilesToErrors[agency] = map[string]stringSet{}
			}
			if localFilesToErrors[agency][filename] == nil {
				localFilesToErrors[agency][filename] = stringSet{}
			}

			switch {
			case status == "P":
				if stats.passed[agency] == nil {
					stats.passed[agency] = stringSet{}
				}
				stats.passed[agency].add(filename)
			case errType == "Error" && errCode != errorDuplicateVersion:
				if !stats.passed[agency].has(filename) {
					localFilesToErrors[agency][filename].add(msg)
				}
			}
		}

		// Check for errors fixed by the current report.
		for agency, byFile := range stats.failed {
			if stats.passed[agency] == nil {
				stats.passed[agency] = stringSet{}
			}
			if stats.fixed[agency] == nil {
				stats.fixed[agency] = map[string]stringSet{}
			}
			if localFilesToErrors[agency] == nil {
				localFilesToErrors[agency] = map[string]stringSet{}
			}
			for filename, errs := range byFile {
				if stats.passed[agency].has(filename) {
					if stats.fixed[agency][filename] == nil {
						stats.fixed[agency][filename] = stringSet{}
					}
					for e := range errs {
						stats.fixed[agency][filename].add(e)
					}
					delete(byFile, filename)
				}
			}
		}

		// Fold in newly observed errors from this report.
		for agency, byFile := range localFilesToErrors {
			if stats.failed[agency] == nil {
				stats.failed[agency] = map[string]stringSet{}
			}
			for filename, errs := range byFile {
				for e := range errs {
					if stats.failed[agency][filename] == nil {
						stats.failed[agency][filename] = stringSet{}
					}
					stats.failed[agency][filename].add(e)
				}
			}
		}
	}
	return stats, nil
}

func parseOperatorReportName(name string) (date string, run int) {
	m := operatorReportPattern.FindStringSubmatch(name)
	if m == nil {
		return name, 0
	}
	run, _ = strconv.Atoi(m[1])
	// the date substring sits between the fixed prefix/suffix; slice it
	// out directly rather than re-deriving via another regex group.
	const prefix = "operator-report-"
	rest := strings.TrimPrefix(name, prefix)
	date = rest[:len("2006-01-02")]
	return date, run
}

// splitOperatorReportRows parses an operator report's CSV body (skipping
// its header line), honouring the backslash-escaped commas written by
// writeOperatorReport.
func splitOperatorReportRows(contents string) [][]string {
	lines := strings.Split(contents, "\n")
	var rows [][]string
	for i, line := range lines {
		if i == 0 || line == "" {
			continue // header, or trailing blank line
		}
		rows = append(rows, splitEscapedCSVLine(line))
	}
	return rows
}

func splitEscapedCSVLine(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}
