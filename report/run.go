// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"io"
	"sort"
	"strconv"
	"strings"
)

// writeRunReport (re)writes the run report text file (§6): files grouped
// by contributor acronym, contributors alphabetical except UNKNOWN last.
// Acronyms reported under two spellings are folded under the first-seen
// display form (§4.3) before grouping.
func (b *Builder) writeRunReport() error {
	if b.workDir == nil {
		return nil
	}
	b.foldUnknownContributors()

	names := make([]string, 0, len(b.statusByName))
	for n := range b.statusByName {
		names = append(names, n)
	}
	sort.Strings(names)
	names = moveToEnd(names, "UNKNOWN")

	var sb strings.Builder
	var blocks []string
	for _, name := range names {
		var block strings.Builder
		block.WriteString(name)
		block.WriteString("\n")
		for _, fs := range b.statusByName[name] {
			if fs.pass {
				block.WriteString("Pass: " + fs.filepath + "\n")
			} else {
				block.WriteString("Fail: " + fs.filepath + "\n")
			}
		}
		blocks = append(blocks, block.String())
	}
	sb.WriteString(strings.Join(blocks, "\n"))

	w, err := b.workDir.Create(runReportName(b.runNumber))
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = io.WriteString(w, sb.String())
	return err
}

func runReportName(run int) string {
	return "run" + strconv.Itoa(run)
}

// foldUnknownContributors re-keys any contributor bucket whose acronym was
// never confirmed via mergeContributor (i.e. it only ever appeared on
// failing files parsed well enough to read an agency, but never matched a
// known display spelling) under "UNKNOWN", per the original's run-report
// grouping behaviour.
func (b *Builder) foldUnknownContributors() {
	for name, entries := range b.statusByName {
		key := normalizeAcronym(name)
		display, known := b.contributors[key]
		if known && display != name {
			b.statusByName[display] = append(b.statusByName[display], entries...)
			delete(b.statusByName, name)
			continue
		}
		if !known && name != "" {
			b.statusByName["UNKNOWN"] = append(b.statusByName["UNKNOWN"], entries...)
			delete(b.statusByName, name)
		}
	}
}

func moveToEnd(names []string, target string) []string {
	out := make([]string, 0, len(names))
	found := false
	for _, n := range names {
		if n == target {
			found = true
			continue
		}
		out = append(out, n)
	}
	if found {
		out = append(out, target)
	}
	return out
}
