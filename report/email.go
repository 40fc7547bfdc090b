// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
	"github.com/mitchellh/go-wordwrap"
)

const emailWrapWidth = 78

// countNoun renders "N file"/"N files", singularizing/pluralizing with
// the same inflector the original's digest templates leaned on.
func countNoun(n int) string {
	word := inflect.Pluralize("file")
	if n == 1 {
		word = inflect.Singularize(word)
	}
	return fmt.Sprintf("%d %s", n, word)
}

// errorGroup is one line of the email digest's "Summary of Failures"
// block: a set of files that all share the exact same set of error
// messages, reported once instead of once per file (§9, grounded on the
// original's _group_dict_keys).
type errorGroup struct {
	files    []string
	messages []string
}

// groupByErrorSet inverts fileToMessages (filename -> set of error
// messages) into groups of files that share an identical message set,
// so that a failure common to twenty files is reported once rather than
// twenty times.
func groupByErrorSet(fileToMessages map[string]stringSet) []errorGroup {
	messageToFiles := map[string]stringSet{}
	for file, msgs := range fileToMessages {
		for msg := range msgs {
			if messageToFiles[msg] == nil {
				messageToFiles[msg] = stringSet{}
			}
			messageToFiles[msg].add(file)
		}
	}

	collected := map[string]*errorGroup{}
	var order []string
	for msg, files := range messageToFiles {
		key := strings.Join(files.sorted(), "\x00")
		g, ok := collected[key]
		if !ok {
			g = &errorGroup{files: files.sorted()}
			collected[key] = g
			order = append(order, key)
		}
		g.messages = append(g.messages, msg)
	}
	sort.Strings(order)

	groups := make([]errorGroup, 0, len(order))
	for _, key := range order {
		g := collected[key]
		sort.Strings(g.messages)
		groups = append(groups, *g)
	}
	return groups
}

// writeEmailReport composes the operator-facing digest (§6): passed/fixed
// counts per contributor, then a grouped summary of files still failing
// and the errors they share. It overwrites any existing digest for the
// day.
func (b *Builder) writeEmailReport() error {
	if b.workDir == nil {
		return nil
	}
	stats, err := b.computeRunStatistics()
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Processing summary for run %d\n\n", b.runNumber)

	agencies := make([]string, 0, len(stats.passed))
	seen := stringSet{}
	for a := range stats.passed {
		if !seen.has(a) {
			agencies = append(agencies, a)
			seen.add(a)
		}
	}
	for a := range stats.failed {
		if !seen.has(a) {
			agencies = append(agencies, a)
			seen.add(a)
		}
	}
	sort.Strings(agencies)
	agencies = moveToEnd(agencies, "UNKNOWN")

	for _, agency := range agencies {
		passed := len(stats.passed[agency])
		fixed := len(stats.fixed[agency])
		failed := len(stats.failed[agency])

		fmt.Fprintf(&sb, "%s: %s, %s, %s\n",
			agency,
			countNoun(passed)+" passed",
			countNoun(fixed)+" fixed",
			countNoun(failed)+" still failing",
		)

		if failed == 0 {
			continue
		}
		sb.WriteString("  Summary of failures:\n")
		for _, group := range groupByErrorSet(stats.failed[agency]) {
			for _, msg := range group.messages {
				sb.WriteString("    - " + wordwrap.WrapString(msg, emailWrapWidth) + "\n")
			}
			sb.WriteString("    affected: " + wordwrap.WrapString(strings.Join(group.files, ", "), emailWrapWidth) + "\n")
		}
	}

	w, err := b.workDir.Create(fmt.Sprintf("failed-files-%s", b.today()))
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write([]byte(sb.String()))
	return err
}
