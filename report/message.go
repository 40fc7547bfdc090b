// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package report implements the Report Builder (C3): it accumulates a
// per-file message log and batch record, and writes the operator report,
// run report, and email digest described in §4.3/§6.
package report

import "woudc.io/ingest/catalog"

// Message is one accumulated diagnostic: a formatted warning or error tied
// to a numeric code and an optional source line. Message lists are
// append-only (§3's Invariants): nothing in this package ever mutates or
// removes a Message once appended.
type Message struct {
	Code     int
	Severity catalog.Severity
	// Line is nil when the diagnostic has no associated source line.
	Line *int
	Text string
}

// Sink is the narrow interface every other component (C4-C8) uses to
// append diagnostics to the shared message log, without depending on the
// rest of the Report Builder's file-output machinery.
type Sink interface {
	// Add formats the message for code (substituting kwargs into its
	// template) and appends it at the given source line (nil if none).
	// It returns the formatted message and whether the code is severe
	// enough to be an Error. A non-nil error here always means code was
	// never registered in the Error Catalog — a programming error, not a
	// data defect (§7).
	Add(code int, line *int, kwargs map[string]any) (message string, severe bool, err error)
}

// Line is a small convenience constructor for *int, since most call sites
// have a concrete line number rather than "no line".
func Line(n int) *int {
	return &n
}
