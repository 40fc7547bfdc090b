// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package extcsv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"woudc.io/ingest/report"
)

// ParseError is the NonStandardData failure shape (§7): the input could
// not be parsed as Extended CSV because a severe diagnostic was raised.
// Parse leaves Messages empty; the diagnostics themselves are in the
// report.Sink that was passed to Parse.
type ParseError struct {
	Messages []report.Message
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extcsv: parsing failed with %d severe message(s)", len(e.Messages))
}

// nonStandardSeparators are repaired in sequence, in this priority order,
// per §4.4.
var nonStandardSeparators = []string{"::", ";", "$", "%", "|", "\\"}

// Parse tokenises raw (UTF-8 text) into a Document, appending diagnostics
// to sink as it goes. If any appended diagnostic is severe, Parse returns
// a *ParseError; the accumulated Document up to that point is still
// returned so a caller doing best-effort reporting can inspect it, but
// per §4.4 the pipeline must treat this as a failure of the whole file.
func Parse(raw []byte, sink report.Sink) (*Document, error) {
	doc := NewDocument()
	var severe bool

	emit := func(code, line int, kwargs map[string]any) {
		_, sev, err := sink.Add(code, report.Line(line), kwargs)
		if err != nil {
			panic(err) // unknown error code: programmer error, per §7
		}
		if sev {
			severe = true
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cur *Table
	var pendingHeader bool
	var pendingHeaderLine int
	var colBuffers map[string][]string
	var fieldOrder []string

	flushTable := func() {
		if cur == nil {
			return
		}
		for _, name := range fieldOrder {
			cur.addField(name, colBuffers[name])
		}
		cur = nil
		colBuffers = nil
		fieldOrder = nil
	}

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		fields, sepErrs := tokenize(line)
		for _, sep := range sepErrs {
			emit(16, lineNum, map[string]any{"separator": sep})
		}

		switch classify(fields) {
		case lineBlank:
			continue
		case lineComment:
			continue
		case lineTableHeader:
			flushTable()
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fields[0]), "#"))
			cur = doc.NewTable(name, lineNum)
			pendingHeader = true
			pendingHeaderLine = lineNum
			colBuffers = map[string][]string{}
			fieldOrder = nil
		default: // content line: either the pending header row, or a data row
			if cur == nil {
				emit(15, lineNum, map[string]any{"row": strings.Join(fields, ",")})
				continue
			}
			if pendingHeader {
				fieldOrder = append(fieldOrder, fields...)
				for _, f := range fields {
					colBuffers[f] = []string{}
				}
				pendingHeader = false
				continue
			}
			width := len(fieldOrder)
			if len(fields) > width {
				emit(25, lineNum, map[string]any{"table": cur.InstanceName})
				fields = fields[:width]
			} else if len(fields) < width {
				for len(fields) < width {
					fields = append(fields, "")
				}
			}
			for i, name := range fieldOrder {
				colBuffers[name] = append(colBuffers[name], fields[i])
			}
		}
	}
	if pendingHeader {
		emit(9, pendingHeaderLine, map[string]any{"table": cur.InstanceName})
		// No header was ever read; drop the table's (empty) column set.
	}
	flushTable()

	if severe {
		return doc, &ParseError{}
	}
	return doc, nil
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineTableHeader
	lineContent
)

func classify(fields []string) lineKind {
	if len(fields) == 0 {
		return lineBlank
	}
	if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
		return lineBlank
	}
	first := strings.TrimSpace(fields[0])
	if strings.HasPrefix(first, "#") {
		return lineTableHeader
	}
	if strings.HasPrefix(first, "*") {
		return lineComment
	}
	return lineContent
}

// tokenize splits line into CSV fields, first repairing any occurrence of
// the known non-standard separators (§4.4) by rewriting them to commas in
// priority order and re-tokenising. It returns the resulting fields and
// the list of separators that were found and repaired (for error 16).
func tokenize(line string) (fields []string, repaired []string) {
	working := line
	for _, sep := range nonStandardSeparators {
		if strings.Contains(firstCell(working), sep) {
			repaired = append(repaired, sep)
			working = strings.ReplaceAll(working, sep, ",")
		}
	}
	fields, err := splitCSVLine(working)
	if err != nil {
		// Malformed quoting: fall back to a naive comma split so the
		// parser can keep making progress and let downstream validation
		// flag the resulting garbage.
		fields = strings.Split(working, ",")
	}
	return fields, repaired
}

func firstCell(line string) string {
	fields, err := splitCSVLine(line)
	if err != nil || len(fields) == 0 {
		idx := strings.IndexByte(line, ',')
		if idx < 0 {
			return line
		}
		return line[:idx]
	}
	return fields[0]
}

func splitCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err != nil {
		return nil, err
	}
	return rec, nil
}
