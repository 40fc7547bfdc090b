// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package typecast

import (
	"strconv"
	"strings"
	"time"

	"woudc.io/ingest/report"
)

// stripSeparators rewrites every run of non-digit characters in s to a
// single occurrence of want, reporting whether anything was rewritten.
// Date/time/offset components are digit groups; whatever punctuation
// separates them in the raw cell is repaired to the expected separator
// rather than matched against a fixed table of alternatives (§4.5).
func stripSeparators(s string, want byte) (string, bool) {
	var sb strings.Builder
	repaired := false
	lastWasSep := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			sb.WriteByte(c)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			sb.WriteByte(want)
		}
		if c != want {
			repaired = true
		}
		lastWasSep = true
	}
	out := strings.Trim(sb.String(), string(want))
	return out, repaired
}

// fieldKind reports which domain-specific coercion dispatches on name
// (case-folded field name, §4.5).
func fieldKind(name string) Kind {
	switch strings.ToLower(name) {
	case "date":
		return KindDate
	case "time":
		return KindTime
	case "utcoffset":
		return KindUTCOffset
	default:
		return KindString // numeric/string dispatch decided by content
	}
}

// Cast coerces a single raw cell value, dispatching on the owning
// column's field name, and reports any repairs or rejections through
// sink at the given line (§4.5). An empty string always casts to Null.
func Cast(fieldName, raw string, line int, sink report.Sink) Cell {
	if raw == "" {
		return Null
	}
	switch fieldKind(fieldName) {
	case KindDate:
		return castDate(raw, line, sink)
	case KindTime:
		return castTime(raw, line, sink)
	case KindUTCOffset:
		return castOffset(raw, line, sink)
	default:
		return castNumeric(raw)
	}
}

// castNumeric implements §4.5's numeric dispatch: float if a decimal
// point is present, string if the value looks like a zero-padded
// identifier (e.g. "007"), otherwise integer; anything that fails to
// parse falls back to string.
func castNumeric(raw string) Cell {
	if strings.Contains(raw, ".") {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Cell{Kind: KindFloat, Float: f}
		}
		return Cell{Kind: KindString, Str: raw}
	}
	if len(raw) > 1 && raw[0] == '0' {
		return Cell{Kind: KindString, Str: raw}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Cell{Kind: KindInteger, Integer: n}
	}
	return Cell{Kind: KindString, Str: raw}
}

func castDate(raw string, line int, sink report.Sink) Cell {
	s, repaired := stripSeparators(raw, '-')
	if repaired {
		sink.Add(34, report.Line(line), map[string]any{"value": raw})
	}
	parts := strings.Split(s, "-")
	switch {
	case len(parts) < 3:
		sink.Add(35, report.Line(line), map[string]any{"value": raw})
		return Cell{Kind: KindString, Str: raw}
	case len(parts) > 3:
		sink.Add(36, report.Line(line), map[string]any{"value": raw})
		return Cell{Kind: KindString, Str: raw}
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		sink.Add(38, report.Line(line), map[string]any{"value": raw})
		return Cell{Kind: KindString, Str: raw}
	}
	if year < 1940 || year > time.Now().Year() || month < 1 || month > 12 {
		sink.Add(39, report.Line(line), map[string]any{"value": raw})
	}
	if day < 1 || day > 31 {
		sink.Add(40, report.Line(line), map[string]any{"value": raw})
	}
	return Cell{Kind: KindDate, Date: Date{Year: year, Month: month, Day: day}}
}

func castTime(raw string, line int, sink report.Sink) Cell {
	s := raw
	ampm := ""
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "am") || strings.HasSuffix(lower, "pm") {
		ampm = lower[len(lower)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	repaired := false
	s, repaired = stripSeparators(s, ':')
	if repaired {
		sink.Add(30, report.Line(line), map[string]any{"value": raw})
	}

	parts := strings.Split(s, ":")
	for len(parts) < 3 {
		parts = append(parts, "00")
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}

	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	second, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		sink.Add(31, report.Line(line), map[string]any{"value": raw})
		return Cell{Kind: KindString, Str: raw}
	}

	switch ampm {
	case "am":
		if hour == 12 {
			hour = 0
			sink.Add(32, report.Line(line), map[string]any{"value": raw})
		}
	case "pm":
		if hour != 12 {
			hour += 12
			sink.Add(32, report.Line(line), map[string]any{"value": raw})
		}
	}

	if second >= 60 {
		second -= 60
		minute++
		sink.Add(33, report.Line(line), map[string]any{"value": raw})
	}
	if minute >= 60 {
		minute -= 60
		hour++
		sink.Add(33, report.Line(line), map[string]any{"value": raw})
	}

	return Cell{Kind: KindTime, Time: Time{Hour: hour, Minute: minute, Second: second}}
}

func castOffset(raw string, line int, sink report.Sink) Cell {
	s := raw
	negative := false
	sign := ""
	switch {
	case strings.HasPrefix(s, "+-") || strings.HasPrefix(s, "-+"):
		sign = "-"
		negative = true
		s = s[2:]
		sink.Add(45, report.Line(line), map[string]any{"value": raw})
	case strings.HasPrefix(s, "+"):
		sign = "+"
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		sign = "-"
		negative = true
		s = s[1:]
	default:
		sign = "+"
		sink.Add(44, report.Line(line), map[string]any{"value": raw})
	}
	_ = sign

	s, repaired := stripSeparators(s, ':')
	if repaired {
		sink.Add(41, report.Line(line), map[string]any{"value": raw})
	}

	parts := strings.Split(s, ":")
	for i, p := range parts {
		if len(p) < 2 {
			parts[i] = strings.Repeat("0", 2-len(p)) + p
			sink.Add(42, report.Line(line), map[string]any{"value": raw})
		}
	}
	for len(parts) < 3 {
		parts = append(parts, "00")
		sink.Add(43, report.Line(line), map[string]any{"value": raw})
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}

	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	second, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		sink.Add(47, report.Line(line), map[string]any{"value": raw})
		return Cell{Kind: KindString, Str: raw}
	}

	if hour == 0 && minute == 0 && second == 0 {
		if negative {
			sink.Add(45, report.Line(line), map[string]any{"value": raw})
		}
		sink.Add(46, report.Line(line), map[string]any{"value": raw})
		negative = false
	}

	return Cell{Kind: KindUTCOffset, Offset: Offset{Negative: negative, Hour: hour, Minute: minute, Second: second}}
}
