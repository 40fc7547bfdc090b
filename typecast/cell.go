// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package typecast implements the Value Typecaster (C5): per-column typed
// coercion of raw Extended CSV strings into a small tagged-variant value
// type, repairing common formatting defects along the way.
package typecast

import "fmt"

// Kind tags the concrete representation held by a Cell.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindDate
	KindTime
	KindUTCOffset
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindUTCOffset:
		return "utcoffset"
	default:
		return "unknown"
	}
}

// Date is a calendar date, year/month/day, with no timezone.
type Date struct {
	Year, Month, Day int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time is a time-of-day, no timezone.
type Time struct {
	Hour, Minute, Second int
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Offset is a signed UTC offset, stored as whole hour/minute/second parts.
type Offset struct {
	Negative             bool
	Hour, Minute, Second int
}

func (o Offset) String() string {
	sign := "+"
	if o.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, o.Hour, o.Minute, o.Second)
}

// Cell is a tagged variant over the value kinds an Extended CSV cell may
// hold after typecasting. Only the field matching Kind is meaningful.
type Cell struct {
	Kind    Kind
	Integer int64
	Float   float64
	Str     string
	Date    Date
	Time    Time
	Offset  Offset
}

// Null is the zero-value empty cell.
var Null = Cell{Kind: KindNull}

func (c Cell) IsNull() bool { return c.Kind == KindNull }

// String renders the cell's value for logging and re-serialization
// purposes. It does not round-trip formatting defects that were repaired.
func (c Cell) String() string {
	switch c.Kind {
	case KindNull:
		return ""
	case KindInteger:
		return fmt.Sprintf("%d", c.Integer)
	case KindFloat:
		return fmt.Sprintf("%v", c.Float)
	case KindString:
		return c.Str
	case KindDate:
		return c.Date.String()
	case KindTime:
		return c.Time.String()
	case KindUTCOffset:
		return c.Offset.String()
	default:
		return ""
	}
}
