// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package extcsv implements the ExtendedCSV document model (§3) and the
// Extended-CSV Parser (C4): tokenising a WOUDC-style Extended CSV file into
// named tables of ordered column vectors.
package extcsv

import (
	"strconv"

	"woudc.io/ingest/typecast"
)

// Column holds one field's values for a table instance, either as raw
// strings (immediately after parsing) or as typed cells (after the Value
// Typecaster has run). Exactly one of Raw/Typed/Scalar is meaningful at any
// point in the pipeline.
type Column struct {
	Name string
	// Raw holds one untyped string per data row, set by the parser.
	Raw []string
	// Typed holds one Cell per data row, set by the typecaster for tables
	// whose schema does not collapse to a scalar.
	Typed []typecast.Cell
	// Scalar holds a single Cell for tables whose schema declares rows==1,
	// collapsed from Typed by the Schema Validator (§4.6).
	Scalar *typecast.Cell
}

// Len returns the number of rows in the column, preferring whichever
// representation is currently populated.
func (c *Column) Len() int {
	if c.Scalar != nil {
		return 1
	}
	if c.Typed != nil {
		return len(c.Typed)
	}
	return len(c.Raw)
}

// Table is one table instance: an ordered mapping from column name to
// column value(s), plus the line number of its header and its base type.
type Table struct {
	// InstanceName is the name as it appears in the document, e.g.
	// "PLATFORM" or "PLATFORM_2".
	InstanceName string
	// BaseType is InstanceName with any "_N" suffix stripped.
	BaseType string
	// HeaderLine is the source line number of the `#<name>` header.
	HeaderLine int
	// FieldOrder preserves the declared column order (Go maps have none).
	FieldOrder []string
	Columns    map[string]*Column
}

// Field returns the named column, or nil if not present.
func (t *Table) Field(name string) *Column {
	return t.Columns[name]
}

// HasField reports whether name (exact case) is present.
func (t *Table) HasField(name string) bool {
	_, ok := t.Columns[name]
	return ok
}

// FieldString returns a best-effort string rendering of the named field's
// first (or only) value, or "" if the table is nil or the field absent.
// It is used by reporting code that needs a display value regardless of
// what pipeline stage produced the table (raw strings pre-typecast,
// scalar or vector cells post-cast), including callers that chain
// straight off Document.Table without checking for a missing table.
func (t *Table) FieldString(name string) string {
	if t == nil {
		return ""
	}
	col, ok := t.Columns[name]
	if !ok {
		return ""
	}
	switch {
	case col.Scalar != nil:
		return col.Scalar.String()
	case len(col.Typed) > 0:
		return col.Typed[0].String()
	case len(col.Raw) > 0:
		return col.Raw[0]
	default:
		return ""
	}
}

// Rows returns the number of data rows in the table, based on any column
// (all columns in a table have equal length, per the §3 invariant); zero
// if the table has no columns at all.
func (t *Table) Rows() int {
	for _, name := range t.FieldOrder {
		return t.Columns[name].Len()
	}
	return 0
}

// addField appends a new column (in declared order) with the given raw
// values. Adding a field name that already exists is a no-op.
func (t *Table) addField(name string, raw []string) {
	if t.Columns == nil {
		t.Columns = map[string]*Column{}
	}
	if _, exists := t.Columns[name]; exists {
		return
	}
	t.FieldOrder = append(t.FieldOrder, name)
	t.Columns[name] = &Column{Name: name, Raw: raw}
}

// RenameField renames a column in place, preserving its position in
// FieldOrder and its stored values. Used by the Schema Validator's
// case-repair (error 20).
func (t *Table) RenameField(oldName, newName string) {
	col, ok := t.Columns[oldName]
	if !ok {
		return
	}
	col.Name = newName
	delete(t.Columns, oldName)
	t.Columns[newName] = col
	for i, n := range t.FieldOrder {
		if n == oldName {
			t.FieldOrder[i] = newName
			break
		}
	}
}

// DeleteField removes a column entirely. Used for unrecognized extra
// fields (error 6).
func (t *Table) DeleteField(name string) {
	if _, ok := t.Columns[name]; !ok {
		return
	}
	delete(t.Columns, name)
	for i, n := range t.FieldOrder {
		if n == name {
			t.FieldOrder = append(t.FieldOrder[:i], t.FieldOrder[i+1:]...)
			break
		}
	}
}

// InsertField adds a column padded with n empty-string rows. Used when a
// missing required field is repaired by insertion (error 5).
func (t *Table) InsertField(name string, n int) {
	raw := make([]string, n)
	t.addField(name, raw)
}

// Document is the parsed ExtendedCSV object model (§3): an ordered mapping
// from table-instance name to table, plus the auxiliary indices described
// in §3's Invariants paragraph.
type Document struct {
	// Order preserves table insertion order.
	Order []string
	byName map[string]*Table
	// countByBase counts instances seen per base table type.
	countByBase map[string]int

	// ObservationsTable is the resolved dataset schema's data_table name,
	// set after dataset-version resolution (§3's "resolved ... observations
	// table name, set after version resolution").
	ObservationsTable string
}

// NewDocument returns an empty Document ready to receive tables from the
// parser.
func NewDocument() *Document {
	return &Document{
		byName:      map[string]*Table{},
		countByBase: map[string]int{},
	}
}

// Table returns the named table instance, or nil.
func (d *Document) Table(name string) *Table {
	return d.byName[name]
}

// Tables returns all table instances in document order.
func (d *Document) Tables() []*Table {
	out := make([]*Table, 0, len(d.Order))
	for _, n := range d.Order {
		out = append(out, d.byName[n])
	}
	return out
}

// InstancesOf returns every table instance of the given base type, in
// document order (e.g. InstancesOf("PLATFORM") -> [PLATFORM]; for a
// repeated type, [TIMESTAMP, TIMESTAMP_2, ...]).
func (d *Document) InstancesOf(baseType string) []*Table {
	var out []*Table
	for _, n := range d.Order {
		if d.byName[n].BaseType == baseType {
			out = append(out, d.byName[n])
		}
	}
	return out
}

// CountOf returns how many instances of baseType have been added.
func (d *Document) CountOf(baseType string) int {
	return d.countByBase[baseType]
}

// NewTable starts a new table instance of the given base type, assigning
// it the next dense suffix (T, T_2, T_3, ...) per the §3 invariant, and
// returns it. headerLine is the source line of its `#<name>` header.
func (d *Document) NewTable(baseType string, headerLine int) *Table {
	d.countByBase[baseType]++
	n := d.countByBase[baseType]
	instanceName := baseType
	if n > 1 {
		instanceName = instanceNameFor(baseType, n)
	}
	t := &Table{
		InstanceName: instanceName,
		BaseType:     baseType,
		HeaderLine:   headerLine,
		Columns:      map[string]*Column{},
	}
	d.byName[instanceName] = t
	d.Order = append(d.Order, instanceName)
	return t
}

func instanceNameFor(baseType string, n int) string {
	if n <= 1 {
		return baseType
	}
	return baseType + "_" + strconv.Itoa(n)
}
