// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package validate implements the Schema Validator (C6): two passes of
// structural checks (occurrences, field presence, row counts) against the
// Schema Catalog, dataset-version resolution, and the post-validation
// typecast invocation described in §4.6.
package validate

import (
	"fmt"
	"strings"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/extcsv"
	"woudc.io/ingest/report"
	"woudc.io/ingest/typecast"
)

// FatalError is returned when a file cannot proceed past validation at
// all: no dataset version scored above zero (error 13), or the dataset
// itself could not be resolved from CONTENT metadata.
type FatalError struct {
	Code    int
	Message string
}

func (e *FatalError) Error() string { return e.Message }

// Options controls how much of the two-pass validation Validate runs.
type Options struct {
	// Lax restricts validation to the core metadata tables, skipping
	// dataset-version resolution and the dataset-specific pass entirely
	// (the CLI's --lax flag, §6).
	Lax bool
}

// Validate runs the Common (core-metadata) pass against doc, then, unless
// opts.Lax is set, resolves and runs the dataset-specific pass from
// CONTENT.Category/Level/Form. It mutates doc in place (field
// rename/insert/delete, typecasting, scalar collapse) and reports every
// diagnostic through sink. A non-nil *FatalError means the file must be
// rejected outright.
func Validate(doc *extcsv.Document, cat *catalog.Catalog, sink report.Sink, opts Options) error {
	checkGroup(doc, cat.CommonSchema(), sink)
	if opts.Lax {
		typecastGroup(doc, cat.CommonSchema(), nil, sink)
		return nil
	}

	content := doc.Table("CONTENT")
	category := ""
	level := ""
	form := ""
	if content != nil {
		category = content.FieldString("Category")
		level = content.FieldString("Level")
		form = content.FieldString("Form")
	}

	node, err := cat.ResolveDataset(category, level, form)
	if err != nil {
		return &FatalError{Code: 13, Message: err.Error()}
	}

	group := node.Group
	if node.Versioned() {
		present := presentBaseTypes(doc)
		version, tied, score := node.ResolveVersion(present)
		if score <= 0 {
			sink.Add(13, nil, map[string]any{"category": category, "level": level, "form": form})
			return &FatalError{Code: 13, Message: fmt.Sprintf("validate: no dataset version of %s/%s/%s scored above zero", category, level, form)}
		}
		if tied {
			sink.Add(14, nil, map[string]any{"category": category, "level": level, "form": form})
		}
		group = node.Versions[version]
	}
	if group == nil {
		return &FatalError{Code: 13, Message: "validate: dataset resolved to an empty table group"}
	}

	checkGroup(doc, group, sink)
	doc.ObservationsTable = group.DataTable
	typecastGroup(doc, cat.CommonSchema(), group, sink)
	return nil
}

// typecastGroup typecasts every table instance whose base type is
// declared in common or dataset (dataset may be nil under --lax, where
// only the core metadata tables are cast).
func typecastGroup(doc *extcsv.Document, common, dataset *catalog.TableGroup, sink report.Sink) {
	for _, t := range doc.Tables() {
		var schema *catalog.TableSchema
		var ok bool
		if dataset != nil {
			schema, ok = lookupSchema(common, dataset, t.BaseType)
		} else {
			schema, ok = common.Tables[t.BaseType]
		}
		if !ok {
			continue
		}
		typecastTable(t, schema, sink)
	}
}

func presentBaseTypes(doc *extcsv.Document) map[string]bool {
	present := map[string]bool{}
	for _, t := range doc.Tables() {
		present[t.BaseType] = true
	}
	return present
}

func lookupSchema(common, dataset *catalog.TableGroup, baseType string) (*catalog.TableSchema, bool) {
	if s, ok := dataset.Tables[baseType]; ok {
		return s, true
	}
	if s, ok := common.Tables[baseType]; ok {
		return s, true
	}
	return nil, false
}

// checkGroup runs the per-table checks of §4.6 against every table type
// declared in group, matching them against doc's actual table instances.
func checkGroup(doc *extcsv.Document, group *catalog.TableGroup, sink report.Sink) {
	for name, schema := range group.Tables {
		instances := doc.InstancesOf(name)
		checkOccurrences(name, schema, instances, sink)
		for _, t := range instances {
			checkFields(t, schema, sink)
			checkRows(t, schema, sink)
		}
	}
}

func checkOccurrences(name string, schema *catalog.TableSchema, instances []*extcsv.Table, sink report.Sink) {
	n := len(instances)
	if n < schema.Occurrences.Min {
		sink.Add(26, nil, map[string]any{"table": name, "count": n})
		return
	}
	if schema.Occurrences.Max != catalog.Unbounded && n > schema.Occurrences.Max {
		line := instances[len(instances)-1].HeaderLine
		sink.Add(27, report.Line(line), map[string]any{"table": name, "count": n})
	}
}

// checkFields implements §4.6's field-presence pass: missing required
// fields are either case-repaired (error 20) or inserted null-padded
// (error 5); extra fields are either case-repaired (error 20) or deleted
// (error 6). Empty required values are flagged at their row (error 7).
func checkFields(t *extcsv.Table, schema *catalog.TableSchema, sink report.Sink) {
	provided := map[string]string{} // lower(name) -> actual name
	for _, name := range t.FieldOrder {
		provided[strings.ToLower(name)] = name
	}

	for _, required := range schema.RequiredFields {
		key := strings.ToLower(required)
		actual, ok := provided[key]
		switch {
		case ok && actual == required:
			// already canonical
		case ok:
			t.RenameField(actual, required)
			sink.Add(20, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "field": required})
		default:
			t.InsertField(required, t.Rows())
			sink.Add(5, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "field": required})
		}
	}

	allowed := map[string]bool{}
	for _, f := range schema.RequiredFields {
		allowed[f] = true
	}
	for _, f := range schema.OptionalFields {
		allowed[f] = true
	}
	for _, name := range append([]string(nil), t.FieldOrder...) {
		if allowed[name] {
			continue
		}
		if canonical, ok := optionalMatch(schema, name); ok {
			t.RenameField(name, canonical)
			sink.Add(20, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "field": canonical})
			continue
		}
		t.DeleteField(name)
		sink.Add(6, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "field": name})
	}

	for _, required := range schema.RequiredFields {
		col := t.Field(required)
		if col == nil {
			continue
		}
		for i, v := range col.Raw {
			if v == "" {
				sink.Add(7, report.Line(t.HeaderLine+1+i), map[string]any{"table": t.InstanceName, "field": required})
			}
		}
	}
}

func optionalMatch(schema *catalog.TableSchema, name string) (string, bool) {
	for _, f := range schema.OptionalFields {
		if strings.EqualFold(f, name) {
			return f, true
		}
	}
	return "", false
}

func checkRows(t *extcsv.Table, schema *catalog.TableSchema, sink report.Sink) {
	n := t.Rows()
	if n == 0 {
		if schema.WhollyOptional() {
			sink.Add(12, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName})
		} else {
			sink.Add(11, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName})
		}
		return
	}
	if n < schema.Rows.Min {
		sink.Add(28, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "rows": n})
	}
	if schema.Rows.Max != catalog.Unbounded && n > schema.Rows.Max {
		sink.Add(29, report.Line(t.HeaderLine), map[string]any{"table": t.InstanceName, "rows": n})
	}
}

// typecastTable casts every column's raw values and, for a table whose
// schema fixes rows to exactly one, collapses the resulting single-Cell
// columns to scalars (§4.6). Any typecast exception (panic) for a
// date/time/UTCOffset column is reported as error 89 with the raw string
// kept in place, per §4.5.
func typecastTable(t *extcsv.Table, schema *catalog.TableSchema, sink report.Sink) {
	for _, name := range t.FieldOrder {
		col := t.Field(name)
		cells := make([]typecast.Cell, len(col.Raw))
		for i, raw := range col.Raw {
			cells[i] = safeCast(name, raw, t.HeaderLine+1+i, sink)
		}
		col.Typed = cells
		col.Raw = nil
		if schema.Rows.Fixed() && schema.Rows.Min == 1 {
			if len(cells) == 0 {
				empty := typecast.Null
				col.Scalar = &empty
			} else {
				col.Scalar = &cells[0]
			}
			col.Typed = nil
		}
	}
}

func safeCast(field, raw string, line int, sink report.Sink) (cell typecast.Cell) {
	defer func() {
		if r := recover(); r != nil {
			sink.Add(89, report.Line(line), map[string]any{"field": field, "value": raw})
			cell = typecast.Cell{Kind: typecast.KindString, Str: raw}
		}
	}()
	return typecast.Cast(field, raw, line, sink)
}
