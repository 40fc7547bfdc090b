// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package catalog

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// The table-definition document (C1) is expressed in HCL rather than the
// nested-dict-of-dict format implied by a language-agnostic description of
// §3, generalizing the teacher's `schemahcl` package (which decodes whole
// database schemas from HCL) down to decoding table catalogs from HCL. Its
// shape:
//
//	common {
//	  table "PLATFORM" {
//	    occurrences     = "1"
//	    rows            = "1"
//	    required_fields = ["ID", "Name", "Country", "Type"]
//	    optional_fields = ["GAW_ID"]
//	  }
//	}
//
//	dataset "OzoneSonde" "1" "1" {
//	  data_table = "PROFILE"
//	  table "PROFILE" {
//	    occurrences = "1"
//	    rows        = "1-n"
//	    required_fields = ["Pressure", "O3PartialPressure"]
//	  }
//	}
//
//	dataset_version "UmkehrN14" "1" "2" "1" {
//	  data_table = "C_PROFILE"
//	  table "C_PROFILE" { ... }
//	}
//
// A `dataset` block (3 labels: category, level, form) declares an
// unversioned leaf; a `dataset_version` block (4 labels: category, level,
// form, version) contributes one entry to a version-keyed leaf. Mixing
// both for the same (category, level, form) is a malformed-document error.

// metaSchema is the schema-of-schemas (C1): the set of attribute names a
// `table` block may declare, and which of those are mandatory. It is
// itself loaded from a small HCL document so that the accepted attribute
// vocabulary is data, not a compiled-in constant, matching §4.1's "fails
// fatally on a malformed definition document" against a companion
// document rather than a hardcoded Go validator.
type metaSchema struct {
	tableAttributes    map[string]bool
	requiredAttributes map[string]bool
}

// LoadMetaSchema parses the schema-of-schemas document and returns the
// attribute vocabulary it permits for `table` blocks.
func LoadMetaSchema(src []byte, filename string) (*metaSchema, error) {
	f, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("catalog: parsing schema-of-schemas: %w", diags)
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("catalog: schema-of-schemas has no body")
	}
	ms := &metaSchema{tableAttributes: map[string]bool{}, requiredAttributes: map[string]bool{}}
	for _, blk := range body.Blocks {
		if blk.Type != "table_attributes" {
			continue
		}
		attrs, diags := blk.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("catalog: schema-of-schemas table_attributes block: %w", diags)
		}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("catalog: schema-of-schemas attribute %q: %w", name, diags)
			}
			if name == "allowed" {
				for _, v := range mustStringList(val) {
					ms.tableAttributes[v] = true
				}
			}
			if name == "required" {
				for _, v := range mustStringList(val) {
					ms.requiredAttributes[v] = true
				}
			}
		}
	}
	if len(ms.tableAttributes) == 0 {
		return nil, fmt.Errorf("catalog: schema-of-schemas declares no allowed table attributes")
	}
	return ms, nil
}

func mustStringList(v cty.Value) []string {
	if v.IsNull() || !v.CanIterateElements() {
		return nil
	}
	var out []string
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		if ev.Type() == cty.String {
			out = append(out, ev.AsString())
		}
	}
	return out
}

// LoadCatalog parses the table-definition document (tableDefSrc) validated
// against the schema-of-schemas (metaSrc), and combines it with an
// already-loaded ErrorCatalog to produce the immutable Catalog value.
// Any structural departure from the meta-schema is fatal, per §4.1/§6.
func LoadCatalog(metaSrc, tableDefSrc []byte, metaFilename, tableDefFilename string, errs *ErrorCatalog) (*Catalog, error) {
	meta, err := LoadMetaSchema(metaSrc, metaFilename)
	if err != nil {
		return nil, err
	}
	f, diags := hclsyntax.ParseConfig(tableDefSrc, tableDefFilename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("catalog: parsing table-definition document: %w", diags)
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("catalog: table-definition document has no body")
	}

	cat := &Catalog{
		Datasets: map[string]map[string]map[string]*DatasetNode{},
		Errors:   errs,
	}

	for _, blk := range body.Blocks {
		switch blk.Type {
		case "common":
			if cat.Common != nil {
				return nil, fmt.Errorf("catalog: duplicate %q block", "common")
			}
			grp, err := decodeTableGroup(blk.Body, meta)
			if err != nil {
				return nil, fmt.Errorf("catalog: in common block: %w", err)
			}
			cat.Common = grp
		case "dataset":
			if len(blk.Labels) != 3 {
				return nil, fmt.Errorf("catalog: %q block at %s requires 3 labels (category, level, form), got %d",
					blk.Type, blk.DefRange(), len(blk.Labels))
			}
			category, level, form := blk.Labels[0], blk.Labels[1], blk.Labels[2]
			grp, err := decodeTableGroup(blk.Body, meta)
			if err != nil {
				return nil, fmt.Errorf("catalog: in dataset %q/%q/%q: %w", category, level, form, err)
			}
			if err := cat.putNode(category, level, form, &DatasetNode{Group: grp}); err != nil {
				return nil, err
			}
		case "dataset_version":
			if len(blk.Labels) != 4 {
				return nil, fmt.Errorf("catalog: %q block at %s requires 4 labels (category, level, form, version), got %d",
					blk.Type, blk.DefRange(), len(blk.Labels))
			}
			category, level, form, version := blk.Labels[0], blk.Labels[1], blk.Labels[2], blk.Labels[3]
			grp, err := decodeTableGroup(blk.Body, meta)
			if err != nil {
				return nil, fmt.Errorf("catalog: in dataset_version %q/%q/%q/%q: %w", category, level, form, version, err)
			}
			if err := cat.putVersion(category, level, form, version, grp); err != nil {
				return nil, err
			}
		case "table_attributes":
			// consumed only from the schema-of-schemas document; ignore
			// if present here (malformed but harmless, same as the meta
			// case handled above).
		default:
			return nil, fmt.Errorf("catalog: unexpected top-level block %q at %s", blk.Type, blk.DefRange())
		}
	}
	if cat.Common == nil {
		return nil, fmt.Errorf("catalog: table-definition document has no %q block", "common")
	}
	return cat, nil
}

func (c *Catalog) putNode(category, level, form string, node *DatasetNode) error {
	byLevel, ok := c.Datasets[category]
	if !ok {
		byLevel = map[string]map[string]*DatasetNode{}
		c.Datasets[category] = byLevel
	}
	byForm, ok := byLevel[level]
	if !ok {
		byForm = map[string]*DatasetNode{}
		byLevel[level] = byForm
	}
	if existing, ok := byForm[form]; ok {
		if existing.Versioned() {
			return fmt.Errorf("catalog: %s/%s/%s declared as both versioned and unversioned", category, level, form)
		}
		return fmt.Errorf("catalog: duplicate dataset entry for %s/%s/%s", category, level, form)
	}
	byForm[form] = node
	return nil
}

func (c *Catalog) putVersion(category, level, form, version string, grp *TableGroup) error {
	byLevel, ok := c.Datasets[category]
	if !ok {
		byLevel = map[string]map[string]*DatasetNode{}
		c.Datasets[category] = byLevel
	}
	byForm, ok := byLevel[level]
	if !ok {
		byForm = map[string]*DatasetNode{}
		byLevel[level] = byForm
	}
	node, ok := byForm[form]
	if !ok {
		node = &DatasetNode{Versions: map[string]*TableGroup{}}
		byForm[form] = node
	}
	if !node.Versioned() {
		return fmt.Errorf("catalog: %s/%s/%s declared as both versioned and unversioned", category, level, form)
	}
	if _, exists := node.Versions[version]; exists {
		return fmt.Errorf("catalog: duplicate version %q for dataset %s/%s/%s", version, category, level, form)
	}
	node.Versions[version] = grp
	return nil
}

func decodeTableGroup(body *hclsyntax.Body, meta *metaSchema) (*TableGroup, error) {
	grp := &TableGroup{Tables: map[string]*TableSchema{}}
	// body.JustAttributes() would error here because `table` sub-blocks are
	// present; read top-level attributes directly off the body instead.
	if a, ok := body.Attributes["data_table"]; ok {
		val, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("data_table: %w", diags)
		}
		if val.Type() == cty.String {
			grp.DataTable = val.AsString()
		}
	}
	for _, blk := range body.Blocks {
		if blk.Type != "table" {
			return nil, fmt.Errorf("unexpected block %q at %s", blk.Type, blk.DefRange())
		}
		if len(blk.Labels) != 1 {
			return nil, fmt.Errorf("table block at %s requires exactly one label (its name)", blk.DefRange())
		}
		name := blk.Labels[0]
		ts, err := decodeTableSchema(name, blk.Body, meta)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		if _, exists := grp.Tables[name]; exists {
			return nil, fmt.Errorf("duplicate table definition %q", name)
		}
		grp.Tables[name] = ts
	}
	return grp, nil
}

func decodeTableSchema(name string, body *hclsyntax.Body, meta *metaSchema) (*TableSchema, error) {
	ts := &TableSchema{Name: name}
	seen := map[string]bool{}
	for attrName, attr := range body.Attributes {
		if meta != nil && len(meta.tableAttributes) > 0 && !meta.tableAttributes[attrName] {
			return nil, fmt.Errorf("attribute %q not permitted by schema-of-schemas", attrName)
		}
		seen[attrName] = true
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", attrName, diags)
		}
		switch attrName {
		case "occurrences":
			r, err := parseRange(val.AsString())
			if err != nil {
				return nil, err
			}
			ts.Occurrences = r
		case "rows":
			r, err := parseRange(val.AsString())
			if err != nil {
				return nil, err
			}
			ts.Rows = r
		case "required_fields":
			ts.RequiredFields = mustStringList(val)
		case "optional_fields":
			ts.OptionalFields = mustStringList(val)
		}
	}
	if meta != nil {
		for req := range meta.requiredAttributes {
			if !seen[req] {
				return nil, fmt.Errorf("missing required attribute %q", req)
			}
		}
	}
	return ts, nil
}
