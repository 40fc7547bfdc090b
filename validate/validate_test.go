// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/extcsv"
)

type recordingSink struct {
	codes []int
}

func (s *recordingSink) Add(code int, _ *int, _ map[string]any) (string, bool, error) {
	s.codes = append(s.codes, code)
	return "", false, nil
}

func platformSchema() *catalog.TableGroup {
	return &catalog.TableGroup{
		Tables: map[string]*catalog.TableSchema{
			"PLATFORM": {
				Name:           "PLATFORM",
				Occurrences:    catalog.Range{Min: 1, Max: 1},
				Rows:           catalog.Range{Min: 1, Max: 1},
				RequiredFields: []string{"ID", "Name", "Country", "Type"},
				OptionalFields: []string{"GAW_ID"},
			},
		},
	}
}

func platformDoc(fields []string, row []string) *extcsv.Document {
	doc := extcsv.NewDocument()
	t := doc.NewTable("PLATFORM", 1)
	for i, f := range fields {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		t.InsertField(f, 1)
		t.Field(f).Raw[0] = v
	}
	return doc
}

func TestCheckFieldsCaseRepairsHeader(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"id", "Name", "Country", "Type"}, []string{"001", "TORONTO", "CAN", "STN"})
	checkGroup(doc, platformSchema(), sink)

	require.Contains(t, sink.codes, 20)
	require.True(t, doc.Table("PLATFORM").HasField("ID"))
	require.False(t, doc.Table("PLATFORM").HasField("id"))
}

func TestCheckFieldsInsertsMissingRequired(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country"}, []string{"001", "TORONTO", "CAN"})
	checkGroup(doc, platformSchema(), sink)

	require.Contains(t, sink.codes, 5)
	require.True(t, doc.Table("PLATFORM").HasField("Type"))
}

func TestCheckFieldsDeletesUnknownExtra(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country", "Type", "Junk"}, []string{"001", "TORONTO", "CAN", "STN", "x"})
	checkGroup(doc, platformSchema(), sink)

	require.Contains(t, sink.codes, 6)
	require.False(t, doc.Table("PLATFORM").HasField("Junk"))
}

func TestCheckFieldsRenamesKnownOptionalCaseVariant(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country", "Type", "gaw_id"}, []string{"001", "TORONTO", "CAN", "STN", "42"})
	checkGroup(doc, platformSchema(), sink)

	require.Contains(t, sink.codes, 20)
	require.True(t, doc.Table("PLATFORM").HasField("GAW_ID"))
}

func TestCheckFieldsEmptyRequiredValueFlagged(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country", "Type"}, []string{"", "TORONTO", "CAN", "STN"})
	checkGroup(doc, platformSchema(), sink)

	require.Contains(t, sink.codes, 7)
}

func TestCheckOccurrencesBelowMinimum(t *testing.T) {
	sink := &recordingSink{}
	doc := extcsv.NewDocument()
	checkGroup(doc, platformSchema(), sink)
	require.Contains(t, sink.codes, 26)
}

func TestCheckRowsZeroOnRequiredTableIsError(t *testing.T) {
	sink := &recordingSink{}
	doc := extcsv.NewDocument()
	doc.NewTable("PLATFORM", 1)
	checkGroup(doc, platformSchema(), sink)
	require.Contains(t, sink.codes, 11)
}

func TestTypecastGroupCollapsesSingleRowTableToScalar(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country", "Type"}, []string{"001", "TORONTO", "CAN", "STN"})
	group := platformSchema()
	typecastGroup(doc, group, nil, sink)

	col := doc.Table("PLATFORM").Field("ID")
	require.NotNil(t, col.Scalar)
	require.Nil(t, col.Typed)
	require.Equal(t, "001", col.Scalar.String())
}

func TestValidateLaxSkipsDatasetResolution(t *testing.T) {
	sink := &recordingSink{}
	doc := platformDoc([]string{"ID", "Name", "Country", "Type"}, []string{"001", "TORONTO", "CAN", "STN"})
	cat := &catalog.Catalog{Common: platformSchema()}

	err := Validate(doc, cat, sink, Options{Lax: true})
	require.NoError(t, err)
	require.NotNil(t, doc.Table("PLATFORM").Field("ID").Scalar)
}

func TestValidateUnresolvableDatasetIsFatal(t *testing.T) {
	sink := &recordingSink{}
	doc := extcsv.NewDocument()
	content := doc.NewTable("CONTENT", 1)
	content.InsertField("Category", 1)
	content.Field("Category").Raw[0] = "NoSuchDataset"
	content.InsertField("Level", 1)
	content.Field("Level").Raw[0] = "1.0"
	content.InsertField("Form", 1)
	content.Field("Form").Raw[0] = "1"

	cat := &catalog.Catalog{
		Common:   platformSchema(),
		Datasets: map[string]map[string]map[string]*catalog.DatasetNode{},
	}

	err := Validate(doc, cat, sink, Options{})
	require.Error(t, err)
	fatal, ok := err.(*FatalError)
	require.True(t, ok)
	require.Equal(t, 13, fatal.Code)
}

func TestSafeCastReturnsCastCell(t *testing.T) {
	sink := &recordingSink{}
	cell := safeCast("Date", "2020-01-15", 1, sink)
	require.Equal(t, "2020-01-15", cell.Date.String())
}
