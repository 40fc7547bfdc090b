// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package extcsv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"woudc.io/ingest/report"
)

// fakeCatalog is a minimal report.Sink that records every call and treats a
// fixed set of codes as severe, without depending on catalog.ErrorCatalog.
type fakeCatalog struct {
	severe map[int]bool
	calls  []int
}

func (f *fakeCatalog) Add(code int, _ *int, _ map[string]any) (string, bool, error) {
	f.calls = append(f.calls, code)
	return "", f.severe[code], nil
}

const sampleDocument = "" +
	"#TIMESTAMP\n" +
	"UTCOffset,Date,Time\n" +
	"+00:00:00,2020-01-15,12:00:00\n" +
	"#PLATFORM\n" +
	"ID,Name,Country,Type\n" +
	"001,TORONTO,CAN,STN\n"

func TestParseBuildsTablesInDocumentOrder(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	doc, err := Parse([]byte(sampleDocument), sink)
	require.NoError(t, err)
	require.Equal(t, []string{"TIMESTAMP", "PLATFORM"}, doc.Order)

	ts := doc.Table("TIMESTAMP")
	require.NotNil(t, ts)
	require.Equal(t, []string{"UTCOffset", "Date", "Time"}, ts.FieldOrder)
	require.Equal(t, "2020-01-15", ts.FieldString("Date"))

	platform := doc.Table("PLATFORM")
	require.Equal(t, "001", platform.FieldString("ID"))
	require.Equal(t, 1, platform.Rows())
}

func TestParseRepairsNonStandardSeparators(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	doc, err := Parse([]byte("#PLATFORM\nID;Name;Country;Type\n001;TORONTO;CAN;STN\n"), sink)
	require.NoError(t, err)
	require.Contains(t, sink.calls, 16)
	require.Equal(t, "001", doc.Table("PLATFORM").FieldString("ID"))
}

func TestParseShortRowIsPaddedWithEmptyFields(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	doc, err := Parse([]byte("#PLATFORM\nID,Name,Country,Type\n001,TORONTO\n"), sink)
	require.NoError(t, err)
	platform := doc.Table("PLATFORM")
	require.Equal(t, "", platform.FieldString("Country"))
	require.Equal(t, 1, platform.Rows())
}

func TestParseLongRowEmitsErrorAndTruncates(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	doc, err := Parse([]byte("#PLATFORM\nID,Name\n001,TORONTO,EXTRA\n"), sink)
	require.NoError(t, err)
	require.Contains(t, sink.calls, 25)
	require.Equal(t, "TORONTO", doc.Table("PLATFORM").FieldString("Name"))
}

func TestParseContentBeforeAnyHeaderEmitsError(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	_, err := Parse([]byte("001,TORONTO,CAN,STN\n#PLATFORM\nID,Name,Country,Type\n001,TORONTO,CAN,STN\n"), sink)
	require.NoError(t, err)
	require.Contains(t, sink.calls, 15)
}

func TestParseMissingHeaderRowEmitsError(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	_, err := Parse([]byte("#TIMESTAMP\nUTCOffset,Date,Time\n+00:00:00,2020-01-15,12:00:00\n#PLATFORM\n"), sink)
	require.NoError(t, err)
	require.Contains(t, sink.calls, 9)
}

func TestParseSevereDiagnosticReturnsParseError(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{9: true}}
	doc, err := Parse([]byte("#PLATFORM\n"), sink)
	require.Error(t, err)
	require.IsType(t, &ParseError{}, err)
	require.NotNil(t, doc) // best-effort document still returned
}

func TestParseBlankAndCommentLinesAreIgnored(t *testing.T) {
	sink := &fakeCatalog{severe: map[int]bool{}}
	doc, err := Parse([]byte("\n*a comment\n#PLATFORM\nID,Name,Country,Type\n001,TORONTO,CAN,STN\n"), sink)
	require.NoError(t, err)
	require.Equal(t, []string{"PLATFORM"}, doc.Order)
}

var _ report.Sink = (*fakeCatalog)(nil)
