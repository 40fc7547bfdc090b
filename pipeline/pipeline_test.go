// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/registry"
	"woudc.io/ingest/report"
	"woudc.io/ingest/xref"
)

type fakeSink struct {
	codes []int
}

func (s *fakeSink) Add(code int, _ *int, _ map[string]any) (string, bool, error) {
	s.codes = append(s.codes, code)
	return "", false, nil
}

type fakeRegistry struct {
	existing map[string][]registry.Record
}

func (r *fakeRegistry) QueryDistinct(_ context.Context, entity, _ string) (map[string]bool, error) {
	return map[string]bool{"WOUDC": true, "OzoneSonde": true}, nil
}

func (r *fakeRegistry) QueryByField(_ context.Context, entity, _, value string) ([]registry.Record, error) {
	if entity == "data_record" {
		return r.existing[value], nil
	}
	return []registry.Record{{"name": "X", "country": "CAN"}}, nil
}

func (r *fakeRegistry) QueryMultipleFields(_ context.Context, _ string, _ map[string]string, _ map[string]bool) (registry.Record, bool, error) {
	return registry.Record{"acronym": "NOAA", "start_date": "2020-01-01", "end_date": "2026-12-31", "name": "X", "model": "M"}, true, nil
}

func (r *fakeRegistry) Save(_ context.Context, _ string, _ registry.Record) error { return nil }
func (r *fakeRegistry) Close() error                                             { return nil }

type fakeSearch struct {
	indexed map[string]string
}

func (s *fakeSearch) GetRecordVersion(_ context.Context, id string) (string, bool, error) {
	v, ok := s.indexed[id]
	return v, ok, nil
}

func (s *fakeSearch) IndexDataRecord(_ context.Context, geoJSON map[string]any) error {
	props := geoJSON["properties"].(map[string]any)
	if s.indexed == nil {
		s.indexed = map[string]string{}
	}
	s.indexed[props["urn"].(string)] = props["version"].(string)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	errs, err := catalog.LoadErrorCatalog(strings.NewReader(
		"code,severity,template\n" +
			"1,Error,not utf8\n" +
			"5,Warning,missing field {field}\n" +
			"6,Warning,extra field {field}\n" +
			"7,Warning,empty value\n" +
			"9,Error,missing header\n" +
			"11,Error,required table empty\n" +
			"12,Warning,optional table empty\n" +
			"13,Error,no dataset version\n" +
			"15,Error,row before header\n" +
			"16,Warning,separator repaired\n" +
			"20,Warning,field renamed\n" +
			"25,Warning,row too long\n" +
			"26,Error,too few instances\n" +
			"27,Warning,too many instances\n" +
			"28,Warning,too few rows\n" +
			"29,Warning,too many rows\n" +
			"52,Warning,defaulted class\n" +
			"53,Error,unknown project\n" +
			"56,Error,unknown dataset\n" +
			"57,Warning,level repaired\n" +
			"58,Warning,level defaulted\n" +
			"59,Warning,level defaulted umkehr\n" +
			"60,Error,bad level\n" +
			"61,Warning,form repaired\n" +
			"62,Error,bad form\n" +
			"63,Warning,date defaulted\n" +
			"65,Error,no deployment\n" +
			"66,Warning,version out of range\n" +
			"67,Warning,version normalized\n" +
			"68,Error,bad version\n" +
			"75,Error,unparsable coordinate\n" +
			"76,Warning,coordinate out of range\n" +
			"77,Warning,coordinate drift\n" +
			"89,Error,typecast failure\n" +
			"105,Warning,ship country rewritten\n" +
			"127,Error,unknown contributor\n" +
			"128,Warning,unknown station type\n" +
			"129,Error,unknown station\n" +
			"130,Warning,station name rewritten\n" +
			"131,Warning,station country rewritten\n" +
			"139,Error,unknown instrument\n" +
			"201,Warning,instrument inserted\n" +
			"202,Warning,deployment inserted\n" +
			"209,Error,duplicate record\n",
	))
	require.NoError(t, err)

	cat := &catalog.Catalog{
		Common: &catalog.TableGroup{
			Tables: map[string]*catalog.TableSchema{
				"PLATFORM": {
					Name: "PLATFORM", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"ID", "Name", "Country", "Type"},
				},
				"CONTENT": {
					Name: "CONTENT", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"Class", "Category", "Level", "Form"},
				},
				"DATA_GENERATION": {
					Name: "DATA_GENERATION", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"Agency", "Date", "Version"},
				},
				"TIMESTAMP": {
					Name: "TIMESTAMP", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"Date"},
				},
				"LOCATION": {
					Name: "LOCATION", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"Latitude", "Longitude"},
				},
				"INSTRUMENT": {
					Name: "INSTRUMENT", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: 1},
					RequiredFields: []string{"Name", "Model", "Number"},
				},
			},
		},
		Datasets: map[string]map[string]map[string]*catalog.DatasetNode{
			"OzoneSonde": {
				"1": {
					"1": &catalog.DatasetNode{
						Group: &catalog.TableGroup{
							DataTable: "PROFILE",
							Tables: map[string]*catalog.TableSchema{
								"PROFILE": {
									Name: "PROFILE", Occurrences: catalog.Range{Min: 1, Max: 1}, Rows: catalog.Range{Min: 1, Max: catalog.Unbounded},
									RequiredFields: []string{"Pressure"},
								},
							},
						},
					},
				},
			},
		},
		Errors: errs,
	}
	return cat
}

const sampleFile = "" +
	"#CONTENT\n" +
	"Class,Category,Level,Form\n" +
	"WOUDC,OzoneSonde,1,1\n" +
	"#DATA_GENERATION\n" +
	"Agency,Date,Version\n" +
	"NOAA,2020-01-15,1.0\n" +
	"#PLATFORM\n" +
	"ID,Name,Country,Type\n" +
	"001,TORONTO,CAN,STN\n" +
	"#TIMESTAMP\n" +
	"Date\n" +
	"2020-01-15\n" +
	"#LOCATION\n" +
	"Latitude,Longitude\n" +
	"43.6,-79.4\n" +
	"#INSTRUMENT\n" +
	"Name,Model,Number\n" +
	"ECC,6A,123\n" +
	"#PROFILE\n" +
	"Pressure\n" +
	"1000\n" +
	"500\n"

func newTestController(t *testing.T) (*Controller, *fakeRegistry, *fakeSearch) {
	t.Helper()
	cat := testCatalog(t)
	builder, err := report.NewBuilder(report.Options{Errors: cat.Errors, Now: func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }})
	require.NoError(t, err)
	reg := &fakeRegistry{existing: map[string][]registry.Record{}}
	search := &fakeSearch{}
	ctrl := &Controller{
		Catalog:  cat,
		Registry: reg,
		Search:   search,
		Prompter: xref.YesPrompter{},
		Builder:  builder,
		Now:      func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}
	return ctrl, reg, search
}

func TestRunAcceptsWellFormedFileInVerifyMode(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	outcome := ctrl.Run(context.Background(), "/incoming/file1.csv", []byte(sampleFile), ModeVerify)
	require.NoError(t, outcome.Err)
	require.True(t, outcome.Accepted)
	require.NotEmpty(t, outcome.RecordID)
}

func TestRunRejectsNonUTF8Input(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	outcome := ctrl.Run(context.Background(), "/incoming/bad.csv", []byte{0xff, 0xfe, 0xfd}, ModeVerify)
	require.Error(t, outcome.Err)
	require.False(t, outcome.Accepted)
}

func TestRunIngestModePersistsAndIndexes(t *testing.T) {
	ctrl, reg, search := newTestController(t)
	outcome := ctrl.Run(context.Background(), "/incoming/file1.csv", []byte(sampleFile), ModeIngest)
	require.NoError(t, outcome.Err)
	require.True(t, outcome.Accepted)
	_ = reg
	_, indexed, _ := search.GetRecordVersion(context.Background(), outcome.RecordID)
	require.True(t, indexed)
}

func TestRunRejectsDuplicateRecord(t *testing.T) {
	ctrl, reg, _ := newTestController(t)
	first := ctrl.Run(context.Background(), "/incoming/file1.csv", []byte(sampleFile), ModeIngest)
	require.True(t, first.Accepted)

	reg.existing[first.RecordID] = []registry.Record{{"urn": first.RecordID}}
	second := ctrl.Run(context.Background(), "/incoming/file2.csv", []byte(sampleFile), ModeIngest)
	require.Error(t, second.Err)
	require.False(t, second.Accepted)
}
