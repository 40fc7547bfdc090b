// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package xref implements the Cross-Reference Verifier (C7): a set of
// independent checks against the relational registry, each appending its
// own diagnostics and reporting pass/fail, run to completion regardless
// of earlier failures so a file's operator report surfaces every problem
// in one pass (§4.7, §4.8).
package xref

import (
	"context"
	"strconv"
	"strings"
	"time"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/extcsv"
	"woudc.io/ingest/registry"
	"woudc.io/ingest/report"
	"woudc.io/ingest/typecast"
)

// Prompter asks the operator a yes/no question, used for the
// deployment/instrument auto-insert confirmations (§4.7).
type Prompter interface {
	Confirm(question string) (bool, error)
}

// YesPrompter always confirms; it backs the --yes CLI flag.
type YesPrompter struct{}

func (YesPrompter) Confirm(string) (bool, error) { return true, nil }

// Verifier runs the Cross-Reference Verifier's checks against one parsed
// document, against a shared Registry.
type Verifier struct {
	Registry registry.Registry
	Catalog  *catalog.Catalog
	Prompter Prompter
	Sink     report.Sink
	Now      func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// stringField returns table.Field's first raw/typed value as a string,
// or "" if the table or field is absent.
func stringField(doc *extcsv.Document, table, field string) string {
	t := doc.Table(table)
	if t == nil {
		return ""
	}
	return t.FieldString(field)
}

func setField(doc *extcsv.Document, table, field, value string) {
	t := doc.Table(table)
	if t == nil {
		return
	}
	col := t.Field(field)
	if col == nil {
		n := t.Rows()
		if n == 0 {
			n = 1
		}
		t.InsertField(field, n)
		col = t.Field(field)
	}
	if col.Scalar != nil {
		*col.Scalar = typecast.Cell{Kind: typecast.KindString, Str: value}
		return
	}
	if len(col.Raw) > 0 {
		col.Raw[0] = value
	} else if len(col.Typed) > 0 {
		col.Typed[0] = typecast.Cell{Kind: typecast.KindString, Str: value}
	}
}

// CheckProject verifies CONTENT.Class against the registry's distinct
// project identifiers (§4.7).
func (v *Verifier) CheckProject(ctx context.Context, doc *extcsv.Document) bool {
	class := stringField(doc, "CONTENT", "Class")
	if class == "" {
		class = "WOUDC"
		setField(doc, "CONTENT", "Class", class)
		v.Sink.Add(52, nil, map[string]any{"value": class})
	}
	known, err := v.Registry.QueryDistinct(ctx, "project", "acronym")
	if err != nil || !known[class] {
		v.Sink.Add(53, nil, map[string]any{"project": class})
		return false
	}
	return true
}

// CheckDataset verifies CONTENT.Category against the registry's known
// dataset identifiers (§4.7).
func (v *Verifier) CheckDataset(ctx context.Context, doc *extcsv.Document) bool {
	category := stringField(doc, "CONTENT", "Category")
	known, err := v.Registry.QueryDistinct(ctx, "dataset", "acronym")
	if err != nil || !known[category] {
		v.Sink.Add(56, nil, map[string]any{"dataset": category})
		return false
	}
	return true
}

// CheckContributor verifies the composite Agency:Class identifier and
// writes back the registry's canonical-case agency spelling (§4.7).
func (v *Verifier) CheckContributor(ctx context.Context, doc *extcsv.Document) bool {
	agency := stringField(doc, "DATA_GENERATION", "Agency")
	class := stringField(doc, "CONTENT", "Class")
	rec, ok, err := v.Registry.QueryMultipleFields(ctx, "contributor",
		map[string]string{"acronym": agency, "project": class},
		map[string]bool{"acronym": true})
	if err != nil || !ok {
		v.Sink.Add(127, nil, map[string]any{"agency": agency, "project": class})
		return false
	}
	setField(doc, "DATA_GENERATION", "Agency", rec["acronym"])
	return true
}

// CheckStation verifies PLATFORM.ID/Type/Name/Country against the
// registry, rewriting legacy/missing ship country codes to XY and
// correcting canonical name/country on a mismatch (§4.7).
func (v *Verifier) CheckStation(ctx context.Context, doc *extcsv.Document) bool {
	id := stringField(doc, "PLATFORM", "ID")
	stype := strings.ToUpper(stringField(doc, "PLATFORM", "Type"))
	name := stringField(doc, "PLATFORM", "Name")
	country := stringField(doc, "PLATFORM", "Country")

	recs, err := v.Registry.QueryByField(ctx, "station", "woudc_id", id)
	if err != nil || len(recs) == 0 {
		v.Sink.Add(129, nil, map[string]any{"station": id})
		return false
	}
	rec := recs[0]

	ok := true
	if stype != "STN" && stype != "SHP" {
		v.Sink.Add(128, nil, map[string]any{"type": stype})
		ok = false
	}
	if stype == "SHP" && (country == "" || isLegacyCountry(country)) {
		country = "XY"
		setField(doc, "PLATFORM", "Country", country)
		v.Sink.Add(105, nil, map[string]any{"station": id})
	}
	if rec["name"] != "" && !strings.EqualFold(rec["name"], name) {
		v.Sink.Add(130, nil, map[string]any{"station": id, "expected": rec["name"], "got": name})
		setField(doc, "PLATFORM", "Name", rec["name"])
	}
	if rec["country"] != "" && !strings.EqualFold(rec["country"], country) {
		v.Sink.Add(131, nil, map[string]any{"station": id, "expected": rec["country"], "got": country})
		setField(doc, "PLATFORM", "Country", rec["country"])
	}
	return ok
}

func isLegacyCountry(code string) bool {
	return strings.HasSuffix(strings.ToUpper(code), "IW")
}

// CheckDeployment verifies the composite PLATFORM.ID:Agency:Class
// deployment, extending its date range or, on a prompted confirmation,
// inserting a new deployment spanning the file's date (§4.7).
func (v *Verifier) CheckDeployment(ctx context.Context, doc *extcsv.Document, fileDate string) bool {
	station := stringField(doc, "PLATFORM", "ID")
	agency := stringField(doc, "DATA_GENERATION", "Agency")
	class := stringField(doc, "CONTENT", "Class")

	rec, ok, err := v.Registry.QueryMultipleFields(ctx, "deployment",
		map[string]string{"station": station, "agency": agency, "project": class}, nil)
	if err == nil && ok {
		start, end := rec["start_date"], rec["end_date"]
		changed := false
		if start == "" || fileDate < start {
			start = fileDate
			changed = true
		}
		if end == "" || fileDate > end {
			end = fileDate
			changed = true
		}
		if changed {
			rec["start_date"], rec["end_date"] = start, end
			_ = v.Registry.Save(ctx, "deployment", rec)
		}
		return true
	}

	confirmed, perr := v.Prompter.Confirm("create deployment for " + station + ":" + agency + ":" + class + "?")
	if perr == nil && confirmed {
		newRec := registry.Record{
			"station": station, "agency": agency, "project": class,
			"start_date": fileDate, "end_date": fileDate,
		}
		if err := v.Registry.Save(ctx, "deployment", newRec); err == nil {
			v.Sink.Add(202, nil, map[string]any{"station": station, "agency": agency})
			return true
		}
	}
	v.Sink.Add(65, nil, map[string]any{"station": station, "agency": agency, "project": class})
	return false
}

// CheckInstrument verifies the composite Name:Model:Serial:Station:Dataset
// identifier, normalising UNKNOWN/N-A spellings, retrying with a
// zero-stripped serial, and auto-inserting a new serial/location pairing
// for an otherwise-known instrument (§4.7). On success it also returns the
// matched (or newly inserted) registry record, so its recorded coordinates
// can feed CheckLocation's drift comparison.
func (v *Verifier) CheckInstrument(ctx context.Context, doc *extcsv.Document, station, dataset string) (registry.Record, bool) {
	name := normalizeUnknown(stringField(doc, "INSTRUMENT", "Name"))
	model := normalizeUnknown(stringField(doc, "INSTRUMENT", "Model"))
	serial := stringField(doc, "INSTRUMENT", "Number")

	if name == "" {
		v.Sink.Add(72, nil, map[string]any{"field": "Name"})
		return nil, false
	}

	match := func(serial string) (registry.Record, bool) {
		rec, ok, err := v.Registry.QueryMultipleFields(ctx, "instrument",
			map[string]string{"name": name, "model": model, "serial": serial, "station": station, "dataset": dataset},
			map[string]bool{"name": true, "model": true, "serial": true})
		return rec, err == nil && ok
	}

	if rec, ok := match(serial); ok {
		setField(doc, "INSTRUMENT", "Name", rec["name"])
		setField(doc, "INSTRUMENT", "Model", rec["model"])
		return rec, true
	}
	stripped := strings.TrimLeft(serial, "0")
	if stripped == "" {
		stripped = "0"
	}
	if rec, ok := match(stripped); ok {
		setField(doc, "INSTRUMENT", "Name", rec["name"])
		setField(doc, "INSTRUMENT", "Model", rec["model"])
		return rec, true
	}

	if _, ok, err := v.Registry.QueryMultipleFields(ctx, "instrument",
		map[string]string{"name": name, "model": model, "station": station, "dataset": dataset},
		map[string]bool{"name": true, "model": true}); err == nil && ok {
		lat := stringField(doc, "LOCATION", "Latitude")
		lon := stringField(doc, "LOCATION", "Longitude")
		height := stringField(doc, "LOCATION", "Height")
		newRec := registry.Record{
			"name": name, "model": model, "serial": serial,
			"station": station, "dataset": dataset,
			"latitude": lat, "longitude": lon, "height": height,
		}
		if err := v.Registry.Save(ctx, "instrument", newRec); err == nil {
			v.Sink.Add(201, nil, map[string]any{"name": name, "serial": serial})
			return newRec, true
		}
	}
	v.Sink.Add(139, nil, map[string]any{"name": name, "model": model, "serial": serial})
	return nil, false
}

func normalizeUnknown(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNKNOWN", "N/A", "":
		return "UNKNOWN"
	default:
		return s
	}
}

// CheckLocation verifies LOCATION.Latitude/Longitude/Height ranges and,
// when an instrument record was found, how far they drift from its
// recorded coordinates (§4.7).
func (v *Verifier) CheckLocation(doc *extcsv.Document, instrument registry.Record) bool {
	ok := true
	lat, err := strconv.ParseFloat(stringField(doc, "LOCATION", "Latitude"), 64)
	if err != nil {
		v.Sink.Add(75, nil, map[string]any{"field": "Latitude"})
		ok = false
	}
	lon, err2 := strconv.ParseFloat(stringField(doc, "LOCATION", "Longitude"), 64)
	if err2 != nil {
		v.Sink.Add(75, nil, map[string]any{"field": "Longitude"})
		ok = false
	}
	if err == nil && (lat < -90 || lat > 90) {
		v.Sink.Add(76, nil, map[string]any{"field": "Latitude", "value": lat})
	}
	if err2 == nil && (lon < -180 || lon > 180) {
		v.Sink.Add(76, nil, map[string]any{"field": "Longitude", "value": lon})
	}
	heightRaw := stringField(doc, "LOCATION", "Height")
	height, herr := strconv.ParseFloat(heightRaw, 64)
	haveHeight := herr == nil
	if heightRaw != "" {
		if haveHeight {
			if height < -50 || height > 5100 {
				v.Sink.Add(76, nil, map[string]any{"field": "Height", "value": height})
			}
		} else {
			v.Sink.Add(75, nil, map[string]any{"field": "Height"})
		}
	}

	if instrument != nil {
		if iLat, e := strconv.ParseFloat(instrument["latitude"], 64); e == nil && err == nil && absf(iLat-lat) > 1 {
			v.Sink.Add(77, nil, map[string]any{"field": "Latitude"})
		}
		if iLon, e := strconv.ParseFloat(instrument["longitude"], 64); e == nil && err2 == nil && absf(iLon-lon) > 1 {
			v.Sink.Add(77, nil, map[string]any{"field": "Longitude"})
		}
		if iHeight, e := strconv.ParseFloat(instrument["height"], 64); e == nil && haveHeight && absf(iHeight-height) > 1 {
			v.Sink.Add(77, nil, map[string]any{"field": "Height"})
		}
	}
	return ok
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// categoryHasLevel reports whether level is a data level registered for
// category in the Schema Catalog, comparing numerically ("1" and "1.0"
// name the same level) since CONTENT.Level and a catalog's dataset labels
// aren't guaranteed to share a string format. A Verifier with no Catalog,
// or a category absent from it, leaves this check a no-op: that case is
// already covered by CheckDataset.
func (v *Verifier) categoryHasLevel(category, level string) bool {
	if v.Catalog == nil {
		return true
	}
	byLevel, ok := v.Catalog.Datasets[category]
	if !ok {
		return true
	}
	want, err := strconv.ParseFloat(level, 64)
	if err != nil {
		return true
	}
	for k := range byLevel {
		if got, err := strconv.ParseFloat(k, 64); err == nil && got == want {
			return true
		}
	}
	return false
}

// CheckContentConsistency repairs/validates CONTENT.Level and
// CONTENT.Form defaults and numeric formatting (§4.7).
func (v *Verifier) CheckContentConsistency(doc *extcsv.Document, category string) bool {
	ok := true
	level := stringField(doc, "CONTENT", "Level")
	if level == "" {
		level = "1.0"
		if category == "UmkehrN14" && doc.Table("C_PROFILE") != nil {
			level = "2.0"
			v.Sink.Add(59, nil, map[string]any{"level": level})
		} else {
			v.Sink.Add(58, nil, map[string]any{"level": level})
		}
		setField(doc, "CONTENT", "Level", level)
	} else if _, err := strconv.ParseFloat(level, 64); err != nil {
		if repaired, rerr := strconv.ParseFloat(strings.ReplaceAll(level, ",", "."), 64); rerr == nil {
			level = strconv.FormatFloat(repaired, 'f', -1, 64)
			setField(doc, "CONTENT", "Level", level)
			v.Sink.Add(57, nil, map[string]any{"level": level})
		} else {
			v.Sink.Add(60, nil, map[string]any{"level": level})
			ok = false
		}
	}

	if ok && !v.categoryHasLevel(category, level) {
		v.Sink.Add(60, nil, map[string]any{"level": level, "category": category})
		ok = false
	}

	form := stringField(doc, "CONTENT", "Form")
	if form != "" {
		if _, err := strconv.Atoi(form); err != nil {
			if f, ferr := strconv.ParseFloat(form, 64); ferr == nil {
				form = strconv.Itoa(int(f))
				setField(doc, "CONTENT", "Form", form)
				v.Sink.Add(61, nil, map[string]any{"form": form})
			} else {
				v.Sink.Add(62, nil, map[string]any{"form": form})
				ok = false
			}
		}
	}
	return ok
}

// CheckDataGenerationConsistency repairs/validates DATA_GENERATION.Date
// (defaulting to startDate) and Version (§4.7).
func (v *Verifier) CheckDataGenerationConsistency(doc *extcsv.Document, startDate string) bool {
	ok := true
	date := stringField(doc, "DATA_GENERATION", "Date")
	if date == "" {
		setField(doc, "DATA_GENERATION", "Date", startDate)
		v.Sink.Add(63, nil, map[string]any{"date": startDate})
	}

	version := stringField(doc, "DATA_GENERATION", "Version")
	if version == "" {
		return ok
	}
	f, err := strconv.ParseFloat(version, 64)
	if err != nil {
		v.Sink.Add(68, nil, map[string]any{"version": version})
		return false
	}
	if f < 0 || f > 20 {
		v.Sink.Add(66, nil, map[string]any{"version": version})
	}
	if f == float64(int(f)) {
		normalized := strconv.FormatFloat(f, 'f', 1, 64)
		setField(doc, "DATA_GENERATION", "Version", normalized)
		v.Sink.Add(67, nil, map[string]any{"version": normalized})
	}
	return ok
}
