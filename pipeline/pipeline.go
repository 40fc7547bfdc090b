// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package pipeline implements the Pipeline Controller (C8): the
// per-file orchestration of parse (C4), validate (C6), typecast (C5, run
// inside validate per §4.6), cross-reference (C7), and persistence,
// driving the Report Builder (C3) throughout (§4.8).
package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/extcsv"
	"woudc.io/ingest/registry"
	"woudc.io/ingest/report"
	"woudc.io/ingest/validate"
	"woudc.io/ingest/xref"
)

// Mode selects whether a successful Run persists its result.
type Mode int

const (
	// ModeIngest persists an accepted file to the registry, WAF, and
	// search index.
	ModeIngest Mode = iota
	// ModeVerify runs every check but stops before any persistence.
	ModeVerify
)

// ProcessingError is the Processing failure shape (§7): cross-reference
// or duplicate-identifier failure, reported by the controller after
// structural validation has already passed.
type ProcessingError struct {
	Reason string
}

func (e *ProcessingError) Error() string { return "pipeline: " + e.Reason }

// Outcome is the result of one Run.
type Outcome struct {
	Accepted bool
	RecordID string
	Err      error
}

// WAF copies an accepted file's bytes to the Web-Accessible Folder.
type WAF interface {
	Copy(ctx context.Context, recordID string, contents []byte) (outgoingPath string, err error)
}

// Controller orchestrates one file at a time against injected
// collaborators (no globals, per the Design Note cited in SPEC_FULL.md §2.1).
type Controller struct {
	Catalog  *catalog.Catalog
	Registry registry.Registry
	Search   registry.SearchIndex
	Prompter xref.Prompter
	Builder  *report.Builder
	WAF      WAF
	Now      func() time.Time
	// Lax restricts validation to core metadata tables (the CLI's --lax
	// flag, §6).
	Lax bool
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run processes one file: detect-text, parse, validate, cross-reference,
// and (in ModeIngest) persist. Every check runs even if an earlier one
// failed, so the operator report surfaces as many problems as possible
// in one pass (§4.7); the parser and core-metadata validation failures
// are the exceptions that abort early, per §7.
func (c *Controller) Run(ctx context.Context, path string, contents []byte, mode Mode) Outcome {
	if !utf8.Valid(contents) {
		_, _, _ = c.Builder.Add(1, nil, map[string]any{"path": path})
		_ = c.Builder.RecordFailingFile(path, "UNKNOWN", nil)
		return Outcome{Err: &ProcessingError{Reason: "not a valid UTF-8 text file"}}
	}

	doc, err := extcsv.Parse(contents, c.Builder)
	if err != nil {
		contributor := ""
		if doc != nil {
			contributor = doc.Table("DATA_GENERATION").FieldString("Agency")
		}
		_ = c.Builder.RecordFailingFile(path, contributor, doc)
		return Outcome{Err: err}
	}

	if verr := validate.Validate(doc, c.Catalog, c.Builder, validate.Options{Lax: c.Lax}); verr != nil {
		contributor := doc.Table("DATA_GENERATION").FieldString("Agency")
		_ = c.Builder.RecordFailingFile(path, contributor, doc)
		return Outcome{Err: verr}
	}

	ok := c.crossReference(ctx, doc)

	contributor := doc.Table("DATA_GENERATION").FieldString("Agency")
	if !ok {
		_ = c.Builder.RecordFailingFile(path, contributor, doc)
		return Outcome{Err: &ProcessingError{Reason: "cross-reference checks failed"}}
	}

	recordID := identifierFor(doc)
	existing, qerr := c.Registry.QueryByField(ctx, "data_record", "urn", recordID)
	if qerr == nil && len(existing) > 0 {
		_, _, _ = c.Builder.Add(209, nil, map[string]any{"urn": recordID})
		_ = c.Builder.RecordFailingFile(path, contributor, doc)
		return Outcome{Err: &ProcessingError{Reason: "data exists"}, RecordID: recordID}
	}

	if mode == ModeVerify {
		_ = c.Builder.RecordPassingFile(path, doc, "", recordID)
		return Outcome{Accepted: true, RecordID: recordID}
	}

	outgoingPath, err := c.persist(ctx, recordID, doc, contents)
	if err != nil {
		_ = c.Builder.RecordFailingFile(path, contributor, doc)
		return Outcome{Err: err}
	}

	_ = c.Builder.RecordPassingFile(path, doc, outgoingPath, recordID)
	return Outcome{Accepted: true, RecordID: recordID}
}

// crossReference runs every Cross-Reference Verifier check against doc,
// accumulating failures but never stopping early (§4.8).
func (c *Controller) crossReference(ctx context.Context, doc *extcsv.Document) bool {
	v := &xref.Verifier{Registry: c.Registry, Catalog: c.Catalog, Prompter: c.Prompter, Sink: c.Builder, Now: c.Now}

	category := doc.Table("CONTENT").FieldString("Category")
	station := doc.Table("PLATFORM").FieldString("ID")
	fileDate := doc.Table("TIMESTAMP").FieldString("Date")
	startDate := c.now().Format("2006-01-02")

	ok := true
	ok = v.CheckProject(ctx, doc) && ok
	ok = v.CheckDataset(ctx, doc) && ok
	ok = v.CheckContentConsistency(doc, category) && ok
	ok = v.CheckDataGenerationConsistency(doc, startDate) && ok
	ok = v.CheckContributor(ctx, doc) && ok
	ok = v.CheckStation(ctx, doc) && ok
	ok = v.CheckDeployment(ctx, doc, fileDate) && ok
	instrument, instrumentOK := v.CheckInstrument(ctx, doc, station, category)
	ok = instrumentOK && ok
	ok = v.CheckLocation(doc, instrument) && ok
	return ok
}

// persist saves doc to the registry, copies contents to the WAF, and
// indexes the record, overwriting the search index only when the
// incoming data_generation_version strictly exceeds the indexed one
// (§4.8).
func (c *Controller) persist(ctx context.Context, recordID string, doc *extcsv.Document, contents []byte) (string, error) {
	rec := registry.Record{
		"urn":      recordID,
		"category": doc.Table("CONTENT").FieldString("Category"),
		"agency":   doc.Table("DATA_GENERATION").FieldString("Agency"),
		"station":  doc.Table("PLATFORM").FieldString("ID"),
	}
	if err := c.Registry.Save(ctx, "data_record", rec); err != nil {
		return "", err
	}

	outgoingPath := ""
	if c.WAF != nil {
		p, err := c.WAF.Copy(ctx, recordID, contents)
		if err != nil {
			return "", err
		}
		outgoingPath = p
	}

	version := doc.Table("DATA_GENERATION").FieldString("Version")
	if c.Search != nil {
		indexed, has, _ := c.Search.GetRecordVersion(ctx, recordID)
		newer := !has || version > indexed
		if has {
			nv, nerr := strconv.ParseFloat(version, 64)
			iv, ierr := strconv.ParseFloat(indexed, 64)
			if nerr == nil && ierr == nil {
				newer = nv > iv
			}
		}
		if newer {
			_ = c.Search.IndexDataRecord(ctx, geoInterface(recordID, doc))
		}
	}
	return outgoingPath, nil
}

// identifierFor computes the registry identifier used to reject
// duplicates: agency, project, dataset, station, timestamp joined
// stably, matching the original's URN-style composite key.
func identifierFor(doc *extcsv.Document) string {
	fields := []string{
		doc.Table("DATA_GENERATION").FieldString("Agency"),
		doc.Table("CONTENT").FieldString("Class"),
		doc.Table("CONTENT").FieldString("Category"),
		doc.Table("PLATFORM").FieldString("ID"),
		doc.Table("TIMESTAMP").FieldString("Date"),
	}
	return strings.Join(fields, ":")
}

func geoInterface(recordID string, doc *extcsv.Document) map[string]any {
	lat := doc.Table("LOCATION").FieldString("Latitude")
	lon := doc.Table("LOCATION").FieldString("Longitude")
	return map[string]any{
		"type": "Feature",
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []string{lon, lat},
		},
		"properties": map[string]any{
			"urn":     recordID,
			"station": doc.Table("PLATFORM").FieldString("ID"),
			"dataset": doc.Table("CONTENT").FieldString("Category"),
			"version": doc.Table("DATA_GENERATION").FieldString("Version"),
		},
	}
}
