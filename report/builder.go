// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/extcsv"
)

// fileStatus is one line of a contributor's run-report block.
type fileStatus struct {
	pass     bool
	filepath string
}

// Builder is the Report Builder (C3). A Builder instance is scoped to one
// processing run (one call to an ingest/verify command); it is not safe
// for concurrent use by more than one pipeline.Controller, matching §5's
// "operator-report file (one descriptor per pipeline instance)".
type Builder struct {
	workDir WorkDir // nil means "no files written" (verify-only)
	errs    *catalog.ErrorCatalog
	now     func() time.Time

	runNumber int

	contributors map[string]string // case-folded/hyphen-stripped -> display form
	statusByName map[string][]fileStatus

	cur batch

	operatorFile       io.WriteCloser
	operatorFileHeader bool
}

// Options configures a new Builder.
type Options struct {
	// WorkDir is the processing run's working directory, or nil for a
	// verify-only run that must write no files.
	WorkDir WorkDir
	// Errors is the loaded Error Catalog (C2).
	Errors *catalog.ErrorCatalog
	// Run is the sequence number of this processing attempt, or 0 to
	// derive one from existing operator reports in WorkDir (§4.3).
	Run int
	// Now returns the current time; defaults to time.Now. Exposed for
	// deterministic tests.
	Now func() time.Time
}

// NewBuilder constructs a Builder per Options.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Errors == nil {
		return nil, fmt.Errorf("report: Errors (Error Catalog) is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	b := &Builder{
		workDir:      opts.WorkDir,
		errs:         opts.Errors,
		now:          now,
		contributors: map[string]string{"unknown": "UNKNOWN"},
		statusByName: map[string][]fileStatus{},
	}
	if opts.WorkDir == nil {
		b.runNumber = 0
	} else if opts.Run != 0 {
		b.runNumber = opts.Run
	} else {
		n, err := b.determineRunNumber()
		if err != nil {
			return nil, err
		}
		b.runNumber = n
	}
	return b, nil
}

var operatorReportPattern = regexp.MustCompile(`^operator-report-\d{4}-\d{2}-\d{2}-run(\d+)\.csv$`)

func (b *Builder) findOperatorReports() ([]string, error) {
	if b.workDir == nil {
		return nil, nil
	}
	names, err := b.workDir.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if operatorReportPattern.MatchString(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// determineRunNumber implements §4.3's run-number derivation: the max N
// across all operator-report-*-runN.csv files in the working directory,
// plus one. Idempotent with respect to a fresh Builder (§8).
func (b *Builder) determineRunNumber() (int, error) {
	names, err := b.findOperatorReports()
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, name := range names {
		m := operatorReportPattern.FindStringSubmatch(name)
		n, _ := strconv.Atoi(m[1])
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// RunNumber returns the run number this Builder resolved to.
func (b *Builder) RunNumber() int { return b.runNumber }

func (b *Builder) today() string {
	return b.now().Format("2006-01-02")
}

// OperatorReportPath returns the full path of the operator report this
// Builder writes to (or would write to, for a nil WorkDir).
func (b *Builder) OperatorReportPath() string {
	name := fmt.Sprintf("operator-report-%s-run%d.csv", b.today(), b.runNumber)
	if b.workDir == nil {
		return name
	}
	return b.workDir.Path(name)
}

// RunReportPath returns the full path of this run's run-report file.
func (b *Builder) RunReportPath() string {
	name := fmt.Sprintf("run%d", b.runNumber)
	if b.workDir == nil {
		return name
	}
	return b.workDir.Path(name)
}

// EmailReportPath returns the full path of this run's email digest.
func (b *Builder) EmailReportPath() string {
	name := fmt.Sprintf("failed-files-%s", b.today())
	if b.workDir == nil {
		return name
	}
	return b.workDir.Path(name)
}

// Add implements Sink: it formats code's message template, appends a
// Message to the current batch, and reports severity. An unrecognized
// code returns *catalog.ErrUnknownCode.
func (b *Builder) Add(code int, line *int, kwargs map[string]any) (string, bool, error) {
	msg, severe, err := b.errs.Format(code, kwargs)
	if err != nil {
		return "", false, err
	}
	sev := catalog.SeverityWarning
	if severe {
		sev = catalog.SeverityError
	}
	b.cur.errorType = append(b.cur.errorType, sev.String())
	b.cur.errorCode = append(b.cur.errorCode, code)
	b.cur.lineNumber = append(b.cur.lineNumber, line)
	b.cur.message = append(b.cur.message, msg)
	return msg, severe, nil
}

// loadProcessingResults transfers core file metadata from doc into the
// current batch, following §4.3/original report.py's
// _load_processing_results.
func (b *Builder) loadProcessingResults(filepath, contributor string, doc *extcsv.Document, outgoingPath, urn string) {
	type mapping struct {
		field, table, col string
		dst               *string
	}
	mappings := []mapping{
		{"Station Type", "PLATFORM", "Type", &b.cur.stationType},
		{"Station ID", "PLATFORM", "ID", &b.cur.stationID},
		{"Dataset", "CONTENT", "Category", &b.cur.dataset},
		{"Data Level", "CONTENT", "Level", &b.cur.dataLevel},
		{"Data Form", "CONTENT", "Form", &b.cur.dataForm},
		{"Agency", "DATA_GENERATION", "Agency", &b.cur.agency},
	}
	for _, m := range mappings {
		*m.dst = ""
		if doc == nil {
			continue
		}
		if tbl := doc.Table(m.table); tbl != nil {
			*m.dst = tbl.FieldString(m.col)
		}
	}
	b.cur.outgoingPath = outgoingPath
	b.cur.urn = urn
	b.cur.agency = contributor
	b.cur.incomingPath = filepath
	b.cur.filename = basename(filepath)
}

func basename(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// mergeContributor folds contributor's hyphen-stripped, case-folded form
// into the first display spelling seen for it (§4.3; SPEC_FULL.md §9).
func (b *Builder) mergeContributor(contributor string) string {
	key := normalizeAcronym(contributor)
	if existing, ok := b.contributors[key]; ok {
		return existing
	}
	b.contributors[key] = contributor
	return contributor
}

func normalizeAcronym(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

// RecordPassingFile writes out all warnings accumulated for filepath,
// which was accepted, along with metadata from doc and the persisted
// record id/outgoing path.
func (b *Builder) RecordPassingFile(filepath string, doc *extcsv.Document, outgoingPath, urn string) error {
	contributor := ""
	if doc != nil {
		if dg := doc.Table("DATA_GENERATION"); dg != nil {
			contributor = dg.FieldString("Agency")
		}
	}
	display := b.mergeContributor(contributor)
	b.loadProcessingResults(filepath, display, doc, outgoingPath, urn)
	b.cur.processingStatus = "P"
	b.statusByName[display] = append(b.statusByName[display], fileStatus{pass: true, filepath: filepath})
	return b.flush()
}

// RecordFailingFile writes out all warnings and errors accumulated for
// filepath, which was rejected. contributor is used verbatim if doc is
// unavailable (the file failed to parse).
func (b *Builder) RecordFailingFile(filepath, contributor string, doc *extcsv.Document) error {
	b.loadProcessingResults(filepath, contributor, doc, "", "")
	b.cur.processingStatus = "F"
	display := b.cur.agency
	b.statusByName[display] = append(b.statusByName[display], fileStatus{pass: false, filepath: filepath})
	return b.flush()
}

// flush writes the current batch to the operator and run reports, then
// resets it for the next file.
func (b *Builder) flush() error {
	if err := b.writeOperatorReport(); err != nil {
		return err
	}
	if err := b.writeRunReport(); err != nil {
		return err
	}
	b.cur.reset()
	return nil
}

// Close writes the run's email digest and releases the operator-report
// file handle. It is called once, after the last file of a run has been
// recorded.
func (b *Builder) Close() error {
	if err := b.writeEmailReport(); err != nil {
		return err
	}
	if b.operatorFile != nil {
		return b.operatorFile.Close()
	}
	return nil
}
