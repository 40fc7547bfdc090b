// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"woudc.io/ingest/catalog"
	"woudc.io/ingest/pipeline"
	"woudc.io/ingest/registry"
	"woudc.io/ingest/report"
	"woudc.io/ingest/store/registrypg"
	"woudc.io/ingest/store/searchstub"
	"woudc.io/ingest/store/waf"
	"woudc.io/ingest/xref"
)

type runFlags struct {
	lax         bool
	yes         bool
	dsn         string
	cloudSQL    bool
	workDir     string
	wafDir      string
	schemaPath  string
	tableDefs   string
	errorDefs   string
	parallelism int
}

func addRunFlags(cmd *cobra.Command) *runFlags {
	f := &runFlags{}
	cmd.Flags().BoolVar(&f.lax, "lax", false, "restrict validation to core metadata tables")
	cmd.Flags().BoolVar(&f.yes, "yes", false, "answer yes to deployment/instrument auto-insert prompts")
	cmd.Flags().StringVar(&f.dsn, "dsn", os.Getenv("WOUDC_REGISTRY_DSN"), "registry Postgres connection string")
	cmd.Flags().BoolVar(&f.cloudSQL, "cloudsql", false, "treat --dsn as a Cloud SQL instance connection name")
	cmd.Flags().StringVar(&f.workDir, "workdir", defaultWorkDir, "working directory for operator/run/email reports")
	cmd.Flags().StringVar(&f.wafDir, "waf", "", "Web-Accessible Folder root (ingest mode only)")
	cmd.Flags().StringVar(&f.schemaPath, "schema", "", "schema-of-schemas HCL document path")
	cmd.Flags().StringVar(&f.tableDefs, "tabledefs", "", "table-definition HCL document path")
	cmd.Flags().StringVar(&f.errorDefs, "errors", "", "error-definitions CSV path")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "max concurrent files (0 = GOMAXPROCS)")
	return f
}

func loadCatalog(f *runFlags) (*catalog.Catalog, error) {
	errFile, err := os.Open(f.errorDefs)
	if err != nil {
		return nil, fmt.Errorf("opening error-definitions file: %w", err)
	}
	defer errFile.Close()
	errs, err := catalog.LoadErrorCatalog(errFile)
	if err != nil {
		return nil, err
	}

	schemaSrc, err := os.ReadFile(f.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("reading schema-of-schemas document: %w", err)
	}
	tableDefSrc, err := os.ReadFile(f.tableDefs)
	if err != nil {
		return nil, fmt.Errorf("reading table-definition document: %w", err)
	}
	return catalog.LoadCatalog(schemaSrc, tableDefSrc, f.schemaPath, f.tableDefs, errs)
}

// controllerFactory mints one pipeline.Controller (and its own
// report.Builder, hence its own operator-report file descriptor) per
// call, sharing the heavier collaborators (catalog, registry connection
// pool, search index) across every instance it produces — the
// concurrency model of SPEC_FULL.md §5: each worker goroutine owns its
// Controller and Builder, but the registry and search index are safe for
// concurrent use and shared.
type controllerFactory struct {
	flags *runFlags
	mode  pipeline.Mode

	cat      *catalog.Catalog
	reg      registry.Registry
	search   registry.SearchIndex
	prompter xref.Prompter
	wafOut   pipeline.WAF
}

func newControllerFactory(ctx context.Context, f *runFlags, mode pipeline.Mode) (*controllerFactory, error) {
	cat, err := loadCatalog(f)
	if err != nil {
		return nil, err
	}

	var reg registry.Registry
	if f.dsn != "" {
		store, err := registrypg.Open(ctx, f.dsn, f.cloudSQL)
		if err != nil {
			return nil, err
		}
		reg = store
	}

	var prompter xref.Prompter = interactivePrompter{}
	if f.yes {
		prompter = xref.YesPrompter{}
	}

	var wafWriter pipeline.WAF
	if f.wafDir != "" && mode == pipeline.ModeIngest {
		wafWriter = &waf.Folder{Root: f.wafDir}
	}

	return &controllerFactory{
		flags:    f,
		mode:     mode,
		cat:      cat,
		reg:      reg,
		search:   searchstub.New(),
		prompter: prompter,
		wafOut:   wafWriter,
	}, nil
}

// New returns a fresh Controller with its own report.Builder. The
// returned close func flushes and closes that Builder only; the shared
// registry connection is released once, by Close, after every worker has
// finished.
func (cf *controllerFactory) New() (*pipeline.Controller, func() error, error) {
	var workDir report.WorkDir
	if cf.mode == pipeline.ModeIngest {
		wd, err := report.NewOSWorkDir(cf.flags.workDir)
		if err != nil {
			return nil, nil, err
		}
		workDir = wd
	}
	builder, err := report.NewBuilder(report.Options{WorkDir: workDir, Errors: cf.cat.Errors})
	if err != nil {
		return nil, nil, err
	}
	ctrl := &pipeline.Controller{
		Catalog:  cf.cat,
		Registry: cf.reg,
		Search:   cf.search,
		Prompter: cf.prompter,
		Builder:  builder,
		WAF:      cf.wafOut,
		Lax:      cf.flags.lax,
	}
	return ctrl, builder.Close, nil
}

// Close releases the shared registry connection, once all of the
// factory's Controllers have finished.
func (cf *controllerFactory) Close() error {
	if cf.reg != nil {
		return cf.reg.Close()
	}
	return nil
}

// interactivePrompter wraps promptui.Prompt for the deployment/instrument
// auto-insert confirmation (§4.7).
type interactivePrompter struct{}

func (interactivePrompter) Confirm(question string) (bool, error) {
	prompt := promptui.Prompt{Label: question, IsConfirm: true}
	_, err := prompt.Run()
	if err != nil {
		return false, nil // any non-confirmation (including Ctrl-C) is "no"
	}
	return true, nil
}

// collectFiles expands source into the list of files to process:
// source itself if it names a regular file, or every file beneath it
// (recursively) if it names a directory (§6's CLI surface).
func collectFiles(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{source}, nil
	}
	var files []string
	err = filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// summarize prints a pass/fail table for the batch, colored green/red.
func summarize(outcomes map[string]pipeline.Outcome) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Status", "Record"})
	for path, o := range outcomes {
		status := color.RedString("FAIL")
		if o.Accepted {
			status = color.GreenString("PASS")
		}
		table.Append([]string{path, status, o.RecordID})
	}
	table.Render()
}
