// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"io"
	"os"
	"path/filepath"
)

// WorkDir abstracts the processing run's working directory so tests can
// substitute an in-memory filesystem instead of touching disk, and so a
// nil WorkDir can stand in for "no files written" (verify-only runs, per
// §4.3's "a null working directory means ... for verify-only
// invocations").
type WorkDir interface {
	// List returns the names of files directly inside the directory.
	List() ([]string, error)
	// Create opens name (relative to the directory) for writing, creating
	// or truncating it.
	Create(name string) (io.WriteCloser, error)
	// Read returns the full contents of name.
	Read(name string) ([]byte, error)
	// Path returns the full path to name, for display purposes
	// (Incoming/Outgoing Path fields, etc.).
	Path(name string) string
}

// osWorkDir is the default WorkDir, backed by the real filesystem.
type osWorkDir struct {
	root string
}

// NewOSWorkDir returns a WorkDir rooted at dir, creating it if necessary.
func NewOSWorkDir(dir string) (WorkDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &osWorkDir{root: dir}, nil
}

func (d *osWorkDir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d *osWorkDir) Create(name string) (io.WriteCloser, error) {
	return os.Create(filepath.Join(d.root, name))
}

func (d *osWorkDir) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.root, name))
}

func (d *osWorkDir) Path(name string) string {
	return filepath.Join(d.root, name)
}
