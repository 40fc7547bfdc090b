// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package searchstub is a minimal in-memory registry.SearchIndex
// reference implementation, sufficient for tests and for running the
// pipeline without a real search backend configured (§6).
package searchstub

import (
	"context"
	"fmt"
	"sync"
)

// Index is an in-memory SearchIndex keyed by record identifier.
type Index struct {
	mu      sync.Mutex
	records map[string]map[string]any
	version map[string]string
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		records: map[string]map[string]any{},
		version: map[string]string{},
	}
}

// GetRecordVersion implements registry.SearchIndex.
func (idx *Index) GetRecordVersion(_ context.Context, id string) (string, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	v, ok := idx.version[id]
	return v, ok, nil
}

// IndexDataRecord implements registry.SearchIndex.
func (idx *Index) IndexDataRecord(_ context.Context, geoJSON map[string]any) error {
	props, ok := geoJSON["properties"].(map[string]any)
	if !ok {
		return fmt.Errorf("searchstub: geoJSON document has no properties")
	}
	id, _ := props["urn"].(string)
	if id == "" {
		return fmt.Errorf("searchstub: geoJSON document has no urn property")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[id] = geoJSON
	if v, ok := props["version"].(string); ok {
		idx.version[id] = v
	}
	return nil
}

// Lookup returns the indexed document for id, for tests.
func (idx *Index) Lookup(id string) (map[string]any, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	rec, ok := idx.records[id]
	return rec, ok
}
