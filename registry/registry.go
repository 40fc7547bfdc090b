// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package registry defines the collaborator contracts the Cross-Reference
// Verifier (C7) and Pipeline Controller (C8) depend on: the relational
// registry of known entities, and the search index records are published
// to on successful ingest (§6). Concrete implementations live in
// store/registrypg and store/searchstub.
package registry

import "context"

// Record is a generic entity record: field name to string value. The
// registry contract deals in loosely-typed records because the entities
// it serves (Project, Dataset, Station, Instrument, Deployment,
// Contributor, Country) share no common Go struct, only the four
// operations below.
type Record map[string]string

// Registry is the relational registry collaborator contract (§6):
// distinct-value lookups for simple validation, single/composite-key
// lookups for cross-reference checks, and save/close for persistence.
type Registry interface {
	// QueryDistinct returns every distinct value an entity's field takes,
	// e.g. the set of known project identifiers.
	QueryDistinct(ctx context.Context, entity, field string) (map[string]bool, error)

	// QueryByField returns every record of entity whose field equals
	// value. Callers needing a unique hit inspect len(result).
	QueryByField(ctx context.Context, entity, field, value string) ([]Record, error)

	// QueryMultipleFields returns the (at most one) record of entity
	// matching every (field, value) pair in match, comparing the fields
	// named in caseInsensitive without regard to case.
	QueryMultipleFields(ctx context.Context, entity string, match map[string]string, caseInsensitive map[string]bool) (Record, bool, error)

	// Save inserts or updates a record of entity. Implementations key
	// updates off whatever identifier fields the entity's schema defines.
	Save(ctx context.Context, entity string, record Record) error

	// Close releases any session resources the registry is holding.
	Close() error
}

// SearchIndex is the search-index collaborator contract (§6).
type SearchIndex interface {
	// GetRecordVersion returns the data_generation_version currently
	// indexed for id, or ("", false, nil) if nothing is indexed yet.
	GetRecordVersion(ctx context.Context, id string) (string, bool, error)

	// IndexDataRecord publishes geoJSON (a geo_interface-shaped document)
	// under its record's identifier, overwriting whatever was indexed
	// before.
	IndexDataRecord(ctx context.Context, geoJSON map[string]any) error
}
