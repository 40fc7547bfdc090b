// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package registrypg is the reference registry.Registry implementation,
// backed by PostgreSQL via database/sql and jackc/pgx's stdlib driver
// (§6, SPEC_FULL.md §2.2).
package registrypg

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"

	"woudc.io/ingest/registry"
)

// entityTables maps the registry's logical entity names to the physical
// table that stores them. Every table is expected to carry the columns
// its callers reference; schema migration is out of scope for this
// package (§1's Non-goals carry unchanged).
var entityTables = map[string]string{
	"project":     "projects",
	"dataset":     "datasets",
	"contributor": "contributors",
	"station":     "stations",
	"deployment":  "deployments",
	"instrument":  "instruments",
	"data_record": "data_records",
}

// Store is the reference registry.Registry implementation.
type Store struct {
	db     *sql.DB
	dialer *cloudsqlconn.Dialer // non-nil only when opened against Cloud SQL
}

// Open connects to dsn, a standard postgres:// connection string, or a
// Cloud SQL instance connection name (project:region:instance) when
// cloudSQL is true, in which case dialing goes through
// cloudsqlconn.Dialer instead of a direct TCP connection.
func Open(ctx context.Context, dsn string, cloudSQL bool) (*Store, error) {
	if !cloudSQL {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("registrypg: open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("registrypg: ping: %w", err)
		}
		return &Store{db: db}, nil
	}
	return openCloudSQL(ctx, dsn)
}

// openCloudSQL wires cloudsqlconn.Dialer in front of the pgx stdlib
// driver via a custom pgx.ConnConfig.DialFunc, the standard NewDialer +
// DialFunc pattern (SPEC_FULL.md §2.2).
func openCloudSQL(ctx context.Context, dsn string) (*Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("registrypg: parsing cloudsql dsn: %w", err)
	}
	instanceConnName := u.Host + u.Path
	user := u.User.Username()
	pass, _ := u.User.Password()
	dbname := strings.TrimPrefix(u.Path, "/")

	dialer, err := cloudsqlconn.NewDialer(ctx)
	if err != nil {
		return nil, fmt.Errorf("registrypg: cloudsqlconn dialer: %w", err)
	}

	connString := fmt.Sprintf("user=%s password=%s dbname=%s sslmode=disable", user, pass, dbname)
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("registrypg: parsing pgx config: %w", err)
	}
	config.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instanceConnName)
	}

	db := stdlib.OpenDB(*config)
	if err := db.PingContext(ctx); err != nil {
		dialer.Close()
		return nil, fmt.Errorf("registrypg: ping: %w", err)
	}
	return &Store{db: db, dialer: dialer}, nil
}

func (s *Store) tableFor(entity string) (string, error) {
	table, ok := entityTables[entity]
	if !ok {
		return "", fmt.Errorf("registrypg: unknown entity %q", entity)
	}
	return table, nil
}

// QueryDistinct implements registry.Registry.
func (s *Store) QueryDistinct(ctx context.Context, entity, field string) (map[string]bool, error) {
	table, err := s.tableFor(entity)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s", field, table))
	if err != nil {
		return nil, fmt.Errorf("registrypg: query_distinct %s.%s: %w", entity, field, err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// QueryByField implements registry.Registry.
func (s *Store) QueryByField(ctx context.Context, entity, field, value string) ([]registry.Record, error) {
	table, err := s.tableFor(entity)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field), value)
	if err != nil {
		return nil, fmt.Errorf("registrypg: query_by_field %s.%s: %w", entity, field, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// QueryMultipleFields implements registry.Registry.
func (s *Store) QueryMultipleFields(ctx context.Context, entity string, match map[string]string, caseInsensitive map[string]bool) (registry.Record, bool, error) {
	table, err := s.tableFor(entity)
	if err != nil {
		return nil, false, err
	}
	var clauses []string
	var args []any
	i := 1
	for field, value := range match {
		col := field
		arg := value
		if caseInsensitive[field] {
			clauses = append(clauses, fmt.Sprintf("lower(%s) = lower($%d)", col, i))
		} else {
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, i))
		}
		args = append(args, arg)
		i++
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", table, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("registrypg: query_multiple_fields %s: %w", entity, err)
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// Save implements registry.Registry with an upsert keyed on whatever
// single identifier field the record carries under "id", inserting a new
// row when none match.
func (s *Store) Save(ctx context.Context, entity string, record registry.Record) error {
	table, err := s.tableFor(entity)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(record))
	placeholders := make([]string, 0, len(record))
	updates := make([]string, 0, len(record))
	args := make([]any, 0, len(record))
	i := 1
	for k, v := range record {
		cols = append(cols, k)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", k, k))
		args = append(args, v)
		i++
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)
	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("registrypg: save %s: %w", entity, err)
	}
	return nil
}

// Close implements registry.Registry.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.dialer != nil {
		if derr := s.dialer.Close(); err == nil {
			err = derr
		}
	}
	return err
}

func scanRecords(rows *sql.Rows) ([]registry.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []registry.Record
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := registry.Record{}
		for i, c := range cols {
			rec[c] = raw[i].String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
