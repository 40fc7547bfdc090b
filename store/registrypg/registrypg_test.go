// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package registrypg

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"woudc.io/ingest/registry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestQueryDistinctUnknownEntity(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.QueryDistinct(context.Background(), "bogus", "acronym")
	require.Error(t, err)
}

func TestQueryDistinctCollectsValues(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"acronym"}).AddRow("NOAA").AddRow("MSC-ECCC")
	mock.ExpectQuery(`SELECT DISTINCT acronym FROM contributors`).WillReturnRows(rows)

	out, err := s.QueryDistinct(context.Background(), "contributor", "acronym")
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"NOAA": true, "MSC-ECCC": true}, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryByFieldScansRowsIntoRecords(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"name", "country"}).AddRow("TORONTO", "CAN")
	mock.ExpectQuery(`SELECT \* FROM stations WHERE id = \$1`).WithArgs("001").WillReturnRows(rows)

	out, err := s.QueryByField(context.Background(), "station", "id", "001")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, registry.Record{"name": "TORONTO", "country": "CAN"}, out[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryMultipleFieldsReturnsFalseWhenNoRowsMatch(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"acronym"})
	mock.ExpectQuery(`SELECT \* FROM contributors WHERE acronym = \$1 LIMIT 1`).WithArgs("BOGUS").WillReturnRows(rows)

	_, ok, err := s.QueryMultipleFields(context.Background(), "contributor", map[string]string{"acronym": "BOGUS"}, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryMultipleFieldsCaseInsensitiveUsesLower(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"acronym"}).AddRow("NOAA")
	mock.ExpectQuery(`SELECT \* FROM contributors WHERE lower\(acronym\) = lower\(\$1\) LIMIT 1`).
		WithArgs("noaa").WillReturnRows(rows)

	rec, ok, err := s.QueryMultipleFields(context.Background(), "contributor", map[string]string{"acronym": "noaa"}, map[string]bool{"acronym": true})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "NOAA", rec["acronym"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExecutesUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO stations`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Save(context.Background(), "station", registry.Record{"id": "001", "name": "TORONTO"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUnknownEntity(t *testing.T) {
	s, _ := newMockStore(t)
	err := s.Save(context.Background(), "bogus", registry.Record{"id": "1"})
	require.Error(t, err)
}

func TestCloseWithoutDialer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectClose()
	require.NoError(t, s.Close())
}
