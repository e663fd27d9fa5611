//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LaunchETL.
//
// LaunchETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LaunchETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LaunchETL. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

type launchRow struct {
	ID         string
	Name       sql.NullString
	DateUTC    sql.NullString
	Success    sql.NullBool
	RocketName sql.NullString
	Details    sql.NullString
}

func openSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func queryLaunches(t *testing.T, db *sql.DB) map[string]launchRow {
	t.Helper()
	rows, err := db.Query("SELECT id, name, date_utc, success, rocket_name, details FROM launches")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]launchRow)
	for rows.Next() {
		var r launchRow
		require.NoError(t, rows.Scan(&r.ID, &r.Name, &r.DateUTC, &r.Success, &r.RocketName, &r.Details))
		out[r.ID] = r
	}
	require.NoError(t, rows.Err())
	return out
}

func loadAll(t *testing.T, path string, records []core.Record) error {
	t.Helper()
	writer, err := NewSQLWriter(WithDSN(path))
	require.NoError(t, err)

	ctx := context.Background()
	for _, record := range records {
		if err := writer.Write(ctx, record); err != nil {
			require.NoError(t, writer.Close())
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// TestSQLWriter_SQLiteLoad tests that every record lands in the launches table
func TestSQLWriter_SQLiteLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "spacex.db")

	require.NoError(t, loadAll(t, path, sampleLaunches()))

	got := queryLaunches(t, openSQLite(t, path))
	require.Len(t, got, 3)

	assert.Equal(t, "FalconSat", got["l1"].Name.String)
	assert.True(t, got["l1"].Success.Valid)
	assert.False(t, got["l1"].Success.Bool)
	assert.True(t, got["l2"].Success.Bool)
	assert.False(t, got["l2"].Details.Valid)
	assert.False(t, got["l3"].Success.Valid)
	assert.Equal(t, "Unknown", got["l3"].RocketName.String)
}

// TestSQLWriter_Idempotent tests that loading the same records twice keeps one row per id
func TestSQLWriter_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacex.db")

	require.NoError(t, loadAll(t, path, sampleLaunches()))
	require.NoError(t, loadAll(t, path, sampleLaunches()))

	assert.Len(t, queryLaunches(t, openSQLite(t, path)), 3)
}

// TestSQLWriter_UpsertReplaces tests that the latest write for an id wins
func TestSQLWriter_UpsertReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacex.db")

	require.NoError(t, loadAll(t, path, sampleLaunches()))

	updated := core.Record{"id": "l1", "name": "FalconSat-2", "date_utc": "2006-03-24T22:30:00.000Z", "success": true, "rocket_name": "Falcon 1", "details": nil}
	require.NoError(t, loadAll(t, path, []core.Record{updated, updated}))

	got := queryLaunches(t, openSQLite(t, path))
	require.Len(t, got, 3)
	assert.Equal(t, "FalconSat-2", got["l1"].Name.String)
	assert.True(t, got["l1"].Success.Bool)
	assert.False(t, got["l1"].Details.Valid)
}

// TestSQLWriter_InvalidKeyAbortsBatch tests that a bad id leaves no partial rows
func TestSQLWriter_InvalidKeyAbortsBatch(t *testing.T) {
	for name, badID := range map[string]interface{}{
		"nil":    nil,
		"number": 42.0,
		"empty":  "",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "spacex.db")
			records := sampleLaunches()
			records[1]["id"] = badID

			err := loadAll(t, path, records)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrPrecondition))

			var sqlErr *SQLWriterError
			require.True(t, errors.As(err, &sqlErr))
			assert.Equal(t, "validate", sqlErr.Op)

			db := openSQLite(t, path)
			var count int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM launches").Scan(&count))
			assert.Zero(t, count)
		})
	}
}

// TestSQLWriter_CloseWithoutFlushRollsBack tests that uncommitted rows are discarded
func TestSQLWriter_CloseWithoutFlushRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacex.db")

	writer, err := NewSQLWriter(WithDSN(path))
	require.NoError(t, err)
	for _, record := range sampleLaunches() {
		require.NoError(t, writer.Write(context.Background(), record))
	}
	require.NoError(t, writer.Close())
	assert.Equal(t, int64(1), writer.Stats().RollbackCount)

	db := openSQLite(t, path)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM launches").Scan(&count))
	assert.Zero(t, count)
}

// TestSQLWriter_CancelledRunIsNotCommitted tests that Flush honours the
// context the rows were written with
func TestSQLWriter_CancelledRunIsNotCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacex.db")

	writer, err := NewSQLWriter(WithDSN(path))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	for _, record := range sampleLaunches() {
		require.NoError(t, writer.Write(ctx, record))
	}
	cancel()

	err = writer.Flush()
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, core.ErrWrite))
	require.NoError(t, writer.Close())
	assert.Zero(t, writer.Stats().TransactionCount)

	db := openSQLite(t, path)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM launches").Scan(&count))
	assert.Zero(t, count)
}

// TestSQLWriter_ParentContext tests that a cancelled parent stops connecting
func TestSQLWriter_ParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSQLWriter(WithDSN(filepath.Join(t.TempDir(), "spacex.db")), WithSQLContext(ctx))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// TestSQLWriter_FlushCreatesEmptyTable tests the schema on an empty load
func TestSQLWriter_FlushCreatesEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacex.db")
	require.NoError(t, loadAll(t, path, nil))

	assert.Empty(t, queryLaunches(t, openSQLite(t, path)))
}

// TestSQLWriter_ErrorState tests that writes after a failure are refused
func TestSQLWriter_ErrorState(t *testing.T) {
	writer, err := NewSQLWriter(WithDSN(filepath.Join(t.TempDir(), "spacex.db")))
	require.NoError(t, err)
	defer writer.Close()

	require.Error(t, writer.Write(context.Background(), core.Record{"name": "no id"}))

	err = writer.Write(context.Background(), sampleLaunches()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error state")
	assert.Error(t, writer.Flush())
}

func TestNewSQLWriter_Validation(t *testing.T) {
	tests := map[string][]SQLWriterOption{
		"no dsn":      {WithDSN("")},
		"bad dialect": {WithDSN("x.db"), WithSQLDialect("oracle")},
		"bad table":   {WithDSN("x.db"), WithTableName("launches; DROP TABLE x")},
		"key not in":  {WithDSN("x.db"), WithKeyColumn("uuid")},
		"no columns":  {WithDSN("x.db"), WithColumns(nil)},
		"bad column":  {WithDSN("x.db"), WithColumns([]string{"id", "na me"})},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewSQLWriter(opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrPrecondition))
		})
	}
}

func TestSQLWriter_Queries(t *testing.T) {
	w := &SQLWriter{options: *(&SQLWriterOptions{}).withDefaults()}
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS launches (id TEXT PRIMARY KEY, name TEXT, date_utc TEXT, success BOOLEAN, rocket_name TEXT, details TEXT)",
		w.createTableQuery())
	assert.Equal(t,
		"INSERT OR REPLACE INTO launches (id, name, date_utc, success, rocket_name, details) VALUES (?, ?, ?, ?, ?, ?)",
		w.upsertQuery())

	w.options.Dialect = DialectPostgres
	assert.Equal(t,
		"INSERT INTO launches (id, name, date_utc, success, rocket_name, details) VALUES ($1, $2, $3, $4, $5, $6) "+
			"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, date_utc = EXCLUDED.date_utc, success = EXCLUDED.success, "+
			"rocket_name = EXCLUDED.rocket_name, details = EXCLUDED.details",
		w.upsertQuery())
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"sqlite":     DialectSQLite,
		"SQLite3":    DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}
