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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"

	"github.com/aaronlmathis/launchetl/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements a SQL reader that streams the rows of a query as records.
// It reads back the launches table written by writers.SQLWriter, on SQLite or PostgreSQL.

// SQLReaderError provides structured error information for SQL reader operations
type SQLReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *SQLReaderError) Error() string {
	return fmt.Sprintf("sql reader %s: %v", e.Op, e.Err)
}

func (e *SQLReaderError) Unwrap() error {
	return e.Err
}

// SQLReaderStats holds statistics about the SQL reader's performance
type SQLReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ConnectionTime  time.Duration
	NullValueCounts map[string]int64
}

// SQLReaderOptions configures the SQL reader
type SQLReaderOptions struct {
	Driver       string        // database/sql driver name: "sqlite" or "postgres"
	DSN          string        // Database connection string or SQLite file path
	Query        string        // SQL query to execute
	Params       []interface{} // Optional query parameters
	QueryTimeout time.Duration // Connect and query timeout
}

// SQLReaderOption represents a configuration function for SQLReaderOptions
type SQLReaderOption func(*SQLReaderOptions)

// WithSQLReaderDriver sets the driver name.
func WithSQLReaderDriver(driver string) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.Driver = driver
	}
}

// WithSQLReaderDSN sets the connection string.
func WithSQLReaderDSN(dsn string) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.DSN = dsn
	}
}

// WithSQLReaderQuery sets the SQL query and optional parameters.
func WithSQLReaderQuery(query string, params ...interface{}) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.Query = query
		opts.Params = append([]interface{}(nil), params...)
	}
}

// WithSQLReaderTimeout sets the connect and query timeout.
func WithSQLReaderTimeout(timeout time.Duration) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableQuery builds a SELECT of columns from table ordered by the first
// column. Identifiers are validated, not quoted.
func TableQuery(table string, columns ...string) (string, error) {
	if !identifierPattern.MatchString(table) {
		return "", fmt.Errorf("%w: invalid table name %q", core.ErrPrecondition, table)
	}
	if len(columns) == 0 {
		return fmt.Sprintf("SELECT * FROM %s", table), nil
	}
	for _, column := range columns {
		if !identifierPattern.MatchString(column) {
			return "", fmt.Errorf("%w: invalid column name %q", core.ErrPrecondition, column)
		}
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(columns, ", "), table, columns[0]), nil
}

// SQLReader implements core.DataSource for SQL query results.
type SQLReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	cancel      context.CancelFunc
	columnNames []string
	columnTypes []*sql.ColumnType
	values      []interface{}
	scanBuffer  []interface{}
	stats       SQLReaderStats
	finished    bool
}

// NewSQLReader connects and executes the query. Rows are streamed by Read.
func NewSQLReader(options ...SQLReaderOption) (*SQLReader, error) {
	opts := &SQLReaderOptions{
		Driver:       "sqlite",
		QueryTimeout: 30 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}

	if opts.DSN == "" {
		return nil, &SQLReaderError{Op: "validate", Err: fmt.Errorf("%w: dsn is required", core.ErrPrecondition)}
	}
	if opts.Query == "" {
		return nil, &SQLReaderError{Op: "validate", Err: fmt.Errorf("%w: query is required", core.ErrPrecondition)}
	}

	start := time.Now()
	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, &SQLReaderError{Op: "connect", Err: fmt.Errorf("%w: %w", core.ErrNetwork, err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.QueryTimeout)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		_ = db.Close()
		return nil, &SQLReaderError{Op: "ping", Err: fmt.Errorf("%w: %w", core.ErrNetwork, err)}
	}

	reader := &SQLReader{
		db:     db,
		cancel: cancel,
		stats: SQLReaderStats{
			ConnectionTime:  time.Since(start),
			NullValueCounts: make(map[string]int64),
		},
	}

	if err := reader.executeQuery(ctx, opts.Query, opts.Params); err != nil {
		_ = reader.Close()
		return nil, err
	}
	return reader, nil
}

func (r *SQLReader) executeQuery(ctx context.Context, query string, params []interface{}) error {
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return &SQLReaderError{Op: "query", Err: fmt.Errorf("%w: %w", core.ErrParse, err)}
	}
	r.rows = rows
	r.stats.QueryDuration = time.Since(start)

	if r.columnNames, err = rows.Columns(); err != nil {
		return &SQLReaderError{Op: "columns", Err: err}
	}
	if r.columnTypes, err = rows.ColumnTypes(); err != nil {
		return &SQLReaderError{Op: "column_types", Err: err}
	}

	r.values = make([]interface{}, len(r.columnNames))
	r.scanBuffer = make([]interface{}, len(r.columnNames))
	for i := range r.scanBuffer {
		r.scanBuffer[i] = &r.values[i]
	}
	return nil
}

// Read implements the core.DataSource interface.
func (r *SQLReader) Read(ctx context.Context) (core.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &SQLReaderError{Op: "read", Err: err}
	}
	if r.finished || r.rows == nil {
		return nil, io.EOF
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, &SQLReaderError{Op: "read", Err: err}
		}
		r.finished = true
		return nil, io.EOF
	}

	if err := r.rows.Scan(r.scanBuffer...); err != nil {
		return nil, &SQLReaderError{Op: "scan", Err: fmt.Errorf("%w: %w", core.ErrParse, err)}
	}

	record := make(core.Record, len(r.columnNames))
	for i, name := range r.columnNames {
		if r.values[i] == nil {
			r.stats.NullValueCounts[name]++
			record[name] = nil
			continue
		}
		record[name] = convertColumnValue(r.values[i], r.columnTypes[i].DatabaseTypeName())
	}
	r.stats.RecordsRead++
	return record, nil
}

// ReadAll drains the reader.
func (r *SQLReader) ReadAll(ctx context.Context) ([]core.Record, error) {
	records := make([]core.Record, 0)
	for {
		record, err := r.Read(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// Columns returns the result column names in query order.
func (r *SQLReader) Columns() []string {
	return append([]string(nil), r.columnNames...)
}

// Stats returns a copy of the reader statistics.
func (r *SQLReader) Stats() SQLReaderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	stats.NullValueCounts = make(map[string]int64, len(r.stats.NullValueCounts))
	for k, v := range r.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// Close releases the rows and the connection.
func (r *SQLReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.rows != nil {
		if err := r.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		r.rows = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		r.db = nil
	}

	if len(errs) > 0 {
		return &SQLReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %v", errs)}
	}
	return nil
}

// convertColumnValue maps driver values to the types the writers produce:
// text as string, BOOLEAN columns as bool.
func convertColumnValue(value interface{}, dbType string) interface{} {
	dbType = strings.ToUpper(dbType)
	switch v := value.(type) {
	case []byte:
		if dbType == "BYTEA" || dbType == "BLOB" {
			return v
		}
		return string(v)
	case int64:
		if dbType == "BOOLEAN" || dbType == "BOOL" {
			return v != 0
		}
		return v
	default:
		return v
	}
}
