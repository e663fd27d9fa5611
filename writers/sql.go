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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/validators"
)

// This file implements the relational sink. Every record written between two
// Flush calls belongs to one transaction, and rows are upserted on the key
// column so that reloading the same launches is idempotent.

// SQLWriterError wraps SQL-specific write errors with context about the operation.
type SQLWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

// Error returns the error string for SQLWriterError.
func (e *SQLWriterError) Error() string {
	return fmt.Sprintf("sql writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for SQLWriterError.
func (e *SQLWriterError) Unwrap() error {
	return e.Err
}

// Dialect selects the database driver and its SQL flavour.
type Dialect string

const (
	// DialectSQLite uses modernc.org/sqlite and INSERT OR REPLACE.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses lib/pq and INSERT ... ON CONFLICT DO UPDATE.
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case DialectSQLite, DialectPostgres:
		return d, nil
	case "sqlite3":
		return DialectSQLite, nil
	case "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", name)
	}
}

func (d Dialect) placeholder(i int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// LaunchColumnTypes are the column types of the launches table. Columns not
// listed are TEXT.
var LaunchColumnTypes = map[string]string{
	core.FieldSuccess: "BOOLEAN",
}

// SQLWriterStats holds write statistics.
type SQLWriterStats struct {
	RecordsWritten   int64            // Total records written
	TransactionCount int64            // Number of transactions committed
	RollbackCount    int64            // Number of transactions rolled back
	LastWriteTime    time.Time        // Time of last write
	WriteDuration    time.Duration    // Total time spent writing
	ConnectionTime   time.Duration    // Time spent establishing connection
	NullValueCounts  map[string]int64 // Count of null values per column
}

// SQLWriterOptions configures the SQL writer.
type SQLWriterOptions struct {
	Dialect         Dialect           // Database dialect
	DSN             string            // File path for sqlite, connection string for postgres
	TableName       string            // Target table name
	Columns         []string          // Columns to write (order matters)
	KeyColumn       string            // Primary key and upsert target
	ColumnTypes     map[string]string // SQL type per column, TEXT when absent
	CreateTable     bool              // Create table if not exists
	QueryTimeout    time.Duration     // Timeout for commit and schema statements
	MaxOpenConns    int               // Max open connections (postgres only)
	MaxIdleConns    int               // Max idle connections (postgres only)
	ConnMaxLifetime time.Duration     // Max connection lifetime
	Context         context.Context   // Parent of the connect, schema and commit contexts
}

// SQLWriterOption represents a configuration function for SQLWriterOptions.
type SQLWriterOption func(*SQLWriterOptions)

// WithSQLDialect sets the database dialect.
func WithSQLDialect(dialect Dialect) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Dialect = dialect
	}
}

// WithDSN sets the database location.
func WithDSN(dsn string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.DSN = dsn
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.TableName = tableName
	}
}

// WithColumns sets the columns to write.
func WithColumns(columns []string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithKeyColumn sets the primary key column.
func WithKeyColumn(column string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.KeyColumn = column
	}
}

// WithColumnTypes overrides SQL column types.
func WithColumnTypes(types map[string]string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.ColumnTypes = make(map[string]string, len(types))
		for k, v := range types {
			opts.ColumnTypes[k] = v
		}
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.CreateTable = create
	}
}

// WithSQLQueryTimeout sets the query timeout.
func WithSQLQueryTimeout(timeout time.Duration) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithSQLContext bounds connecting and committing by ctx. Without it the
// context of the first Write is used.
func WithSQLContext(ctx context.Context) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Context = ctx
	}
}

// WithSQLConnectionPool configures the postgres connection pool.
func WithSQLConnectionPool(maxOpen, maxIdle int, maxLifetime time.Duration) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
	}
}

// SQLWriter implements core.DataSink for sqlite and postgres.
// The transaction is opened by the first Write, committed by Flush and
// rolled back by Close when it was never committed.
type SQLWriter struct {
	db          *sql.DB
	options     SQLWriterOptions
	stats       SQLWriterStats
	parent      context.Context
	tx          *sql.Tx
	stmt        *sql.Stmt
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewSQLWriter opens the database and returns a ready-to-use writer.
func NewSQLWriter(opts ...SQLWriterOption) (*SQLWriter, error) {
	options := &SQLWriterOptions{}
	options = options.withDefaults()

	for _, opt := range opts {
		opt(options)
	}

	if err := validateSQLOptions(options); err != nil {
		return nil, &SQLWriterError{Op: "validate", Err: fmt.Errorf("%w: %w", core.ErrPrecondition, err)}
	}

	writer := &SQLWriter{
		options: *options,
		parent:  options.Context,
		stats:   SQLWriterStats{NullValueCounts: make(map[string]int64)},
	}

	if err := writer.connect(); err != nil {
		return nil, &SQLWriterError{Op: "connect", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}

	return writer, nil
}

// withDefaults applies default values to SQLWriterOptions.
func (opts *SQLWriterOptions) withDefaults() *SQLWriterOptions {
	opts.Dialect = DialectSQLite
	opts.TableName = "launches"
	opts.Columns = append([]string(nil), core.LaunchColumns...)
	opts.KeyColumn = core.FieldID
	opts.ColumnTypes = LaunchColumnTypes
	opts.CreateTable = true
	opts.QueryTimeout = 30 * time.Second
	opts.MaxOpenConns = 10
	opts.MaxIdleConns = 5
	opts.ConnMaxLifetime = 5 * time.Minute
	return opts
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateSQLOptions validates the SQL writer options.
func validateSQLOptions(opts *SQLWriterOptions) error {
	if _, err := ParseDialect(string(opts.Dialect)); err != nil {
		return err
	}
	if opts.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if !identifierPattern.MatchString(opts.TableName) {
		return fmt.Errorf("invalid table name %q", opts.TableName)
	}
	if len(opts.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	hasKey := false
	for _, col := range opts.Columns {
		if !identifierPattern.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
		if col == opts.KeyColumn {
			hasKey = true
		}
	}
	if !hasKey {
		return fmt.Errorf("key column %q is not among the columns", opts.KeyColumn)
	}
	return nil
}

// connect establishes the database connection.
func (w *SQLWriter) connect() error {
	start := time.Now()

	dialect, _ := ParseDialect(string(w.options.Dialect))
	w.options.Dialect = dialect

	if dialect == DialectSQLite && w.options.DSN != ":memory:" && !strings.HasPrefix(w.options.DSN, "file:") {
		dir := filepath.Dir(w.options.DSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open(string(dialect), w.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// a single connection keeps the transaction and the schema statements
		// on the same sqlite handle
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(w.options.MaxOpenConns)
		db.SetMaxIdleConns(w.options.MaxIdleConns)
		db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(w.parentContext(), w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.stats.ConnectionTime = time.Since(start)

	return nil
}

// Stats returns a copy of the current write statistics.
func (w *SQLWriter) Stats() SQLWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// DB exposes the underlying handle, mainly for inspection in tests.
func (w *SQLWriter) DB() *sql.DB {
	return w.db
}

// Write implements the core.DataSink interface. A record without a usable
// key puts the writer in error state so the open transaction can never be
// committed.
func (w *SQLWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &SQLWriterError{Op: "write", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}
	if w.parent == nil {
		w.parent = ctx
	}

	if err := validators.RequireString([]core.Record{record}, w.options.KeyColumn); err != nil {
		w.errorState = true
		return &SQLWriterError{Op: "validate", Err: fmt.Errorf("row %d: %w", w.stats.RecordsWritten, err)}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return &SQLWriterError{Op: "initialize", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
		}
	}

	start := time.Now()

	values := make([]interface{}, len(w.options.Columns))
	for i, col := range w.options.Columns {
		val := record[col]
		if val == nil {
			w.stats.NullValueCounts[col]++
		}
		converted, err := convertSQLValue(val)
		if err != nil {
			w.errorState = true
			return &SQLWriterError{Op: "convert", Err: fmt.Errorf("%w: column %s: %w", core.ErrWrite, col, err)}
		}
		values[i] = converted
	}

	if _, err := w.stmt.ExecContext(ctx, values...); err != nil {
		w.errorState = true
		return &SQLWriterError{Op: "exec", Err: fmt.Errorf("%w: failed to upsert %v: %w", core.ErrWrite, record[w.options.KeyColumn], err)}
	}

	w.stats.RecordsWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)

	return nil
}

// Flush implements the core.DataSink interface. It commits every record
// written since the previous Flush. The table is created even when nothing
// was written.
func (w *SQLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &SQLWriterError{Op: "flush", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}

	ctx, cancel := context.WithTimeout(w.parentContext(), w.options.QueryTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		w.errorState = true
		return &SQLWriterError{Op: "commit", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return &SQLWriterError{Op: "initialize", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
		}
	}

	if w.stmt != nil {
		_ = w.stmt.Close()
		w.stmt = nil
	}
	if err := w.tx.Commit(); err != nil {
		w.tx = nil
		w.initialized = false
		w.errorState = true
		return &SQLWriterError{Op: "commit", Err: fmt.Errorf("%w: failed to commit transaction: %w", core.ErrWrite, err)}
	}

	w.tx = nil
	w.initialized = false
	w.stats.TransactionCount++
	return nil
}

// parentContext returns the context commits and schema statements derive
// their timeout from (must hold mutex).
func (w *SQLWriter) parentContext() context.Context {
	if w.parent == nil {
		return context.Background()
	}
	return w.parent
}

// Close implements the core.DataSink interface. Uncommitted rows are rolled
// back before the connection is released.
func (w *SQLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stmt != nil {
		_ = w.stmt.Close()
		w.stmt = nil
	}
	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx = nil
		w.initialized = false
		w.stats.RollbackCount++
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			return &SQLWriterError{Op: "close", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
		}
		w.db = nil
	}
	return nil
}

// initializeUnsafe creates the table, begins the transaction and prepares
// the upsert (must hold mutex).
func (w *SQLWriter) initializeUnsafe(ctx context.Context) error {
	if w.db == nil {
		return fmt.Errorf("writer is closed")
	}

	if w.options.CreateTable {
		if _, err := w.db.ExecContext(ctx, w.createTableQuery()); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, w.upsertQuery())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	w.tx = tx
	w.stmt = stmt
	w.initialized = true
	return nil
}

// createTableQuery renders the CREATE TABLE IF NOT EXISTS statement.
func (w *SQLWriter) createTableQuery() string {
	columns := make([]string, len(w.options.Columns))
	for i, col := range w.options.Columns {
		sqlType, ok := w.options.ColumnTypes[col]
		if !ok {
			sqlType = "TEXT"
		}
		if col == w.options.KeyColumn {
			sqlType += " PRIMARY KEY"
		}
		columns[i] = fmt.Sprintf("%s %s", col, sqlType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.options.TableName, strings.Join(columns, ", "))
}

// upsertQuery renders the dialect-specific insert-or-replace statement.
func (w *SQLWriter) upsertQuery() string {
	placeholders := make([]string, len(w.options.Columns))
	for i := range placeholders {
		placeholders[i] = w.options.Dialect.placeholder(i + 1)
	}
	cols := strings.Join(w.options.Columns, ", ")

	if w.options.Dialect == DialectSQLite {
		return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
			w.options.TableName, cols, strings.Join(placeholders, ", "))
	}

	var updateClauses []string
	for _, col := range w.options.Columns {
		if col == w.options.KeyColumn {
			continue
		}
		updateClauses = append(updateClauses, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(updateClauses) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			w.options.TableName, cols, strings.Join(placeholders, ", "), w.options.KeyColumn)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		w.options.TableName, cols, strings.Join(placeholders, ", "), w.options.KeyColumn,
		strings.Join(updateClauses, ", "))
}

// convertSQLValue converts record values to driver-compatible types.
// Nested values are stored as JSON text.
func convertSQLValue(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case time.Time, bool, int64, float64, string, []byte:
		return v, nil
	case json.Number:
		return v.String(), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		case reflect.Float32:
			return rv.Float(), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	}
}
