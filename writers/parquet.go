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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/launchetl/core"
)

// This file implements the Parquet exporter. The schema is fixed up front so
// that a column which happens to be null in the first batch keeps its type.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// LaunchSchema is the Arrow schema of exported launches. success is a
// nullable boolean; every other column is a nullable string.
var LaunchSchema = arrow.NewSchema([]arrow.Field{
	{Name: core.FieldID, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: core.FieldName, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: core.FieldDateUTC, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: core.FieldSuccess, Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: core.FieldRocketName, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: core.FieldDetails, Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// ParquetWriterStats holds statistics about the Parquet writer's performance.
type ParquetWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Schema       *arrow.Schema        // Output schema
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithSchema replaces LaunchSchema. Only string and boolean columns are supported.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = 10000
	}
	if opts.Compression == 0 {
		opts.Compression = compress.Codecs.Snappy
	}
	if opts.Schema == nil {
		opts.Schema = LaunchSchema
	}
	return opts
}

// writeOnly hides Close from pqarrow so the AtomicFile stays under our control.
type writeOnly struct {
	io.Writer
}

// ParquetWriter implements core.DataSink for Parquet files. Like the CSV
// sink it writes to an AtomicFile: Flush finalizes and publishes the file,
// Close without Flush discards it. No writes are accepted after Flush.
type ParquetWriter struct {
	file         *AtomicFile
	writer       *pqarrow.FileWriter
	opts         *ParquetWriterOptions
	builder      *array.RecordBuilder
	recordBuffer []core.Record
	stats        ParquetWriterStats
	finalized    bool
	closed       bool
	errorState   bool
	mu           sync.Mutex
}

// NewParquetWriter creates a new Parquet writer for filename.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	for _, field := range opts.Schema.Fields() {
		switch field.Type.ID() {
		case arrow.STRING, arrow.BOOL:
		default:
			return nil, &ParquetWriterError{
				Op:  "schema",
				Err: fmt.Errorf("%w: unsupported arrow type %s for field %s", core.ErrPrecondition, field.Type, field.Name),
			}
		}
	}

	file, err := CreateAtomicFile(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)
	fw, err := pqarrow.NewFileWriter(opts.Schema, writeOnly{file}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		_ = file.Close()
		return nil, &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("%w: failed to create parquet file writer: %w", core.ErrWrite, err),
		}
	}

	return &ParquetWriter{
		file:         file,
		writer:       fw,
		opts:         opts,
		builder:      array.NewRecordBuilder(memory.NewGoAllocator(), opts.Schema),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        ParquetWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.finalized {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("%w: parquet writer is finalized", core.ErrWrite)}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}

	return nil
}

// Flush implements the core.DataSink interface. It writes the remaining
// rows, the file footer, and moves the file into place.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finalized {
		return nil
	}
	if p.closed || p.errorState {
		return &ParquetWriterError{Op: "flush", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}

	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	if err := p.writer.Close(); err != nil {
		p.errorState = true
		return &ParquetWriterError{
			Op:  "close_writer",
			Err: fmt.Errorf("%w: failed to close parquet writer: %w", core.ErrWrite, err),
		}
	}
	if err := p.file.Commit(); err != nil {
		p.errorState = true
		return &ParquetWriterError{Op: "commit", Err: err}
	}
	p.finalized = true
	return nil
}

// Close implements the core.DataSink interface.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.builder != nil {
		p.builder.Release()
		p.builder = nil
	}
	if err := p.file.Close(); err != nil {
		return &ParquetWriterError{Op: "close_file", Err: err}
	}
	return nil
}

// flushBatch writes the current buffer as one Arrow record batch.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}

	startTime := time.Now()

	for _, record := range p.recordBuffer {
		for i, field := range p.opts.Schema.Fields() {
			if err := p.appendValue(p.builder.Field(i), record[field.Name], field.Name); err != nil {
				return &ParquetWriterError{Op: "append_value", Err: err}
			}
		}
	}

	rec := p.builder.NewRecord()
	defer rec.Release()

	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("%w: failed to write record batch: %w", core.ErrWrite, err),
		}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]

	return nil
}

// appendValue appends a value to the column builder. Strings accept any
// value through FormatCSVValue; booleans accept only bool or nil.
func (p *ParquetWriter) appendValue(builder array.Builder, value interface{}, fieldName string) error {
	if value == nil {
		builder.AppendNull()
		p.stats.NullValueCounts[fieldName]++
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: field %s expects bool, got %T", core.ErrWrite, fieldName, value)
		}
		b.Append(v)
	case *array.StringBuilder:
		s, err := FormatCSVValue(value)
		if err != nil {
			return fmt.Errorf("%w: field %s: %w", core.ErrWrite, fieldName, err)
		}
		b.Append(s)
	default:
		return fmt.Errorf("unsupported builder type for field %s", fieldName)
	}
	return nil
}
