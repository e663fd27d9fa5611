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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/validators"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	Headers     []string
	BatchSize   int
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// WithHeaders fixes the column set and order. Without it the columns are
// taken from the first record, launch columns first.
func WithHeaders(headers []string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Headers = append([]string(nil), headers...)
	}
}

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// committer is implemented by destinations that publish their content only
// once it is complete, such as AtomicFile.
type committer interface {
	Commit() error
}

// CSVWriter implements DataSink for CSV output. Every record must carry
// exactly the header key set.
type CSVWriter struct {
	writer      *csv.Writer
	closer      io.Closer
	options     CSVWriterOptions
	headers     []string
	recordBuf   []core.Record
	stats       CSVWriterStats
	wroteHeader bool
	errorState  bool
	mu          sync.Mutex
}

// NewCSVWriter creates a new CSV writer on w.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:       ',',
		WriteHeader: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &CSVWriter{
		writer:    cw,
		closer:    w,
		options:   options,
		headers:   append([]string(nil), options.Headers...),
		recordBuf: make([]core.Record, 0, max(options.BatchSize, 1)),
		stats:     CSVWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// CreateCSVFile opens a CSV writer on an AtomicFile at path. The file only
// appears at path once Flush succeeds.
func CreateCSVFile(path string, opts ...WriterOptionCSV) (*CSVWriter, error) {
	file, err := CreateAtomicFile(path)
	if err != nil {
		return nil, &CSVWriterError{Op: "create", Err: err}
	}
	return NewCSVWriter(file, opts...)
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record core.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}

	if len(c.headers) == 0 {
		c.headers = validators.KeysOf(record, core.LaunchColumns)
	}
	if err := validators.UniformSchema([]core.Record{record}, c.headers); err != nil {
		return &CSVWriterError{Op: "schema", Err: fmt.Errorf("row %d: %w", c.stats.RecordsWritten, err)}
	}

	for k, v := range record {
		if v == nil {
			c.stats.NullValueCounts[k]++
		}
	}

	c.recordBuf = append(c.recordBuf, record)
	c.stats.RecordsWritten++

	if c.options.BatchSize > 0 && len(c.recordBuf) >= c.options.BatchSize {
		if err := c.flushBufferUnsafe(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Headers returns the column order in use.
func (c *CSVWriter) Headers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.headers...)
}

// Flush implements the DataSink interface. When the destination is an
// AtomicFile the flush also publishes the file.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "flush", Err: fmt.Errorf("%w: writer is in error state", core.ErrWrite)}
	}
	if err := c.flushBufferUnsafe(); err != nil {
		c.errorState = true
		return &CSVWriterError{Op: "flush", Err: err}
	}
	if cm, ok := c.closer.(committer); ok {
		if err := cm.Commit(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "commit", Err: err}
		}
	}
	return nil
}

// Close implements the DataSink interface. Plain destinations are flushed
// first; an AtomicFile that was never flushed is discarded.
func (c *CSVWriter) Close() error {
	if _, ok := c.closer.(committer); !ok {
		if err := c.Flush(); err != nil {
			_ = c.closer.Close()
			return err
		}
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			return &CSVWriterError{Op: "close", Err: err}
		}
	}
	return nil
}

// flushBufferUnsafe writes buffered records to CSV (must hold mutex).
func (c *CSVWriter) flushBufferUnsafe() error {
	start := time.Now()

	if !c.wroteHeader && c.options.WriteHeader && len(c.headers) > 0 {
		if err := c.writer.Write(c.headers); err != nil {
			return fmt.Errorf("%w: failed to write CSV header: %w", core.ErrWrite, err)
		}
		c.wroteHeader = true
	}

	for _, record := range c.recordBuf {
		row := make([]string, len(c.headers))
		for i, key := range c.headers {
			cell, err := FormatCSVValue(record[key])
			if err != nil {
				return fmt.Errorf("%w: field %s: %w", core.ErrWrite, key, err)
			}
			row[i] = cell
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("%w: failed to write CSV row: %w", core.ErrWrite, err)
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("%w: CSV writer flush error: %w", core.ErrWrite, err)
	}

	c.stats.FlushCount++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += time.Since(start)
	c.recordBuf = c.recordBuf[:0]

	return nil
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	statsCopy := c.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// FormatCSVValue renders a field value as a CSV cell. nil is the empty
// cell, booleans are true/false, floats use the shortest exact form and
// nested values are JSON encoded.
func FormatCSVValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case json.Number:
		return val.String(), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}
