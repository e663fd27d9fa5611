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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aaronlmathis/launchetl/core"
)

// JSONWriterError wraps JSON lines write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter implements DataSink for JSON lines files
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	written int64
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
	}
}

// CreateJSONFile opens a JSON lines writer on an AtomicFile at path.
func CreateJSONFile(path string) (*JSONWriter, error) {
	file, err := CreateAtomicFile(path)
	if err != nil {
		return nil, &JSONWriterError{Op: "create", Err: err}
	}
	return NewJSONWriter(file), nil
}

// Write implements the DataSink interface
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: fmt.Errorf("%w: failed to marshal record to JSON: %w", core.ErrWrite, err)}
	}

	data = append(data, '\n')
	if _, err := j.writer.Write(data); err != nil {
		return &JSONWriterError{Op: "write", Err: fmt.Errorf("%w: failed to write JSON data: %w", core.ErrWrite, err)}
	}
	j.written++

	return nil
}

// Flush implements the DataSink interface. An AtomicFile destination is
// published.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}
	if cm, ok := j.closer.(committer); ok {
		if err := cm.Commit(); err != nil {
			return &JSONWriterError{Op: "commit", Err: err}
		}
	}
	return nil
}

// Close implements the DataSink interface
func (j *JSONWriter) Close() error {
	if _, ok := j.closer.(committer); !ok {
		j.mu.Lock()
		err := j.writer.Flush()
		j.mu.Unlock()
		if err != nil {
			_ = j.closer.Close()
			return &JSONWriterError{Op: "flush", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
		}
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Written returns the number of records written.
func (j *JSONWriter) Written() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}
