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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aaronlmathis/launchetl/core"
)

// JSONReader implements DataSource for JSON lines files
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewJSONReader creates a new JSON reader for line-delimited JSON
func NewJSONReader(r io.ReadCloser) *JSONReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
	}
}

// Read implements the DataSource interface. Blank lines are skipped.
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		j.line++

		line := j.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record core.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", core.ErrParse, j.line, err)
		}
		if record == nil {
			return nil, fmt.Errorf("%w: line %d is null", core.ErrParse, j.line)
		}
		return record, nil
	}
}

// ReadAll drains the reader.
func (j *JSONReader) ReadAll(ctx context.Context) ([]core.Record, error) {
	var records []core.Record
	for {
		record, err := j.Read(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// Close implements the DataSource interface
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
