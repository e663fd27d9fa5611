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
	"io"

	"github.com/aaronlmathis/launchetl/core"
)

// SliceReader implements core.DataSource over records already held in memory.
type SliceReader struct {
	records []core.Record
	index   int
}

// NewSliceReader returns a reader yielding records in order.
func NewSliceReader(records []core.Record) *SliceReader {
	return &SliceReader{records: records}
}

// Read implements the core.DataSource interface.
func (s *SliceReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.index >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.index]
	s.index++
	return record, nil
}

// Close implements the core.DataSource interface.
func (s *SliceReader) Close() error {
	return nil
}
