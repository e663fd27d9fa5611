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
	"errors"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/validators"
)

// CSVHeaders returns the header row for records: the configured headers if
// any, otherwise the first record's keys with launch columns first.
func CSVHeaders(records []core.Record, opts ...WriterOptionCSV) []string {
	var options CSVWriterOptions
	for _, opt := range opts {
		opt(&options)
	}
	if len(options.Headers) > 0 {
		return options.Headers
	}
	if len(records) == 0 {
		return nil
	}
	return validators.KeysOf(records[0], core.LaunchColumns)
}

// ValidateCSVExport checks the export preconditions without touching the
// filesystem: at least one record and a uniform key set.
func ValidateCSVExport(records []core.Record, opts ...WriterOptionCSV) error {
	if err := validators.NotEmpty(records); err != nil {
		return &CSVWriterError{Op: "validate", Err: err}
	}
	if err := validators.UniformSchema(records, CSVHeaders(records, opts...)); err != nil {
		return &CSVWriterError{Op: "validate", Err: err}
	}
	return nil
}

// ExportCSV writes records to path with a header row. Preconditions are
// checked before the file is created; the file is replaced atomically.
func ExportCSV(ctx context.Context, records []core.Record, path string, opts ...WriterOptionCSV) error {
	if err := ValidateCSVExport(records, opts...); err != nil {
		return err
	}

	headers := CSVHeaders(records, opts...)
	writer, err := CreateCSVFile(path, append(opts, WithHeaders(headers))...)
	if err != nil {
		return err
	}
	return WriteAll(ctx, writer, records)
}

// LoadSQL upserts records into a database in a single transaction. A
// record without a usable key rolls the whole batch back.
func LoadSQL(ctx context.Context, records []core.Record, opts ...SQLWriterOption) error {
	writer, err := NewSQLWriter(append([]SQLWriterOption{WithSQLContext(ctx)}, opts...)...)
	if err != nil {
		return err
	}
	return WriteAll(ctx, writer, records)
}

// WriteAll writes records to sink, flushes on success and always closes it.
func WriteAll(ctx context.Context, sink core.DataSink, records []core.Record) (err error) {
	defer func() {
		if err == nil {
			err = sink.Flush()
		}
		err = errors.Join(err, sink.Close())
	}()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Write(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
