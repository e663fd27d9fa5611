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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/launchetl/core"
)

// Format identifies an export file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatJSONLines
	FormatParquet
	FormatSQLite
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSONLines:
		return "jsonl"
	case FormatParquet:
		return "parquet"
	case FormatSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// FormatOf picks the format from the file extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONLines
	case ".parquet":
		return FormatParquet
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatUnknown
	}
}

// OpenFile opens an exported file as a DataSource chosen by extension.
// CSV cells are kept as strings. SQLite files are read with OpenTable.
func OpenFile(path string) (core.DataSource, error) {
	switch FormatOf(path) {
	case FormatCSV:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrPrecondition, err)
		}
		reader, err := NewCSVReader(file, WithCSVRawStrings(true))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s: %w", core.ErrParse, path, err)
		}
		return reader, nil
	case FormatJSONLines:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrPrecondition, err)
		}
		return NewJSONReader(file), nil
	case FormatParquet:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrPrecondition, err)
		}
		return NewParquetReader(path)
	case FormatSQLite:
		return nil, fmt.Errorf("%w: %s is a database, open it with OpenTable", core.ErrPrecondition, path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", core.ErrPrecondition, filepath.Ext(path))
	}
}

// OpenTable reads columns of table from a database. A missing SQLite file is
// reported instead of being created.
func OpenTable(driver, dsn, table string, columns ...string) (*SQLReader, error) {
	if driver == "sqlite" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if _, err := os.Stat(dsn); err != nil {
			return nil, &SQLReaderError{Op: "open", Err: fmt.Errorf("%w: %w", core.ErrPrecondition, err)}
		}
	}
	query, err := TableQuery(table, columns...)
	if err != nil {
		return nil, &SQLReaderError{Op: "validate", Err: err}
	}
	return NewSQLReader(WithSQLReaderDriver(driver), WithSQLReaderDSN(dsn), WithSQLReaderQuery(query))
}
