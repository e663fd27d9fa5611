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

package core

import "context"

// Package core defines the core types for the LaunchETL library.
//
// This file contains the record type, the launch record layout, and function adapters.

// Record represents a single data record in the pipeline.
// Each record is a map from field names to values, supporting heterogeneous data.
// Raw launches and rockets decoded from the API are Records, and so are the
// flattened launch records produced by the transform stage.
type Record map[string]interface{}

// Launch record field names.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldDateUTC    = "date_utc"
	FieldSuccess    = "success"
	FieldRocket     = "rocket"
	FieldRocketName = "rocket_name"
	FieldDetails    = "details"
)

// LaunchColumns is the fixed column order of a transformed launch record.
// CSV headers, SQL columns and Parquet fields all follow it.
var LaunchColumns = []string{
	FieldID,
	FieldName,
	FieldDateUTC,
	FieldSuccess,
	FieldRocketName,
	FieldDetails,
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// TransformFunc is a function adapter for the Transformer interface.
// Allows ordinary functions to be used as Transformers.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// FilterFunc is a function adapter for the Filter interface.
// Allows ordinary functions to be used as Filters.
type FilterFunc func(ctx context.Context, record Record) (bool, error)

// ShouldInclude implements the Filter interface for FilterFunc.
func (f FilterFunc) ShouldInclude(ctx context.Context, record Record) (bool, error) {
	return f(ctx, record)
}
