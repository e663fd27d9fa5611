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

package transform

import (
	"context"

	"github.com/aaronlmathis/launchetl/core"
)

// Package transform provides the composable transformations of the launch ETL job.
//
// All functions return core.Transformer implementations so they can be chained in a
// launchetl.Pipeline, and Launches applies them to a whole collection at once.

// Project creates a transformer that keeps exactly the specified fields.
// Fields missing from the input record are present in the output with a nil value,
// so every output record has the same key set.
func Project(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			result[field] = record[field]
		}
		return result, nil
	})
}

// Lookup creates a transformer that resolves sourceField through lookup and
// stores the name in targetField. The source field is left untouched.
func Lookup(sourceField, targetField string, lookup RocketLookup) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		result[targetField] = lookup.Name(record[sourceField])
		return result, nil
	})
}

// LaunchTransformers returns the transformer chain that turns a raw launch into
// a launch record: resolve the rocket name, then project core.LaunchColumns.
func LaunchTransformers(lookup RocketLookup) []core.Transformer {
	return []core.Transformer{
		Lookup(core.FieldRocket, core.FieldRocketName, lookup),
		Project(core.LaunchColumns...),
	}
}

// Launches transforms raw launches into flat launch records.
// It is total and order-preserving: one output record per input record, no
// filtering, no deduplication. A nil input yields a record whose fields are all
// nil except rocket_name, which is UnknownRocket.
func Launches(launches []core.Record, lookup RocketLookup) []core.Record {
	chain := LaunchTransformers(lookup)
	ctx := context.Background()

	out := make([]core.Record, 0, len(launches))
	for _, launch := range launches {
		current := launch
		if current == nil {
			current = core.Record{}
		}
		for _, t := range chain {
			// Lookup and Project never fail.
			current, _ = t.Transform(ctx, current)
		}
		out = append(out, current)
	}
	return out
}
