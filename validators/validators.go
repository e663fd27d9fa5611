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

// validators.go - precondition checks run by sinks before they touch their target
package validators

import (
	"fmt"
	"sort"

	"github.com/aaronlmathis/launchetl/core"
)

// NotEmpty fails when there are no records.
func NotEmpty(records []core.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no records", core.ErrPrecondition)
	}
	return nil
}

// UniformSchema checks that every record has exactly the given key set.
// Missing and extra fields are both reported, with the index of the first
// offending record.
func UniformSchema(records []core.Record, columns []string) error {
	if err := NotEmpty(records); err != nil {
		return err
	}

	expected := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		expected[col] = struct{}{}
	}

	for recordIdx, record := range records {
		for _, col := range columns {
			if _, exists := record[col]; !exists {
				return fmt.Errorf("%w: record %d missing required field: %s", core.ErrPrecondition, recordIdx, col)
			}
		}
		if len(record) == len(columns) {
			continue
		}
		var extra []string
		for key := range record {
			if _, ok := expected[key]; !ok {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: record %d has unexpected fields: %v", core.ErrPrecondition, recordIdx, extra)
	}

	return nil
}

// RequireString checks that field holds a non-empty string in every record.
func RequireString(records []core.Record, field string) error {
	for recordIdx, record := range records {
		value, exists := record[field]
		if !exists || value == nil {
			return fmt.Errorf("%w: record %d missing required field: %s", core.ErrPrecondition, recordIdx, field)
		}
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: record %d field %s has invalid type %T, expected string", core.ErrPrecondition, recordIdx, field, value)
		}
		if str == "" {
			return fmt.Errorf("%w: record %d field %s is empty", core.ErrPrecondition, recordIdx, field)
		}
	}
	return nil
}

// KeysOf returns the keys of record ordered by preferred first, then the
// remaining keys sorted.
func KeysOf(record core.Record, preferred []string) []string {
	keys := make([]string, 0, len(record))
	seen := make(map[string]struct{}, len(record))
	for _, key := range preferred {
		if _, ok := record[key]; ok {
			keys = append(keys, key)
			seen[key] = struct{}{}
		}
	}
	var rest []string
	for key := range record {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
