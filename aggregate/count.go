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

// count.go - counting aggregators used for run reports
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/aaronlmathis/launchetl/core"
)

// NullKey is the group key used for missing and nil values.
const NullKey = "null"

// CountAggregator counts the number of records
type CountAggregator struct {
	count int
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (core.Record, error) {
	return core.Record{"count": c.count}, nil
}

func (c *CountAggregator) Reset() {
	c.count = 0
}

// Count returns the number of records added.
func (c *CountAggregator) Count() int {
	return c.count
}

// CountByAggregator counts records per distinct value of a field. Values are
// keyed by their string form; missing and nil values share NullKey.
type CountByAggregator struct {
	Field  string
	counts map[string]int
}

// CountBy returns an aggregator grouping on field.
func CountBy(field string) *CountByAggregator {
	return &CountByAggregator{Field: field, counts: make(map[string]int)}
}

func (c *CountByAggregator) Add(ctx context.Context, record core.Record) error {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[groupKey(record[c.Field])]++
	return nil
}

// Result returns one field per group holding its count.
func (c *CountByAggregator) Result() (core.Record, error) {
	result := make(core.Record, len(c.counts))
	for k, v := range c.counts {
		result[k] = v
	}
	return result, nil
}

func (c *CountByAggregator) Reset() {
	c.counts = make(map[string]int)
}

// Counts returns a copy of the per-group counts.
func (c *CountByAggregator) Counts() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Keys returns the group keys ordered by descending count, then name.
func (c *CountByAggregator) Keys() []string {
	keys := make([]string, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c.counts[keys[i]] != c.counts[keys[j]] {
			return c.counts[keys[i]] > c.counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func groupKey(value interface{}) string {
	if value == nil {
		return NullKey
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// Apply feeds every record to each aggregator.
func Apply(ctx context.Context, records []core.Record, aggregators ...core.Aggregator) error {
	for i, record := range records {
		for _, agg := range aggregators {
			if err := agg.Add(ctx, record); err != nil {
				return fmt.Errorf("aggregation error at record %d: %w", i, err)
			}
		}
	}
	return nil
}
