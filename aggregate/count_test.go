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

package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

func TestCountBy(t *testing.T) {
	records := []core.Record{
		{"rocket_name": "Falcon 9", "success": true},
		{"rocket_name": "Falcon 1", "success": false},
		{"rocket_name": "Falcon 9", "success": true},
		{"rocket_name": "Unknown"},
		{"rocket_name": "Falcon 1", "success": nil},
	}

	byRocket := CountBy("rocket_name")
	bySuccess := CountBy("success")
	total := &CountAggregator{}
	require.NoError(t, Apply(context.Background(), records, byRocket, bySuccess, total))

	assert.Equal(t, map[string]int{"Falcon 9": 2, "Falcon 1": 2, "Unknown": 1}, byRocket.Counts())
	assert.Equal(t, []string{"Falcon 1", "Falcon 9", "Unknown"}, byRocket.Keys())
	assert.Equal(t, map[string]int{"true": 2, "false": 1, NullKey: 2}, bySuccess.Counts())
	assert.Equal(t, 5, total.Count())

	result, err := byRocket.Result()
	require.NoError(t, err)
	assert.Equal(t, core.Record{"Falcon 9": 2, "Falcon 1": 2, "Unknown": 1}, result)

	byRocket.Reset()
	assert.Empty(t, byRocket.Counts())
}

func TestCountAggregator_Result(t *testing.T) {
	c := &CountAggregator{}
	require.NoError(t, c.Add(context.Background(), core.Record{}))
	result, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, core.Record{"count": 1}, result)
}
