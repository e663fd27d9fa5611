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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatOf("data/spacex_launches.CSV"))
	assert.Equal(t, FormatJSONLines, FormatOf("launches.jsonl"))
	assert.Equal(t, FormatParquet, FormatOf("/tmp/launches.parquet"))
	assert.Equal(t, FormatSQLite, FormatOf("db/spacex.db"))
	assert.Equal(t, FormatUnknown, FormatOf("launches.xlsx"))
	assert.Equal(t, "jsonl", FormatJSONLines.String())
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "launches.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,success\nl1,true\nl2,\n"), 0644))
	jsonPath := filepath.Join(dir, "launches.jsonl")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{\"id\":\"l1\"}\n"), 0644))

	source, err := OpenFile(csvPath)
	require.NoError(t, err)
	records, err := source.(*CSVReader).ReadAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, source.Close())
	assert.Equal(t, []core.Record{{"id": "l1", "success": "true"}, {"id": "l2", "success": nil}}, records)

	source, err = OpenFile(jsonPath)
	require.NoError(t, err)
	record, err := source.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "l1", record["id"])
	require.NoError(t, source.Close())

	for _, path := range []string{
		filepath.Join(dir, "missing.csv"),
		filepath.Join(dir, "missing.parquet"),
		filepath.Join(dir, "spacex.db"),
		filepath.Join(dir, "launches.xlsx"),
	} {
		_, err := OpenFile(path)
		assert.True(t, errors.Is(err, core.ErrPrecondition), path)
	}
}

func TestOpenTable(t *testing.T) {
	reader, err := OpenTable("sqlite", createLaunchesDB(t), "launches", core.FieldID, core.FieldRocketName)
	require.NoError(t, err)
	defer reader.Close()

	records, err := reader.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Record{
		{"id": "l1", "rocket_name": "Falcon 1"},
		{"id": "l2", "rocket_name": "Falcon 9"},
	}, records)

	missing := filepath.Join(t.TempDir(), "spacex.db")
	_, err = OpenTable("sqlite", missing, "launches")
	assert.True(t, errors.Is(err, core.ErrPrecondition))
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}
