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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launchetl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://api.spacexdata.com/v4", cfg.APIBaseURL)
	assert.Equal(t, "db/spacex.db", cfg.DBPath)
	assert.Equal(t, "data/spacex_launches.csv", cfg.ExportCSV)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.DryRun)
	assert.NoError(t, cfg.Validate())
}

// TestPrecedence tests that the file overrides defaults and the environment overrides the file
func TestPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
api_url: http://localhost:8080/v4
timeout: 5s
db_path: /var/lib/launchetl/launches.db
dry_run: true
mongo:
  uri: mongodb://localhost:27017
s3:
  bucket: exports
  prefix: spacex
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, "http://localhost:8080/v4", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "data/spacex_launches.csv", cfg.ExportCSV)
	assert.Equal(t, "launches", cfg.Mongo.Collection)

	require.NoError(t, cfg.ApplyEnv(map[string]string{
		"LAUNCHETL_TIMEOUT":        "10s",
		"LAUNCHETL_DRY_RUN":        "false",
		"LAUNCHETL_EXPORT_CSV":     "out/launches.csv",
		"LAUNCHETL_S3_PREFIX":      "nightly",
		"LAUNCHETL_MONGO_DATABASE": "ops",
		"TIMEOUT":                  "1s",
	}))
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, "out/launches.csv", cfg.ExportCSV)
	assert.Equal(t, "/var/lib/launchetl/launches.db", cfg.DBPath)
	assert.Equal(t, "exports", cfg.S3.Bucket)
	assert.Equal(t, "nightly", cfg.S3.Prefix)
	assert.Equal(t, "ops", cfg.Mongo.Database)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrConfigNotValid))

	err = cfg.LoadFile(writeConfigFile(t, "db_paht: x.db\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotValid))

	require.NoError(t, cfg.LoadFile(writeConfigFile(t, "")))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(map[string]string{"LAUNCHETL_DRY_RUN": "maybe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotValid))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"empty api url", func(c *Config) { c.APIBaseURL = "" }, "api_url is required"},
		{"bad api url", func(c *Config) { c.APIBaseURL = "ftp://example.com" }, "is not an http(s) URL"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"no csv", func(c *Config) { c.ExportCSV = "" }, "export_csv is required"},
		{"bad driver", func(c *Config) { c.DBDriver = "oracle" }, "unsupported sql dialect"},
		{"no sqlite path", func(c *Config) { c.DBPath = "" }, "db_path is required"},
		{"no postgres dsn", func(c *Config) { c.DBDriver = "postgresql" }, "postgres_dsn is required"},
		{"mongo without collection", func(c *Config) { c.Mongo.URI = "mongodb://x"; c.Mongo.Collection = "" }, "mongo database and collection"},
		{"s3 without bucket", func(c *Config) { c.S3.Prefix = "p" }, "s3 bucket is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigNotValid))
			assert.True(t, errors.Is(err, core.ErrPrecondition))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.ExportParquet = "data/spacex_launches.parquet"
	cfg.ExportJSON = "/tmp/launches.jsonl"

	resolved := cfg.Resolve("/opt/launchetl")
	assert.Equal(t, "/opt/launchetl", resolved.BaseDir)
	assert.Equal(t, "/opt/launchetl/db/spacex.db", resolved.DBPath)
	assert.Equal(t, "/opt/launchetl/data/spacex_launches.csv", resolved.ExportCSV)
	assert.Equal(t, "/opt/launchetl/data/spacex_launches.parquet", resolved.ExportParquet)
	assert.Equal(t, "/tmp/launches.jsonl", resolved.ExportJSON)
	assert.Equal(t, "db/spacex.db", cfg.DBPath)

	cfg.BaseDir = "/srv"
	assert.Equal(t, "/srv/data/spacex_launches.csv", cfg.Resolve("/opt/launchetl").ExportCSV)

	cfg = Default()
	cfg.DBPath = ":memory:"
	assert.Equal(t, ":memory:", cfg.Resolve("/opt").DBPath)

	cfg = Default()
	cfg.DBDriver = "postgres"
	cfg.PostgresDSN = "postgres://localhost/spacex"
	resolved = cfg.Resolve("/opt")
	assert.Equal(t, "db/spacex.db", resolved.DBPath)
	assert.Equal(t, "postgres://localhost/spacex", resolved.DSN())
}
