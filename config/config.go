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

// Package config holds the settings of a launch ETL run.
//
// Values are layered in increasing precedence: Default, a YAML file, then
// LAUNCHETL_* environment variables. The CLI applies its flags last.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/writers"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LAUNCHETL_"

const (
	DefaultAPIBaseURL = "https://api.spacexdata.com/v4"
	DefaultDBPath     = "db/spacex.db"
	DefaultExportCSV  = "data/spacex_launches.csv"
	DefaultTimeout    = 30 * time.Second
)

var (
	ErrConfigNotValid = errors.New("configuration not valid")
)

// Config is the complete set of settings for one run.
type Config struct {
	BaseDir    string        `yaml:"base_dir" env:"BASE_DIR"`
	APIBaseURL string        `yaml:"api_url" env:"API_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	UserAgent  string        `yaml:"user_agent" env:"USER_AGENT"`

	DBDriver    string `yaml:"db_driver" env:"DB_DRIVER"`
	DBPath      string `yaml:"db_path" env:"DB_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	TableName   string `yaml:"table_name" env:"TABLE_NAME"`

	ExportCSV     string `yaml:"export_csv" env:"EXPORT_CSV"`
	ExportParquet string `yaml:"export_parquet" env:"EXPORT_PARQUET"`
	ExportJSON    string `yaml:"export_json" env:"EXPORT_JSON"`

	DryRun   bool   `yaml:"dry_run" env:"DRY_RUN"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Mongo MongoConfig `yaml:"mongo" envPrefix:"MONGO_"`
	S3    S3Config    `yaml:"s3" envPrefix:"S3_"`
}

// MongoConfig enables the document store load when URI is set.
type MongoConfig struct {
	URI        string `yaml:"uri" env:"URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// S3Config enables publishing the exported files when Bucket is set.
type S3Config struct {
	Bucket         string `yaml:"bucket" env:"BUCKET"`
	Prefix         string `yaml:"prefix" env:"PREFIX"`
	Region         string `yaml:"region" env:"REGION"`
	Profile        string `yaml:"profile" env:"PROFILE"`
	Endpoint       string `yaml:"endpoint" env:"ENDPOINT"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"FORCE_PATH_STYLE"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		APIBaseURL: DefaultAPIBaseURL,
		Timeout:    DefaultTimeout,
		DBDriver:   string(writers.DialectSQLite),
		DBPath:     DefaultDBPath,
		TableName:  "launches",
		ExportCSV:  DefaultExportCSV,
		LogLevel:   "INFO",
		Mongo: MongoConfig{
			Database:   "spacex",
			Collection: "launches",
		},
	}
}

// Load layers Default, the YAML file at path (skipped when empty) and the
// process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys that are not
// part of Config are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigNotValid, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrConfigNotValid, path, err)
	}
	return nil
}

// ApplyEnv overlays LAUNCHETL_* variables onto c. A nil environ reads the
// process environment. Unset variables leave the current value alone.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigNotValid, err.Error())
	}
	return nil
}

// Dialect returns the parsed database driver name.
func (c Config) Dialect() (writers.Dialect, error) {
	return writers.ParseDialect(c.DBDriver)
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if dialect, err := c.Dialect(); err == nil && dialect == writers.DialectPostgres {
		return c.PostgresDSN
	}
	return c.DBPath
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	problems := make([]string, 0)

	if c.APIBaseURL == "" {
		problems = append(problems, "api_url is required")
	} else if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api_url %q is not an http(s) URL", c.APIBaseURL))
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.ExportCSV == "" {
		problems = append(problems, "export_csv is required")
	}

	dialect, err := c.Dialect()
	switch {
	case err != nil:
		problems = append(problems, err.Error())
	case dialect == writers.DialectSQLite && c.DBPath == "":
		problems = append(problems, "db_path is required for sqlite")
	case dialect == writers.DialectPostgres && c.PostgresDSN == "":
		problems = append(problems, "postgres_dsn is required for postgres")
	}

	if c.Mongo.URI != "" && (c.Mongo.Database == "" || c.Mongo.Collection == "") {
		problems = append(problems, "mongo database and collection are required when mongo uri is set")
	}
	if c.S3.Bucket == "" && (c.S3.Prefix != "" || c.S3.Endpoint != "") {
		problems = append(problems, "s3 bucket is required when s3 settings are given")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w: %s", ErrConfigNotValid, core.ErrPrecondition, strings.Join(problems, ", "))
	}
	return nil
}

// Resolve returns a copy of c whose relative file paths are made absolute.
// BaseDir wins over baseDir when set.
func (c Config) Resolve(baseDir string) Config {
	if c.BaseDir != "" {
		baseDir = c.BaseDir
	}
	if baseDir == "" {
		return c
	}

	out := c
	out.BaseDir = baseDir
	out.ExportCSV = resolvePath(baseDir, c.ExportCSV)
	out.ExportParquet = resolvePath(baseDir, c.ExportParquet)
	out.ExportJSON = resolvePath(baseDir, c.ExportJSON)
	if dialect, err := c.Dialect(); err == nil && dialect == writers.DialectSQLite && !isSpecialSQLitePath(c.DBPath) {
		out.DBPath = resolvePath(baseDir, c.DBPath)
	}
	return out
}

// ExecutableDir returns the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func isSpecialSQLitePath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}
