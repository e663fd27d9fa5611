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

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/launchetl"
	"github.com/aaronlmathis/launchetl/config"
	"github.com/aaronlmathis/launchetl/internal/logger"
)

const (
	runCmdUsage = "run"
	runCmdShort = "run the launch ETL once"
	runCmdLong  = `Fetch launches and rockets, export the joined records to CSV and
	load them into the database.

	Settings are read from the defaults, then the --config file, then
	LAUNCHETL_* environment variables, then the flags given on the command
	line. Relative paths are resolved against --base-dir, which defaults to
	the directory holding the launchetl binary.`

	runCmdExample = `# Run with the default paths
	launchetl run

	# Export the CSV only and skip the database
	launchetl run --dry-run --export-csv /tmp/launches.csv

	# Load into PostgreSQL instead of SQLite
	launchetl run --db-driver postgres --postgres-dsn "postgres://etl@localhost/spacex?sslmode=disable"`

	configFlagName        = "config"
	baseDirFlagName       = "base-dir"
	apiURLFlagName        = "api-url"
	dbPathFlagName        = "db-path"
	dbDriverFlagName      = "db-driver"
	postgresDSNFlagName   = "postgres-dsn"
	exportCSVFlagName     = "export-csv"
	exportParquetFlagName = "export-parquet"
	exportJSONFlagName    = "export-json"
	dryRunFlagName        = "dry-run"
	timeoutFlagName       = "timeout"
)

// runFlags holds the flags of a run. Only flags set on the command line
// override the loaded configuration.
type runFlags struct {
	configPath    string
	baseDir       string
	apiURL        string
	dbPath        string
	dbDriver      string
	postgresDSN   string
	exportCSV     string
	exportParquet string
	exportJSON    string
	dryRun        bool
	timeout       time.Duration
}

// addPathFlags registers the flags locating the configuration and the outputs.
func (f *runFlags) addPathFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, configFlagName, "", "path to a YAML configuration file")
	flags.StringVar(&f.baseDir, baseDirFlagName, "", "directory relative paths are resolved against (default: the executable directory)")
	flags.StringVar(&f.dbPath, dbPathFlagName, config.DefaultDBPath, "path to the SQLite database")
	flags.StringVar(&f.dbDriver, dbDriverFlagName, "sqlite", "database driver (sqlite or postgres)")
	flags.StringVar(&f.postgresDSN, postgresDSNFlagName, "", "PostgreSQL connection string, used with --db-driver postgres")
	flags.StringVar(&f.exportCSV, exportCSVFlagName, config.DefaultExportCSV, "path to export CSV data")
	flags.StringVar(&f.exportParquet, exportParquetFlagName, "", "optional path to export Parquet data")
	flags.StringVar(&f.exportJSON, exportJSONFlagName, "", "optional path to export JSON lines data")
	_ = cmd.MarkFlagFilename(configFlagName, "yaml", "yml")
}

// addFlags registers every flag of a run.
func (f *runFlags) addFlags(cmd *cobra.Command) {
	f.addPathFlags(cmd)
	flags := cmd.Flags()
	flags.StringVar(&f.apiURL, apiURLFlagName, config.DefaultAPIBaseURL, "base URL of the launches API")
	flags.BoolVar(&f.dryRun, dryRunFlagName, false, "export files only, do not write to the database")
	flags.DurationVar(&f.timeout, timeoutFlagName, config.DefaultTimeout, "timeout of each API request and database operation")
}

// toConfig layers the command line flags over the loaded configuration and
// resolves relative paths.
func (f *runFlags) toConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	overrides := map[string]func(){
		baseDirFlagName:       func() { cfg.BaseDir = f.baseDir },
		apiURLFlagName:        func() { cfg.APIBaseURL = f.apiURL },
		dbPathFlagName:        func() { cfg.DBPath = f.dbPath },
		dbDriverFlagName:      func() { cfg.DBDriver = f.dbDriver },
		postgresDSNFlagName:   func() { cfg.PostgresDSN = f.postgresDSN },
		exportCSVFlagName:     func() { cfg.ExportCSV = f.exportCSV },
		exportParquetFlagName: func() { cfg.ExportParquet = f.exportParquet },
		exportJSONFlagName:    func() { cfg.ExportJSON = f.exportJSON },
		dryRunFlagName:        func() { cfg.DryRun = f.dryRun },
		timeoutFlagName:       func() { cfg.Timeout = f.timeout },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		if baseDir, err = config.ExecutableDir(); err != nil {
			return config.Config{}, fmt.Errorf("%w: %w", config.ErrConfigNotValid, err)
		}
	}
	return cfg.Resolve(baseDir), nil
}

// execute runs one job with the configuration built from the flags.
func (f *runFlags) execute(cmd *cobra.Command) error {
	cfg, err := f.toConfig(cmd)
	if err != nil {
		return handleError(cmd, err)
	}

	log := logger.FromContext(cmd.Context())
	if !cmd.Flags().Changed(logLevelFlagName) && cfg.LogLevel != "" {
		log.SetLevel(logger.LevelFromString(cfg.LogLevel))
	}

	job, err := launchetl.NewJob(cfg)
	if err != nil {
		return handleError(cmd, err)
	}

	report, err := job.Run(cmd.Context())
	if err != nil {
		return handleError(cmd, err)
	}

	summary := fmt.Sprintf("%d launch records written to %s", report.Records, strings.Join(report.Sinks, ", "))
	if report.LoadSkipped {
		summary += " (dry run, database not written)"
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

// runCmd returns the "run" command.
func runCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     runCmdUsage,
		Short:   heredoc.Doc(runCmdShort),
		Long:    heredoc.Doc(runCmdLong),
		Example: heredoc.Doc(runCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              noArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.execute(cmd)
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// handleError prints err and returns it so the process exits with 1.
func handleError(cmd *cobra.Command, err error) error {
	cmd.PrintErrln(err)
	return err
}
