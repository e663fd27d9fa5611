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
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/launchetl/aggregate"
	"github.com/aaronlmathis/launchetl/config"
	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/readers"
	"github.com/aaronlmathis/launchetl/validators"
	"github.com/aaronlmathis/launchetl/writers"
)

const (
	inspectCmdUsage = "inspect [FILE...]"
	inspectCmdShort = "summarize exported files and the loaded database table"
	inspectCmdLong  = `Read back the outputs of a run and print the record count, the columns
	and the number of launches per rocket for each of them.

	Without arguments the configured CSV export, the optional Parquet and JSON
	exports and the database table are inspected. Files ending in .db,
	.sqlite or .sqlite3 are read as SQLite databases.`

	inspectCmdExample = `# Inspect the outputs of the default run
	launchetl inspect

	# Inspect a single Parquet export
	launchetl inspect data/spacex_launches.parquet`
)

// inspection is the summary of one output.
type inspection struct {
	name    string
	records int
	columns []string
	rockets *aggregate.CountByAggregator
}

func (i inspection) write(out io.Writer) {
	fmt.Fprintf(out, "%s: %d records\n", i.name, i.records)
	if len(i.columns) > 0 {
		fmt.Fprintf(out, "  columns: %s\n", strings.Join(i.columns, ", "))
	}
	counts := i.rockets.Counts()
	if len(counts) == 0 {
		return
	}
	groups := make([]string, 0, len(counts))
	for _, name := range i.rockets.Keys() {
		groups = append(groups, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	fmt.Fprintf(out, "  %s: %s\n", core.FieldRocketName, strings.Join(groups, ", "))
}

// inspectSource drains source and summarizes its records. The source is
// closed on every path.
func inspectSource(ctx context.Context, name string, source core.DataSource) (result inspection, err error) {
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	records := make([]core.Record, 0)
	for {
		record, err := source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return inspection{}, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, record)
	}

	total := &aggregate.CountAggregator{}
	rockets := aggregate.CountBy(core.FieldRocketName)
	if err := aggregate.Apply(ctx, records, total, rockets); err != nil {
		return inspection{}, err
	}

	result = inspection{name: name, records: total.Count(), rockets: rockets}
	if len(records) > 0 {
		result.columns = validators.KeysOf(records[0], core.LaunchColumns)
	}
	return result, nil
}

// openTarget opens a file argument, or the configured database table when
// path is empty.
func openTarget(cfg config.Config, path string) (string, core.DataSource, error) {
	if path == "" {
		dialect, err := cfg.Dialect()
		if err != nil {
			return "", nil, err
		}
		name := fmt.Sprintf("%s (%s)", cfg.TableName, dialect)
		if dialect == writers.DialectSQLite {
			name = fmt.Sprintf("%s (%s %s)", cfg.TableName, dialect, cfg.DBPath)
		}
		source, err := readers.OpenTable(string(dialect), cfg.DSN(), cfg.TableName, core.LaunchColumns...)
		return name, source, err
	}

	if readers.FormatOf(path) == readers.FormatSQLite {
		name := fmt.Sprintf("%s (%s %s)", cfg.TableName, writers.DialectSQLite, path)
		source, err := readers.OpenTable(string(writers.DialectSQLite), path, cfg.TableName, core.LaunchColumns...)
		return name, source, err
	}

	source, err := readers.OpenFile(path)
	return path, source, err
}

func inspectCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     inspectCmdUsage,
		Short:   heredoc.Doc(inspectCmdShort),
		Long:    heredoc.Doc(inspectCmdLong),
		Example: heredoc.Doc(inspectCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.toConfig(cmd)
			if err != nil {
				return handleError(cmd, err)
			}

			targets := make([]string, 0, 4)
			if len(args) == 0 {
				for _, path := range []string{cfg.ExportCSV, cfg.ExportParquet, cfg.ExportJSON} {
					if path != "" {
						targets = append(targets, path)
					}
				}
				targets = append(targets, "")
			}
			for _, arg := range args {
				if !filepath.IsAbs(arg) {
					arg = filepath.Join(cfg.BaseDir, arg)
				}
				targets = append(targets, arg)
			}

			for _, target := range targets {
				name, source, err := openTarget(cfg, target)
				if err != nil {
					return handleError(cmd, err)
				}
				result, err := inspectSource(cmd.Context(), name, source)
				if err != nil {
					return handleError(cmd, err)
				}
				result.write(cmd.OutOrStdout())
			}
			return nil
		},
	}

	flags.addPathFlags(cmd)
	return cmd
}
