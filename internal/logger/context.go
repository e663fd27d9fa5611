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
//
// Context propagation follows the logger package of mia-platform/ibdm
// (Copyright Mia srl).

package logger

import (
	"context"
)

type (
	loggerKeyType struct{}
	runIDKeyType  struct{}
)

var (
	loggerKey = loggerKeyType{}
	runIDKey  = runIDKeyType{}
)

// WithContext returns a copy of ctx carrying log.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, or the null logger.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nullLogger
	}
	if log, ok := ctx.Value(loggerKey).(Logger); ok {
		return log
	}
	return nullLogger
}

// WithRun scopes log to one ETL run: every line it writes carries run_id,
// and both the id and the scoped logger travel in the returned context.
func WithRun(ctx context.Context, log Logger, runID string) (context.Context, Logger) {
	if log == nil {
		log = FromContext(ctx)
	}
	scoped := log.With("run_id", runID)
	ctx = context.WithValue(ctx, runIDKey, runID)
	return WithContext(ctx, scoped), scoped
}

// RunID returns the id set by WithRun, or "" outside a run.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
