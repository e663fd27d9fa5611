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

package core

import (
	"context"
	"errors"
	"fmt"
)

// Package core defines the error handling types for the LaunchETL library.
//
// This file contains the error taxonomy, error handling interfaces, strategies, and function adapters.

// Error kinds. Component errors wrap exactly one of these so callers can
// classify a failure with errors.Is regardless of which layer produced it.
var (
	// ErrNetwork reports a failed request or a non-2xx response.
	ErrNetwork = errors.New("network error")
	// ErrParse reports a response body that is not a JSON array of objects.
	ErrParse = errors.New("parse error")
	// ErrWrite reports a filesystem or database write failure.
	ErrWrite = errors.New("write error")
	// ErrPrecondition reports input a sink cannot accept, such as an empty
	// record set or records with differing key sets.
	ErrPrecondition = errors.New("precondition failed")
)

// Pipeline stage names used in StageError.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageExport    = "export"
	StageLoad      = "load"
	StagePublish   = "publish"
)

// StageError identifies the pipeline stage that failed.
type StageError struct {
	Stage string // One of the Stage* constants
	Sink  string // Sink name for export/load/publish stages, empty otherwise
	Err   error  // Underlying error
}

func (e *StageError) Error() string {
	if e.Sink != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Sink, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred during transformation.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
// Allows ordinary functions to be used as error handlers.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}
