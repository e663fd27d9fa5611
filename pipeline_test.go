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

package launchetl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/readers"
)

type recordingSink struct {
	records  []core.Record
	flushed  bool
	closed   bool
	writeErr error
	closeErr error
}

func (s *recordingSink) Write(ctx context.Context, record core.Record) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) Flush() error {
	s.flushed = true
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func numbered(n int) []core.Record {
	records := make([]core.Record, n)
	for i := range records {
		records[i] = core.Record{"n": i}
	}
	return records
}

func TestPipeline_Build(t *testing.T) {
	_, err := NewPipeline().To(&recordingSink{}).Build()
	assert.EqualError(t, err, "pipeline requires a data source")

	_, err = NewPipeline().From(readers.NewSliceReader(nil)).Build()
	assert.EqualError(t, err, "pipeline requires a data sink")
}

// TestPipeline_Execute tests transform and filter chaining with flush on success
func TestPipeline_Execute(t *testing.T) {
	sink := &recordingSink{}
	pipeline, err := NewPipeline().
		From(readers.NewSliceReader(numbered(5))).
		Map(func(ctx context.Context, record core.Record) (core.Record, error) {
			out := record.Clone()
			out["double"] = record["n"].(int) * 2
			return out, nil
		}).
		Where(func(ctx context.Context, record core.Record) (bool, error) {
			return record["n"].(int)%2 == 0, nil
		}).
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
	assert.Equal(t, int64(3), pipeline.Written())
	assert.Equal(t, []core.Record{
		{"n": 0, "double": 0},
		{"n": 2, "double": 4},
		{"n": 4, "double": 8},
	}, sink.records)
}

// TestPipeline_FailFast tests that a failed write closes the sink without flushing
func TestPipeline_FailFast(t *testing.T) {
	writeErr := errors.New("disk full")
	closeErr := errors.New("close failed")
	sink := &recordingSink{writeErr: writeErr, closeErr: closeErr}

	pipeline, err := NewPipeline().From(readers.NewSliceReader(numbered(2))).To(sink).Build()
	require.NoError(t, err)

	err = pipeline.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, writeErr))
	assert.True(t, errors.Is(err, closeErr))
	assert.False(t, sink.flushed)
	assert.True(t, sink.closed)
}

func TestPipeline_ErrorStrategies(t *testing.T) {
	failOdd := func(ctx context.Context, record core.Record) (core.Record, error) {
		if record["n"].(int)%2 == 1 {
			return nil, errors.New("odd record")
		}
		return record, nil
	}

	sink := &recordingSink{}
	pipeline, err := NewPipeline().
		From(readers.NewSliceReader(numbered(4))).
		Map(failOdd).
		WithErrorStrategy(core.CollectErrors).
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background()))
	assert.Len(t, pipeline.Errors(), 2)
	assert.Len(t, sink.records, 2)
	assert.True(t, sink.flushed)

	var handled int
	sink = &recordingSink{}
	pipeline, err = NewPipeline().
		From(readers.NewSliceReader(numbered(4))).
		Map(failOdd).
		WithErrorStrategy(core.SkipErrors).
		WithErrorHandler(core.ErrorHandlerFunc(func(ctx context.Context, record core.Record, err error) error {
			handled++
			return nil
		})).
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background()))
	assert.Equal(t, 2, handled)
	assert.Empty(t, pipeline.Errors())
	assert.Len(t, sink.records, 2)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	pipeline, err := NewPipeline().From(readers.NewSliceReader(numbered(1))).To(sink).Build()
	require.NoError(t, err)

	err = pipeline.Execute(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, sink.flushed)
	assert.True(t, sink.closed)
	assert.Empty(t, sink.records)
}
