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
	"fmt"
	"io"

	"github.com/aaronlmathis/launchetl/core"
)

// Package launchetl extracts launch and rocket data from a REST API, joins them,
// and loads the flattened records into CSV, SQL and other sinks.
//
// Core Concepts:
//   - DataSource: Interface for reading records (HTTP API, CSV, in-memory slice).
//   - DataSink: Interface for writing records (CSV, SQLite, PostgreSQL, Parquet, MongoDB).
//   - Transformer: Interface for transforming records (lookup join, projection).
//   - Pipeline: Composable, chainable pipeline for record-by-record processing.
//   - Job: The launch ETL driver sequencing extract, transform, export and load.
//
// Example usage:
//
//   pipeline, err := launchetl.NewPipeline().
//       From(readers.NewSliceReader(records)).
//       To(csvWriter).
//       Build()
//   if err != nil { log.Fatal(err) }
//   if err := pipeline.Execute(context.Background()); err != nil { log.Fatal(err) }

// PipelineBuilder provides a fluent API for constructing transformation pipelines.
// Use NewPipeline() to create a new builder, then chain From, Transform, Filter, To, and configuration methods.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder for constructing an ETL pipeline.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]core.Transformer, 0),
			filters:      make([]core.Filter, 0),
			strategy:     core.FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source core.DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer core.Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter core.Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record core.Record) (core.Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record core.Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(core.FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink core.DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy core.ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler core.ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
//
// Returns the constructed pipeline, or an error if required components are missing.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// Pipeline represents a data processing pipeline for streaming ETL operations.
//
// Use Execute to process all records from the DataSource through transformations and filters, writing to the DataSink.
type Pipeline struct {
	transformers []core.Transformer
	filters      []core.Filter
	source       core.DataSource
	sink         core.DataSink
	strategy     core.ErrorStrategy
	errorHandler core.ErrorHandler
	collected    []error
	written      int64
}

// Execute runs the pipeline, processing all records from source to sink.
//
// The source is always closed. On success the sink is flushed before it is
// closed; on failure it is only closed, so transactional sinks discard the
// partial batch. Close errors are joined onto the returned error.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	defer func() {
		if p.source != nil {
			if cerr := p.source.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if p.sink == nil {
			return
		}
		if err == nil {
			err = p.sink.Flush()
		}
		if cerr := p.sink.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := p.source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}

		// Skip empty records early
		if len(record) == 0 {
			continue
		}

		transformedRecord, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}

		if len(transformedRecord) == 0 {
			continue
		}

		shouldInclude, err := p.applyFilters(ctx, transformedRecord)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if !shouldInclude {
			continue
		}

		if err := p.sink.Write(ctx, transformedRecord); err != nil {
			if err := p.handleError(ctx, transformedRecord, err); err != nil {
				return err
			}
			continue
		}
		p.written++
	}

	return nil
}

// Written returns the number of records accepted by the sink.
func (p *Pipeline) Written() int64 {
	return p.written
}

// Errors returns the errors collected under the CollectErrors strategy.
func (p *Pipeline) Errors() []error {
	return append([]error(nil), p.collected...)
}

// applyFilters applies all configured filters to a record.
// Returns true if the record should be included, false otherwise, or an error if a filter returns an error.
func (p *Pipeline) applyFilters(ctx context.Context, record core.Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations applies all configured transformers to a record in sequence.
func (p *Pipeline) applyTransformations(ctx context.Context, record core.Record) (core.Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError handles errors according to the pipeline's error strategy and handler.
// Returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, record core.Record, err error) error {
	switch p.strategy {
	case core.FailFast:
		return err
	case core.SkipErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	case core.CollectErrors:
		p.collected = append(p.collected, err)
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}
