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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aaronlmathis/launchetl/core"
)

// Package readers provides implementations of core.DataSource for reading data from various sources.
//
// This file implements the HTTP reader used to extract collections from a JSON REST API.
// A reader performs exactly one GET, expects a top-level JSON array of objects, and
// then streams the decoded objects in server order. There are no retries and no pagination.

// HTTPReaderError provides structured error information for HTTP reader operations.
// Err always wraps core.ErrNetwork or core.ErrParse.
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "status_check", "parse")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount    int64            // Total HTTP requests made
	RecordsRead     int64            // Total records read
	BytesRead       int64            // Total bytes read
	ResponseTime    time.Duration    // Time spent waiting on the response
	NullValueCounts map[string]int64 // Count of null values per field
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Headers         map[string]string // Additional headers
	Timeout         time.Duration     // Request timeout
	MaxResponseSize int64             // Maximum response size in bytes
	UserAgent       string            // User agent string
	CustomClient    *http.Client      // Custom HTTP client
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPUserAgent(userAgent string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.UserAgent = userAgent
	}
}

func WithHTTPMaxResponseSize(size int64) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.MaxResponseSize = size
	}
}

// WithHTTPClient replaces the reader's client. The client's own timeout applies.
func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource for a single JSON array endpoint.
type HTTPReader struct {
	url          string
	client       *http.Client
	opts         *HTTPReaderOptions
	stats        HTTPReaderStats
	currentData  []core.Record
	currentIndex int
	loaded       bool
}

// NewHTTPReader creates a new HTTP API reader with configurable options
func NewHTTPReader(url string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	if url == "" {
		return nil, &HTTPReaderError{Op: "configure", Err: fmt.Errorf("url is required")}
	}

	opts := &HTTPReaderOptions{
		Headers:         make(map[string]string),
		Timeout:         30 * time.Second,
		MaxResponseSize: 100 * 1024 * 1024, // 100MB
		UserAgent:       "LaunchETL-HTTPReader/1.0",
	}

	for _, option := range options {
		option(opts)
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
		}
	}

	return &HTTPReader{
		url:    url,
		client: client,
		opts:   opts,
		stats:  HTTPReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Read implements the core.DataSource interface.
// The first call performs the request; later calls walk the decoded array.
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &HTTPReaderError{Op: "read", URL: hr.url, Err: fmt.Errorf("%w: %w", core.ErrNetwork, ctx.Err())}
	default:
	}

	if !hr.loaded {
		if err := hr.load(ctx); err != nil {
			return nil, err
		}
		hr.loaded = true
	}

	if hr.currentIndex >= len(hr.currentData) {
		return nil, io.EOF
	}

	record := hr.currentData[hr.currentIndex]
	hr.currentIndex++
	hr.stats.RecordsRead++

	for key, val := range record {
		if val == nil {
			hr.stats.NullValueCounts[key]++
		}
	}

	return record, nil
}

// ReadAll drains the reader and returns every record in server order.
func (hr *HTTPReader) ReadAll(ctx context.Context) ([]core.Record, error) {
	records := make([]core.Record, 0)
	for {
		record, err := hr.Read(ctx)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// Close implements the core.DataSource interface
func (hr *HTTPReader) Close() error {
	hr.currentData = nil
	return nil
}

// Stats returns HTTP reader performance statistics
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

// load executes the request and decodes the body.
func (hr *HTTPReader) load(ctx context.Context) error {
	data, err := hr.executeRequest(ctx)
	if err != nil {
		return err
	}

	records, err := parseJSONArray(data)
	if err != nil {
		return &HTTPReaderError{Op: "parse", URL: hr.url, Err: fmt.Errorf("%w: %w", core.ErrParse, err)}
	}

	hr.currentData = records
	hr.currentIndex = 0
	return nil
}

// executeRequest executes a single HTTP GET
func (hr *HTTPReader) executeRequest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hr.url, nil)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: hr.url, Err: fmt.Errorf("%w: %w", core.ErrNetwork, err)}
	}

	req.Header.Set("User-Agent", hr.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}

	requestStart := time.Now()
	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: hr.url, Err: fmt.Errorf("%w: %w", core.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	hr.stats.RequestCount++
	hr.stats.ResponseTime += time.Since(requestStart)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        hr.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: unexpected status code: %d", core.ErrNetwork, resp.StatusCode),
		}
	}

	// Read one byte past the limit so an oversized body is detected instead of truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize+1))
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: hr.url, Err: fmt.Errorf("%w: %w", core.ErrNetwork, err)}
	}
	if int64(len(data)) > hr.opts.MaxResponseSize {
		return nil, &HTTPReaderError{
			Op:  "read_response",
			URL: hr.url,
			Err: fmt.Errorf("%w: response exceeds %d bytes", core.ErrNetwork, hr.opts.MaxResponseSize),
		}
	}

	hr.stats.BytesRead += int64(len(data))
	return data, nil
}

// parseJSONArray decodes a top-level JSON array of objects.
func parseJSONArray(data []byte) ([]core.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	if bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("expected top-level JSON array, got null")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		if trimmed[0] != '[' {
			return nil, fmt.Errorf("expected top-level JSON array: %w", err)
		}
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	records := make([]core.Record, 0, len(items))
	for i, item := range items {
		var record core.Record
		if err := json.Unmarshal(item, &record); err != nil {
			return nil, fmt.Errorf("element %d is not a JSON object: %w", i, err)
		}
		if record == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}
		records = append(records, record)
	}

	return records, nil
}

// FetchAll performs a single GET against url and returns the decoded records.
func FetchAll(ctx context.Context, url string, options ...ReaderOptionHTTP) ([]core.Record, error) {
	reader, err := NewHTTPReader(url, options...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.ReadAll(ctx)
}
