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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

func newJSONServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// TestHTTPReader_PreservesServerOrder tests that records stream in array order
func TestHTTPReader_PreservesServerOrder(t *testing.T) {
	server := newJSONServer(t, http.StatusOK, `[
		{"id": "c", "name": "third"},
		{"id": "a", "name": "first", "details": null},
		{"id": "b", "name": "second"}
	]`)

	reader, err := NewHTTPReader(server.URL)
	require.NoError(t, err)
	defer reader.Close()

	records, err := reader.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "c", records[0]["id"])
	assert.Equal(t, "a", records[1]["id"])
	assert.Equal(t, "b", records[2]["id"])

	stats := reader.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["details"])

	_, err = reader.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

// TestHTTPReader_EmptyArray tests that an empty collection is not an error
func TestHTTPReader_EmptyArray(t *testing.T) {
	server := newJSONServer(t, http.StatusOK, `[]`)

	records, err := FetchAll(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestHTTPReader_StatusErrors tests that non-2xx responses are network errors
func TestHTTPReader_StatusErrors(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := newJSONServer(t, status, `{"error":"nope"}`)

			_, err := FetchAll(context.Background(), server.URL)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrNetwork))
			assert.False(t, errors.Is(err, core.ErrParse))

			var httpErr *HTTPReaderError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, "status_check", httpErr.Op)
			assert.Equal(t, status, httpErr.StatusCode)
		})
	}
}

// TestHTTPReader_ParseErrors tests bodies that are not a JSON array of objects
func TestHTTPReader_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":      `[{"id": "a",`,
		"object":         `{"docs": []}`,
		"null":           `null`,
		"empty":          ``,
		"scalar element": `[{"id": "a"}, 42]`,
		"null element":   `[null]`,
		"html":           `<html>oops</html>`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := newJSONServer(t, http.StatusOK, body)

			_, err := FetchAll(context.Background(), server.URL)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrParse), "got %v", err)
			assert.False(t, errors.Is(err, core.ErrNetwork))
		})
	}
}

// TestHTTPReader_ConnectionRefused tests transport failures
func TestHTTPReader_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := FetchAll(context.Background(), url, WithHTTPTimeout(2*time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNetwork))

	var httpErr *HTTPReaderError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "request", httpErr.Op)
}

// TestHTTPReader_Timeout tests that a hanging server does not block forever
func TestHTTPReader_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := FetchAll(context.Background(), server.URL, WithHTTPTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNetwork))
}

// TestHTTPReader_Headers tests the request shape
func TestHTTPReader_Headers(t *testing.T) {
	var gotMethod, gotAgent, gotCustom, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAgent = r.UserAgent()
		gotCustom = r.Header.Get("X-Trace")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := FetchAll(context.Background(), server.URL,
		WithHTTPUserAgent("launchetl-test"),
		WithHTTPHeaders(map[string]string{"X-Trace": "abc"}),
	)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "launchetl-test", gotAgent)
	assert.Equal(t, "abc", gotCustom)
	assert.Empty(t, gotQuery)
}

// TestHTTPReader_MaxResponseSize tests the response size limit
func TestHTTPReader_MaxResponseSize(t *testing.T) {
	server := newJSONServer(t, http.StatusOK, `[{"id": "aaaaaaaaaaaaaaaaaaaaaaaa"}]`)

	_, err := FetchAll(context.Background(), server.URL, WithHTTPMaxResponseSize(8))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNetwork))
}

// TestHTTPReader_CancelledContext tests that a cancelled context aborts the read
func TestHTTPReader_CancelledContext(t *testing.T) {
	server := newJSONServer(t, http.StatusOK, `[]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader, err := NewHTTPReader(server.URL)
	require.NoError(t, err)
	_, err = reader.Read(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewHTTPReader_RequiresURL(t *testing.T) {
	_, err := NewHTTPReader("")
	require.Error(t, err)
}
