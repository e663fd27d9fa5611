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

package writers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/launchetl/core"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        string
}

type fakeS3 struct {
	puts []putCall
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, putCall{
		bucket:      aws.ToString(params.Bucket),
		key:         aws.ToString(params.Key),
		contentType: aws.ToString(params.ContentType),
		body:        string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

// TestS3Publisher_Publish tests key building and upload content
func TestS3Publisher_Publish(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "spacex_launches.csv")
	pqPath := filepath.Join(dir, "spacex_launches.parquet")
	require.NoError(t, os.WriteFile(csvPath, []byte("id\nl1\n"), 0644))
	require.NoError(t, os.WriteFile(pqPath, []byte("PAR1"), 0644))

	fake := &fakeS3{}
	publisher, err := NewS3Publisher(context.Background(),
		WithS3Bucket("exports"), WithS3Prefix("/spacex/run-1/"), WithS3Client(fake))
	require.NoError(t, err)

	keys, err := publisher.Publish(context.Background(), csvPath, pqPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"spacex/run-1/spacex_launches.csv", "spacex/run-1/spacex_launches.parquet"}, keys)

	require.Len(t, fake.puts, 2)
	assert.Equal(t, putCall{bucket: "exports", key: "spacex/run-1/spacex_launches.csv", contentType: "text/csv", body: "id\nl1\n"}, fake.puts[0])
	assert.Equal(t, "application/octet-stream", fake.puts[1].contentType)

	stats := publisher.Stats()
	assert.Equal(t, int64(2), stats.ObjectsPut)
	assert.Equal(t, int64(10), stats.BytesPut)
}

func TestS3Publisher_Errors(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), WithS3Client(&fakeS3{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPrecondition))

	publisher, err := NewS3Publisher(context.Background(), WithS3Bucket("b"), WithS3Client(&fakeS3{}))
	require.NoError(t, err)
	_, err = publisher.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPrecondition))

	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	publisher, err = NewS3Publisher(context.Background(), WithS3Bucket("b"), WithS3Client(&fakeS3{err: errors.New("access denied")}))
	require.NoError(t, err)
	keys, err := publisher.Publish(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, keys)
	assert.True(t, errors.Is(err, core.ErrWrite))

	var pubErr *S3PublisherError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, "a.csv", pubErr.Key)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "launches.csv", ObjectKey("", "/tmp/data/launches.csv"))
	assert.Equal(t, "a/b/launches.csv", ObjectKey("a/b", "launches.csv"))
	assert.Equal(t, "a/launches.csv", ObjectKey("/a/", "x/launches.csv"))
}
