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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/launchetl/core"
)

// S3PublisherError wraps S3 upload errors with context.
type S3PublisherError struct {
	Op  string
	Key string
	Err error
}

func (e *S3PublisherError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 publisher %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 publisher %s: %v", e.Op, e.Err)
}

func (e *S3PublisherError) Unwrap() error {
	return e.Err
}

// S3PutObjectAPI is the part of *s3.Client the publisher needs.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3PublisherOptions configures the publisher.
type S3PublisherOptions struct {
	Bucket         string
	Prefix         string
	Region         string
	Profile        string
	EndpointURL    string // Custom endpoint (for S3-compatible services)
	ForcePathStyle bool
	Credentials    aws.Credentials // Explicit credentials
	Client         S3PutObjectAPI  // Pre-built client; skips AWS config loading
}

// PublisherOptionS3 is a functional option.
type PublisherOptionS3 func(*S3PublisherOptions)

func WithS3Bucket(bucket string) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Bucket = bucket
	}
}

func WithS3Prefix(prefix string) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Region(region string) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Profile = profile
	}
}

// WithS3Endpoint targets an S3-compatible service such as MinIO.
func WithS3Endpoint(endpoint string, forcePathStyle bool) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.EndpointURL = endpoint
		opts.ForcePathStyle = forcePathStyle
	}
}

func WithS3Credentials(creds aws.Credentials) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Credentials = creds
	}
}

// WithS3Client injects the client, mainly for tests.
func WithS3Client(client S3PutObjectAPI) PublisherOptionS3 {
	return func(opts *S3PublisherOptions) {
		opts.Client = client
	}
}

// S3PublisherStats holds upload statistics.
type S3PublisherStats struct {
	ObjectsPut    int64
	BytesPut      int64
	PutDuration   time.Duration
	PublishedKeys []string
}

// S3Publisher uploads finished export files to a bucket, one object per
// file under Prefix.
type S3Publisher struct {
	client S3PutObjectAPI
	opts   S3PublisherOptions
	stats  S3PublisherStats
}

// NewS3Publisher validates the options and builds the S3 client.
func NewS3Publisher(ctx context.Context, options ...PublisherOptionS3) (*S3Publisher, error) {
	var opts S3PublisherOptions
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3PublisherError{Op: "validate_options", Err: fmt.Errorf("%w: bucket is required", core.ErrPrecondition)}
	}

	client := opts.Client
	if client == nil {
		cfg, err := createAWSConfig(ctx, opts)
		if err != nil {
			return nil, &S3PublisherError{Op: "create_aws_config", Err: fmt.Errorf("%w: %w", core.ErrPrecondition, err)}
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.EndpointURL != "" {
				o.BaseEndpoint = aws.String(opts.EndpointURL)
			}
			o.UsePathStyle = opts.ForcePathStyle
		})
	}

	return &S3Publisher{client: client, opts: opts}, nil
}

// createAWSConfig creates AWS configuration from options.
func createAWSConfig(ctx context.Context, opts S3PublisherOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

// ObjectKey returns the key for a local file: prefix joined with the file's
// base name.
func ObjectKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filepath.Base(filename)
	}
	return path.Join(prefix, filepath.Base(filename))
}

// contentType picks the object content type from the file extension.
func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Publish uploads every file in order and returns the object keys. It stops
// at the first failure.
func (p *S3Publisher) Publish(ctx context.Context, files ...string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, filename := range files {
		key, err := p.put(ctx, filename)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *S3Publisher) put(ctx context.Context, filename string) (string, error) {
	key := ObjectKey(p.opts.Prefix, filename)

	f, err := os.Open(filename)
	if err != nil {
		return "", &S3PublisherError{Op: "open_file", Key: key, Err: fmt.Errorf("%w: %w", core.ErrPrecondition, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &S3PublisherError{Op: "stat_file", Key: key, Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}

	start := time.Now()
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.opts.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(filename)),
	})
	if err != nil {
		return "", &S3PublisherError{Op: "put_object", Key: key, Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}

	p.stats.ObjectsPut++
	p.stats.BytesPut += info.Size()
	p.stats.PutDuration += time.Since(start)
	p.stats.PublishedKeys = append(p.stats.PublishedKeys, key)
	return key, nil
}

// Bucket returns the target bucket.
func (p *S3Publisher) Bucket() string {
	return p.opts.Bucket
}

// Stats returns upload statistics.
func (p *S3Publisher) Stats() S3PublisherStats {
	stats := p.stats
	stats.PublishedKeys = append([]string(nil), p.stats.PublishedKeys...)
	return stats
}
