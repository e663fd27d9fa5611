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
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/validators"
)

// MongoWriterError wraps MongoDB write errors with context about the operation.
type MongoWriterError struct {
	Op  string
	Err error
}

func (e *MongoWriterError) Error() string {
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoCollection is the part of *mongo.Collection the writer needs.
type MongoCollection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// MongoWriterStats holds MongoDB write statistics.
type MongoWriterStats struct {
	RecordsWritten int64
	Upserted       int64
	Modified       int64
	Matched        int64
	FlushDuration  time.Duration
}

// MongoWriterOptions configures the MongoDB writer.
type MongoWriterOptions struct {
	KeyField       string            // Record field copied to _id
	BatchSize      int               // Records per BulkWrite call on Flush
	ConnectTimeout time.Duration     // Client connect and ping timeout
	Metadata       map[string]string // Extra fields set on every document
}

// WriterOptionMongo is a functional option.
type WriterOptionMongo func(*MongoWriterOptions)

// WithMongoKeyField sets the record field used as the document _id.
func WithMongoKeyField(field string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.KeyField = field
	}
}

// WithMongoBatchSize sets the number of models per BulkWrite.
func WithMongoBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.BatchSize = size
	}
}

// WithMongoConnectTimeout sets the connect and ping timeout.
func WithMongoConnectTimeout(timeout time.Duration) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.ConnectTimeout = timeout
	}
}

// WithMongoMetadata adds fields, such as a run id, to every document.
func WithMongoMetadata(metadata map[string]string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// MongoWriter implements core.DataSink by upserting one document per record,
// keyed on _id. Records are buffered and sent on Flush; Close drops anything
// not flushed and disconnects a client it owns.
type MongoWriter struct {
	client     *mongo.Client
	collection MongoCollection
	opts       MongoWriterOptions
	buffer     []core.Record
	stats      MongoWriterStats
	mu         sync.Mutex
}

func (opts *MongoWriterOptions) withDefaults() *MongoWriterOptions {
	if opts.KeyField == "" {
		opts.KeyField = core.FieldID
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return opts
}

// NewMongoWriter connects to uri and writes to database.collection.
func NewMongoWriter(ctx context.Context, uri, database, collection string, opts ...WriterOptionMongo) (*MongoWriter, error) {
	if uri == "" || database == "" || collection == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("%w: uri, database and collection are required", core.ErrPrecondition)}
	}

	cfg := &MongoWriterOptions{}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.withDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &MongoWriterError{Op: "ping", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
	}

	writer := newMongoWriter(client.Database(database).Collection(collection), cfg)
	writer.client = client
	return writer, nil
}

// NewMongoCollectionWriter writes to an existing collection handle.
func NewMongoCollectionWriter(collection MongoCollection, opts ...WriterOptionMongo) *MongoWriter {
	cfg := &MongoWriterOptions{}
	for _, opt := range opts {
		opt(cfg)
	}
	return newMongoWriter(collection, cfg.withDefaults())
}

func newMongoWriter(collection MongoCollection, opts *MongoWriterOptions) *MongoWriter {
	return &MongoWriter{
		collection: collection,
		opts:       *opts,
	}
}

// Write implements the core.DataSink interface.
func (w *MongoWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := validators.RequireString([]core.Record{record}, w.opts.KeyField); err != nil {
		return &MongoWriterError{Op: "validate", Err: err}
	}
	w.buffer = append(w.buffer, record)
	return nil
}

// Flush implements the core.DataSink interface.
func (w *MongoWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	defer func() { w.stats.FlushDuration += time.Since(start) }()

	ctx := context.Background()
	for len(w.buffer) > 0 {
		n := min(len(w.buffer), w.opts.BatchSize)
		models := make([]mongo.WriteModel, 0, n)
		for _, record := range w.buffer[:n] {
			doc := LaunchDocument(record, w.opts.KeyField, w.opts.Metadata)
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": doc["_id"]}).
				SetReplacement(doc).
				SetUpsert(true))
		}

		result, err := w.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return &MongoWriterError{Op: "bulk_write", Err: fmt.Errorf("%w: %w", core.ErrWrite, err)}
		}
		if result != nil {
			w.stats.Upserted += result.UpsertedCount
			w.stats.Modified += result.ModifiedCount
			w.stats.Matched += result.MatchedCount
		}
		w.stats.RecordsWritten += int64(n)
		w.buffer = w.buffer[n:]
	}
	return nil
}

// Close implements the core.DataSink interface.
func (w *MongoWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = nil
	if w.client != nil {
		client := w.client
		w.client = nil
		if err := client.Disconnect(context.Background()); err != nil {
			return &MongoWriterError{Op: "disconnect", Err: err}
		}
	}
	return nil
}

// Stats returns write statistics.
func (w *MongoWriter) Stats() MongoWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// LaunchDocument maps a record to a document: keyField becomes _id, every
// other field is copied, and metadata fields are added.
func LaunchDocument(record core.Record, keyField string, metadata map[string]string) bson.M {
	doc := make(bson.M, len(record)+len(metadata))
	for k, v := range metadata {
		doc[k] = v
	}
	for k, v := range record {
		if k == keyField {
			continue
		}
		doc[k] = v
	}
	doc["_id"] = record[keyField]
	return doc
}
