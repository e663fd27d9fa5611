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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/launchetl/core"
)

type fakeCollection struct {
	calls [][]mongo.WriteModel
	err   error
}

func (f *fakeCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, models)
	return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
}

// TestMongoWriter_UpsertsByID tests that each record becomes a ReplaceOne upsert on _id
func TestMongoWriter_UpsertsByID(t *testing.T) {
	coll := &fakeCollection{}
	writer := NewMongoCollectionWriter(coll, WithMongoBatchSize(2), WithMongoMetadata(map[string]string{"run_id": "r-1"}))

	ctx := context.Background()
	for _, record := range sampleLaunches() {
		require.NoError(t, writer.Write(ctx, record))
	}
	assert.Empty(t, coll.calls)

	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	require.Len(t, coll.calls, 2)
	assert.Len(t, coll.calls[0], 2)
	assert.Len(t, coll.calls[1], 1)

	model, ok := coll.calls[0][0].(*mongo.ReplaceOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.M{"_id": "l1"}, model.Filter)
	require.NotNil(t, model.Upsert)
	assert.True(t, *model.Upsert)

	doc, ok := model.Replacement.(bson.M)
	require.True(t, ok)
	assert.Equal(t, "l1", doc["_id"])
	assert.Equal(t, "FalconSat", doc["name"])
	assert.Equal(t, false, doc["success"])
	assert.Equal(t, "r-1", doc["run_id"])
	assert.NotContains(t, doc, "id")

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(3), stats.Upserted)
}

// TestMongoWriter_CloseDropsUnflushed tests that nothing is sent without Flush
func TestMongoWriter_CloseDropsUnflushed(t *testing.T) {
	coll := &fakeCollection{}
	writer := NewMongoCollectionWriter(coll)

	require.NoError(t, writer.Write(context.Background(), sampleLaunches()[0]))
	require.NoError(t, writer.Close())
	assert.Empty(t, coll.calls)
}

func TestMongoWriter_Errors(t *testing.T) {
	writer := NewMongoCollectionWriter(&fakeCollection{err: errors.New("no primary")})

	err := writer.Write(context.Background(), core.Record{"name": "no id"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPrecondition))

	require.NoError(t, writer.Write(context.Background(), sampleLaunches()[0]))
	err = writer.Flush()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrWrite))
	assert.Contains(t, err.Error(), "no primary")

	_, err = NewMongoWriter(context.Background(), "", "spacex", "launches")
	assert.True(t, errors.Is(err, core.ErrPrecondition))
}

func TestLaunchDocument(t *testing.T) {
	doc := LaunchDocument(core.Record{"id": "x", "details": nil}, core.FieldID, nil)
	assert.Equal(t, bson.M{"_id": "x", "details": nil}, doc)
}
