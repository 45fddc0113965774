//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of PQRows.
//
// PQRows is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PQRows is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PQRows. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/aaronlmathis/pqrows/core"
)

func TestMongoWriter_Validation(t *testing.T) {
	_, err := NewMongoWriter(context.Background(), testSchema, WithMongoCollection("c"))
	var mongoErr *MongoWriterError
	require.ErrorAs(t, err, &mongoErr)
	assert.Equal(t, "validate", mongoErr.Op)
	assert.Contains(t, err.Error(), "database name is required")

	_, err = NewMongoWriter(context.Background(), testSchema, WithMongoDB("db"))
	assert.ErrorContains(t, err, "collection name is required")
}

func TestMongoWriter_ClientOptions(t *testing.T) {
	opts := &MongoWriterOptions{
		URI:          "mongodb://db.example:27017",
		Database:     "analytics",
		Timeout:      5 * time.Second,
		MaxPoolSize:  8,
		WriteConcern: "majority",
		RetryWrites:  true,
	}
	WithMongoAuth("user", "secret", "")(opts)
	WithMongoTLS(true, true)(opts)

	clientOpts, err := buildMongoClientOptions(opts)
	require.NoError(t, err)

	require.NotNil(t, clientOpts.MaxPoolSize)
	assert.Equal(t, uint64(8), *clientOpts.MaxPoolSize)
	require.NotNil(t, clientOpts.Auth)
	assert.Equal(t, "analytics", clientOpts.Auth.AuthSource)
	require.NotNil(t, clientOpts.TLSConfig)
	assert.True(t, clientOpts.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, writeconcern.Majority(), clientOpts.WriteConcern)

	opts.WriteConcern = "fast"
	_, err = buildMongoClientOptions(opts)
	assert.Error(t, err)
}

func TestParseWriteConcern(t *testing.T) {
	wc, err := parseWriteConcern("2")
	require.NoError(t, err)
	assert.Equal(t, 2, wc.W)

	_, err = parseWriteConcern("-1")
	assert.Error(t, err)
}

func TestRowToDocument(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	names := []string{"id", "at", "blob", "tags", "attrs", "big"}
	row := core.Row{
		int64(1),
		at,
		[]byte{1, 2},
		json.RawMessage(`["a","b"]`),
		map[string]interface{}{"k": []interface{}{uint32(3)}},
		uint64(math.MaxUint64),
	}

	doc, err := rowToDocument(names, row)
	require.NoError(t, err)

	assert.Equal(t, bson.D{
		{Key: "id", Value: int64(1)},
		{Key: "at", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "blob", Value: primitive.Binary{Data: []byte{1, 2}}},
		{Key: "tags", Value: bson.A{"a", "b"}},
		{Key: "attrs", Value: bson.M{"k": bson.A{int64(3)}}},
		{Key: "big", Value: "18446744073709551615"},
	}, doc)

	_, err = rowToDocument(names, core.Row{int64(1)})
	assert.Error(t, err)

	_, err = bson.Marshal(doc)
	assert.NoError(t, err)
}
