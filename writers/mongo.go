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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/aaronlmathis/pqrows/core"
)

// MongoWriterError provides structured error information for MongoDB writer operations
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert")
	Collection string // Collection being written when error occurred
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds statistics about the MongoDB writer's performance
type MongoWriterStats struct {
	RowsWritten     int64
	BatchesWritten  int64
	WriteDuration   time.Duration
	LastWriteTime   time.Time
	NullValueCounts map[string]int64
}

// MongoWriterOptions configures the MongoDB writer
type MongoWriterOptions struct {
	URI          string        // MongoDB connection URI
	Database     string        // Database name
	Collection   string        // Collection name
	BatchSize    int           // Documents per InsertMany call
	Ordered      bool          // Stop a batch at the first failed insert
	Timeout      time.Duration // Connect and operation timeout
	MaxPoolSize  uint64        // Connection pool size
	WriteConcern string        // "majority" or a node count
	AuthDatabase string        // Authentication database
	Username     string        // Authentication username
	Password     string        // Authentication password
	TLS          bool          // Enable TLS
	TLSInsecure  bool          // Skip TLS verification
	RetryWrites  bool          // Enable write retries
	Compressors  []string      // Compression algorithms
}

// WriterOptionMongo is a functional option for MongoWriterOptions
type WriterOptionMongo func(*MongoWriterOptions)

func WithMongoURI(uri string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.URI = uri
	}
}

func WithMongoDB(database string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Collection = collection
	}
}

func WithMongoBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.BatchSize = size
	}
}

func WithMongoOrdered(ordered bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Ordered = ordered
	}
}

func WithMongoTimeout(timeout time.Duration) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoWriteConcern(concern string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.WriteConcern = concern
	}
}

// Security options
func WithMongoAuth(username, password, authDB string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoTLS(enabled, insecure bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

// MongoWriter implements core.DataSink by inserting one document per row.
// Document fields follow schema order.
type MongoWriter struct {
	opts       *MongoWriterOptions
	client     *mongo.Client
	collection *mongo.Collection
	names      []string
	docBuf     []interface{}
	stats      MongoWriterStats
	closed     bool
	mu         sync.Mutex
}

// NewMongoWriter connects to MongoDB and returns a writer for rows of schema.
func NewMongoWriter(ctx context.Context, schema *core.Schema, options ...WriterOptionMongo) (*MongoWriter, error) {
	opts := &MongoWriterOptions{
		URI:          "mongodb://localhost:27017",
		BatchSize:    1000,
		Ordered:      true,
		Timeout:      30 * time.Second,
		MaxPoolSize:  100,
		WriteConcern: "majority",
		RetryWrites:  true,
		Compressors:  []string{"zstd", "zlib", "snappy"},
	}
	for _, option := range options {
		option(opts)
	}

	if err := validateMongoOptions(opts, schema); err != nil {
		return nil, &MongoWriterError{Op: "validate", Err: err}
	}

	clientOpts, err := buildMongoClientOptions(opts)
	if err != nil {
		return nil, &MongoWriterError{Op: "build_options", Err: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &MongoWriterError{Op: "ping", Err: err}
	}

	return &MongoWriter{
		opts:       opts,
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		names:      schema.Names(),
		docBuf:     make([]interface{}, 0, opts.BatchSize),
		stats:      MongoWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

func validateMongoOptions(opts *MongoWriterOptions, schema *core.Schema) error {
	if opts.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if opts.Collection == "" {
		return fmt.Errorf("collection name is required")
	}
	if schema.Len() == 0 {
		return fmt.Errorf("schema has no columns")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return nil
}

// buildMongoClientOptions constructs MongoDB client options from writer configuration
func buildMongoClientOptions(opts *MongoWriterOptions) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(opts.URI)

	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
	}

	if opts.Username != "" && opts.Password != "" {
		auth := options.Credential{
			Username:   opts.Username,
			Password:   opts.Password,
			AuthSource: opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	if opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: opts.TLSInsecure})
	}

	if opts.WriteConcern != "" {
		wc, err := parseWriteConcern(opts.WriteConcern)
		if err != nil {
			return nil, err
		}
		clientOpts.SetWriteConcern(wc)
	}

	clientOpts.SetRetryWrites(opts.RetryWrites)
	if len(opts.Compressors) > 0 {
		clientOpts.SetCompressors(opts.Compressors)
	}

	return clientOpts, nil
}

func parseWriteConcern(concern string) (*writeconcern.WriteConcern, error) {
	if concern == "majority" {
		return writeconcern.Majority(), nil
	}
	n, err := strconv.Atoi(concern)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid write concern: %s", concern)
	}
	return &writeconcern.WriteConcern{W: n}, nil
}

// Write implements the core.DataSink interface.
func (mw *MongoWriter) Write(ctx context.Context, row core.Row) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if mw.closed {
		return &MongoWriterError{Op: "write", Collection: mw.opts.Collection, Err: fmt.Errorf("writer is closed")}
	}

	doc, err := rowToDocument(mw.names, row)
	if err != nil {
		return &MongoWriterError{Op: "convert", Collection: mw.opts.Collection, Err: err}
	}
	for i, v := range row {
		if v == nil {
			mw.stats.NullValueCounts[mw.names[i]]++
		}
	}

	mw.docBuf = append(mw.docBuf, doc)
	if len(mw.docBuf) >= mw.opts.BatchSize {
		return mw.flushUnsafe(ctx)
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (mw *MongoWriter) Flush() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mw.opts.Timeout)
	defer cancel()
	return mw.flushUnsafe(ctx)
}

// Close flushes buffered documents and disconnects the client.
func (mw *MongoWriter) Close() error {
	flushErr := mw.Flush()

	mw.mu.Lock()
	defer mw.mu.Unlock()

	if mw.closed {
		return flushErr
	}
	mw.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), mw.opts.Timeout)
	defer cancel()
	if err := mw.client.Disconnect(ctx); err != nil && flushErr == nil {
		return &MongoWriterError{Op: "disconnect", Err: err}
	}
	return flushErr
}

// Stats returns write statistics
func (mw *MongoWriter) Stats() MongoWriterStats {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	statsCopy := mw.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(mw.stats.NullValueCounts))
	for k, v := range mw.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

func (mw *MongoWriter) flushUnsafe(ctx context.Context) error {
	if len(mw.docBuf) == 0 || mw.closed {
		return nil
	}

	start := time.Now()
	result, err := mw.collection.InsertMany(ctx, mw.docBuf, options.InsertMany().SetOrdered(mw.opts.Ordered))
	if result != nil {
		mw.stats.RowsWritten += int64(len(result.InsertedIDs))
	}
	mw.docBuf = mw.docBuf[:0]
	if err != nil {
		return &MongoWriterError{Op: "insert", Collection: mw.opts.Collection, Err: err}
	}

	mw.stats.BatchesWritten++
	mw.stats.WriteDuration += time.Since(start)
	mw.stats.LastWriteTime = time.Now()
	return nil
}

// rowToDocument converts a row to an ordered BSON document.
func rowToDocument(names []string, row core.Row) (bson.D, error) {
	if len(row) != len(names) {
		return nil, fmt.Errorf("row has %d values, schema has %d columns", len(row), len(names))
	}

	doc := make(bson.D, len(row))
	for i, v := range row {
		converted, err := toBSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", names[i], err)
		}
		doc[i] = bson.E{Key: names[i], Value: converted}
	}
	return doc, nil
}

// toBSONValue converts row values to types the BSON encoder accepts.
func toBSONValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case []byte:
		return primitive.Binary{Data: v}, nil
	case time.Time:
		return primitive.NewDateTimeFromTime(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10), nil
		}
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil, err
		}
		return toBSONValue(decoded)
	case []interface{}:
		arr := make(bson.A, len(v))
		for i, item := range v {
			converted, err := toBSONValue(item)
			if err != nil {
				return nil, err
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]interface{}:
		m := make(bson.M, len(v))
		for k, item := range v {
			converted, err := toBSONValue(item)
			if err != nil {
				return nil, err
			}
			m[k] = converted
		}
		return m, nil
	default:
		return v, nil
	}
}
