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
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/pqrows/core"
)

// This file implements a batching Parquet writer on top of pqarrow. Column
// types are inferred from the first buffered batch; columns that are null
// throughout that batch fall back to their Parquet physical type.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of rows to buffer before writing
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // File metadata
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RowsWritten     int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of rows to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the maximum number of rows per row group.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParseCompression maps a codec name to a compression algorithm.
func ParseCompression(name string) (compress.Compression, error) {
	switch name {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// ParquetWriter implements core.DataSink for Parquet output.
type ParquetWriter struct {
	sink        io.Writer
	writer      *pqarrow.FileWriter
	schema      *core.Schema
	arrowSchema *arrow.Schema
	builders    []array.Builder
	allocator   memory.Allocator
	rowBuffer   []core.Row
	opts        *ParquetWriterOptions
	stats       WriterStats
	closed      bool
	errorState  bool
}

// NewParquetWriter creates a Parquet writer for rows of schema. The file
// footer is written, and w closed, by Close.
func NewParquetWriter(w io.WriteCloser, schema *core.Schema, options ...WriterOption) (*ParquetWriter, error) {
	if schema.Len() == 0 {
		return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("schema has no columns")}
	}

	opts := &ParquetWriterOptions{Compression: compress.Codecs.Snappy}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	return &ParquetWriter{
		sink:      w,
		schema:    schema,
		allocator: memory.NewGoAllocator(),
		rowBuffer: make([]core.Row, 0, opts.BatchSize),
		opts:      opts,
		stats:     WriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, row core.Row) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if row.Len() != p.schema.Len() {
		return &ParquetWriterError{
			Op:  "write",
			Err: fmt.Errorf("row has %d values, schema has %d columns", row.Len(), p.schema.Len()),
		}
	}

	p.rowBuffer = append(p.rowBuffer, row)
	p.stats.RowsWritten++

	if int64(len(p.rowBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	if p.closed || p.errorState {
		return nil
	}
	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	return nil
}

// Close flushes buffered rows, writes the footer and closes the destination.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}

	if !p.errorState {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			p.closed = true
			p.releaseBuilders()
			return err
		}
		// A file without rows still carries the schema.
		if p.writer == nil {
			if err := p.initialize(); err != nil {
				p.closed = true
				return err
			}
		}
	}
	p.closed = true
	p.releaseBuilders()

	if p.writer == nil {
		if c, ok := p.sink.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}

	// Closing the file writer also closes the sink.
	if err := p.writer.Close(); err != nil {
		return &ParquetWriterError{
			Op:  "close_writer",
			Err: fmt.Errorf("failed to close parquet writer: %w", err),
		}
	}
	p.writer = nil
	return nil
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	return result
}

// initialize derives the Arrow schema from the buffered rows and opens the
// pqarrow file writer.
func (p *ParquetWriter) initialize() error {
	fields := make([]arrow.Field, p.schema.Len())
	for i, f := range p.schema.Fields() {
		dataType, err := p.columnType(i, f)
		if err != nil {
			return &ParquetWriterError{
				Op:  "schema",
				Err: fmt.Errorf("failed to infer arrow type for column %s: %w", f.Name, err),
			}
		}
		fields[i] = arrow.Field{
			Name:     f.Name,
			Type:     dataType,
			Nullable: f.Repetition != core.Required,
		}
	}

	var md *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		m := arrow.MetadataFrom(p.opts.Metadata)
		md = &m
	}
	p.arrowSchema = arrow.NewSchema(fields, md)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.arrowSchema, p.sink, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(fields))
	for i, field := range fields {
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}
	return nil
}

// columnType picks the Arrow type for column i from its first non-null
// buffered value, falling back to the physical type.
func (p *ParquetWriter) columnType(i int, f core.SchemaField) (arrow.DataType, error) {
	for _, row := range p.rowBuffer {
		if v := row[i]; v != nil {
			return inferArrowType(v)
		}
	}
	return physicalArrowType(f.PhysicalType), nil
}

// inferArrowType infers the Arrow data type from a Go value.
func inferArrowType(value interface{}) (arrow.DataType, error) {
	switch v := value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int8, int16, int32:
		return arrow.PrimitiveTypes.Int32, nil
	case uint8, uint16, uint32, int64:
		return arrow.PrimitiveTypes.Int64, nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case float32:
		return arrow.PrimitiveTypes.Float32, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case string, json.RawMessage:
		return arrow.BinaryTypes.String, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []interface{}, map[string]interface{}:
		// Nested values are stored as their JSON encoding.
		return arrow.BinaryTypes.String, nil
	default:
		return nil, &ParquetWriterError{
			Op:  "type_inference",
			Err: fmt.Errorf("unsupported type %T for value %v", value, value),
		}
	}
}

func physicalArrowType(physical string) arrow.DataType {
	switch physical {
	case "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "INT32":
		return arrow.PrimitiveTypes.Int32
	case "INT64":
		return arrow.PrimitiveTypes.Int64
	case "INT96":
		return arrow.FixedWidthTypes.Timestamp_us
	case "FLOAT":
		return arrow.PrimitiveTypes.Float32
	case "DOUBLE":
		return arrow.PrimitiveTypes.Float64
	case "FIXED_LEN_BYTE_ARRAY":
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

// flushBatch writes the buffered rows as one Arrow record.
func (p *ParquetWriter) flushBatch() error {
	if len(p.rowBuffer) == 0 {
		return nil
	}
	if p.writer == nil {
		if err := p.initialize(); err != nil {
			return err
		}
	}

	start := time.Now()

	record, err := p.buildRecord(p.rowBuffer)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.rowBuffer = p.rowBuffer[:0]
	return nil
}

// buildRecord converts rows to an Arrow record using the column builders.
func (p *ParquetWriter) buildRecord(rows []core.Row) (arrow.Record, error) {
	for _, row := range rows {
		for i, value := range row {
			if value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[p.schema.Field(i).Name]++
				continue
			}
			if err := appendValue(p.builders[i], value); err != nil {
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("column %s: %w", p.schema.Field(i).Name, err),
				}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.arrowSchema, arrays, int64(len(rows))), nil
}

// appendValue appends a non-null value to the builder for its column.
func appendValue(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int32Builder:
		v, ok := toInt64(value)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("value %v (%T) does not fit int32", value, value)
		}
		b.Append(int32(v))
	case *array.Int64Builder:
		v, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
		b.Append(v)
	case *array.Uint64Builder:
		v, ok := value.(uint64)
		if !ok {
			i, isInt := toInt64(value)
			if !isInt || i < 0 {
				return fmt.Errorf("value %v (%T) does not fit uint64", value, value)
			}
			v = uint64(i)
		}
		b.Append(v)
	case *array.Float32Builder:
		switch v := value.(type) {
		case float32:
			b.Append(v)
		case float64:
			b.Append(float32(v))
		default:
			return fmt.Errorf("expected float, got %T", value)
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			return fmt.Errorf("expected float, got %T", value)
		}
	case *array.StringBuilder:
		b.Append(FormatValue(value))
	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.AppendString(v)
		default:
			return fmt.Errorf("expected bytes, got %T", value)
		}
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	default:
		return fmt.Errorf("unsupported builder %T", builder)
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func (p *ParquetWriter) releaseBuilders() {
	for _, builder := range p.builders {
		if builder != nil {
			builder.Release()
		}
	}
	p.builders = nil
}
