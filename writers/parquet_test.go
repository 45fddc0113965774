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
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/pqrows/core"
	"github.com/aaronlmathis/pqrows/readers"
)

// readBack returns the rows of every row group in path along with the row
// group sizes.
func readBack(t *testing.T, path string) (*core.Schema, []core.Row, []int64) {
	t.Helper()
	ctx := context.Background()

	h, err := readers.Open(ctx, path)
	require.NoError(t, err)
	defer h.Close()

	schema, err := h.ReadSchema(ctx)
	require.NoError(t, err)

	var rows []core.Row
	var sizes []int64
	for {
		rg, err := h.NextRowGroup(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, rg.NumRows())
		for i := int64(0); i < rg.NumRows(); i++ {
			row, err := rg.AssembleRow(ctx, schema, i)
			require.NoError(t, err)
			rows = append(rows, row)
		}
	}
	return schema, rows, sizes
}

func createFile(t *testing.T) (*os.File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	return f, path
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	f, path := createFile(t)
	writer, err := NewParquetWriter(f, testSchema, WithBatchSize(2), WithCompression(compress.Codecs.Zstd))
	require.NoError(t, err)

	ctx := context.Background()
	input := []core.Row{
		{int64(1), "alice", 9.5},
		{int64(2), nil, 7.25},
		{int64(3), "carol", nil},
	}
	for _, row := range input {
		require.NoError(t, writer.Write(ctx, row))
	}
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close(), "close is idempotent")

	schema, rows, _ := readBack(t, path)
	assert.Equal(t, []string{"id", "name", "score"}, schema.Names())
	assert.Equal(t, input, rows)

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RowsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["name"])
}

func TestParquetWriter_RowGroupSize(t *testing.T) {
	f, path := createFile(t)
	writer, err := NewParquetWriter(f, testSchema, WithRowGroupSize(2))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, writer.Write(context.Background(), core.Row{int64(i), "n", float64(i)}))
	}
	require.NoError(t, writer.Close())

	_, rows, sizes := readBack(t, path)
	assert.Len(t, rows, 5)
	assert.Greater(t, len(sizes), 1)
	for _, size := range sizes {
		assert.LessOrEqual(t, size, int64(2))
	}
}

func TestParquetWriter_EmptyKeepsSchema(t *testing.T) {
	f, path := createFile(t)
	writer, err := NewParquetWriter(f, testSchema, WithMetadata(map[string]string{"source": "test"}))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	schema, rows, _ := readBack(t, path)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"id", "name", "score"}, schema.Names())
	assert.Equal(t, "INT64", schema.Field(0).PhysicalType)
	assert.Equal(t, "DOUBLE", schema.Field(2).PhysicalType)
}

func TestParquetWriter_NestedAndTimeValues(t *testing.T) {
	schema := core.NewSchema(
		core.SchemaField{Name: "at", PhysicalType: "INT64"},
		core.SchemaField{Name: "tags", PhysicalType: "group", Repetition: core.Repeated},
	)
	f, path := createFile(t)
	writer, err := NewParquetWriter(f, schema)
	require.NoError(t, err)

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, writer.Write(context.Background(), core.Row{at, []interface{}{"a", "b"}}))
	require.NoError(t, writer.Close())

	_, rows, _ := readBack(t, path)
	require.Len(t, rows, 1)
	assert.True(t, at.Equal(rows[0][0].(time.Time)))
	assert.Equal(t, `["a","b"]`, rows[0][1])
}

func TestParquetWriter_Errors(t *testing.T) {
	_, err := NewParquetWriter(newMockWriteCloser(), core.NewSchema())
	assert.Error(t, err)

	f, _ := createFile(t)
	writer, err := NewParquetWriter(f, testSchema, WithBatchSize(1))
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), core.Row{int64(1), "a", 1.0}))

	err = writer.Write(context.Background(), core.Row{"not an int", "a", 1.0})
	var pqErr *ParquetWriterError
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, "append_value", pqErr.Op)

	// The writer refuses further rows once a batch failed.
	assert.Error(t, writer.Write(context.Background(), core.Row{int64(1), "a", 1.0}))
	assert.NoError(t, writer.Close())
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]compress.Compression{
		"":       compress.Codecs.Snappy,
		"snappy": compress.Codecs.Snappy,
		"none":   compress.Codecs.Uncompressed,
		"gzip":   compress.Codecs.Gzip,
		"zstd":   compress.Codecs.Zstd,
		"brotli": compress.Codecs.Brotli,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseCompression("lzo")
	assert.Error(t, err)
}
