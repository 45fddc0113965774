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

package readers

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/pqrows/core"
	"github.com/aaronlmathis/pqrows/internal/pqtest"
)

func TestDecoders_OptionalAndRepeated(t *testing.T) {
	path := pqtest.WriteGroups(t, "measurements.parquet", [][]pqtest.Measurement{
		{
			{ID: 1, Sensor: pqtest.Ptr("a"), Value: pqtest.Ptr(1.5), Tags: []string{"x", "y"}, OK: true},
			{ID: 2},
		},
	})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			h, err := Open(context.Background(), path, WithBackend(backend))
			require.NoError(t, err)
			defer h.Close()

			schema, rows := drain(t, h)

			assert.Equal(t, []string{"id", "sensor", "value", "tags", "ok"}, schema.Names())
			assert.Equal(t, []core.Repetition{core.Required, core.Optional, core.Optional, core.Repeated, core.Required},
				[]core.Repetition{
					schema.Field(0).Repetition,
					schema.Field(1).Repetition,
					schema.Field(2).Repetition,
					schema.Field(3).Repetition,
					schema.Field(4).Repetition,
				})
			assert.Equal(t, "BYTE_ARRAY", schema.Field(1).PhysicalType)
			assert.Equal(t, "DOUBLE", schema.Field(2).PhysicalType)
			assert.Equal(t, "BOOLEAN", schema.Field(4).PhysicalType)

			assert.Equal(t, []core.Row{
				{int64(1), "a", 1.5, []interface{}{"x", "y"}, true},
				{int64(2), nil, nil, []interface{}{}, false},
			}, rows)
		})
	}
}

func TestDecoders_NestedGroup(t *testing.T) {
	path := pqtest.WriteGroups(t, "located.parquet", [][]pqtest.Located{
		{{ID: 1, Point: pqtest.Point{X: 1.5, Y: -2}}},
	})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			h, err := Open(context.Background(), path, WithBackend(backend))
			require.NoError(t, err)
			defer h.Close()

			schema, rows := drain(t, h)
			assert.Equal(t, "group", schema.Field(1).PhysicalType)
			require.Len(t, rows, 1)
			assert.Equal(t, int64(1), rows[0][0])
			assert.Equal(t, map[string]interface{}{"x": 1.5, "y": -2.0}, rows[0][1])
		})
	}
}

func TestDecoders_NestedLogicalTypes(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()
	path := pqtest.WriteGroups(t, "stamped.parquet", [][]pqtest.Stamped{
		{{ID: 1, Stamp: pqtest.Stamp{Name: "x", At: at}}},
	})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			h, err := Open(context.Background(), path, WithBackend(backend))
			require.NoError(t, err)
			defer h.Close()

			_, rows := drain(t, h)
			require.Len(t, rows, 1)

			stamp, ok := rows[0][1].(map[string]interface{})
			require.True(t, ok, "group decoded as %T", rows[0][1])
			assert.Equal(t, "x", stamp["name"])
			got, ok := stamp["at"].(time.Time)
			require.True(t, ok, "timestamp decoded as %T", stamp["at"])
			assert.True(t, at.Equal(got), "got %v", got)
		})
	}
}

func TestDecoders_Int96Timestamp(t *testing.T) {
	at := time.Date(2023, time.November, 14, 22, 13, 20, 123, time.UTC)
	path := pqtest.WriteGroups(t, "legacy.parquet", [][]pqtest.Legacy{
		{{ID: 1, At: pqtest.Int96(at)}, {ID: 2, At: pqtest.Int96(time.Unix(0, 0))}},
	})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			h, err := Open(context.Background(), path, WithBackend(backend))
			require.NoError(t, err)
			defer h.Close()

			schema, rows := drain(t, h)
			assert.Equal(t, "INT96", schema.Field(1).PhysicalType)
			require.Len(t, rows, 2)

			first, ok := rows[0][1].(time.Time)
			require.True(t, ok, "INT96 decoded as %T", rows[0][1])
			assert.True(t, at.Equal(first), "got %v", first)

			epoch, ok := rows[1][1].(time.Time)
			require.True(t, ok)
			assert.True(t, time.Unix(0, 0).Equal(epoch), "got %v", epoch)
		})
	}
}

func TestInt96Time(t *testing.T) {
	// 2000-01-01T00:00:01Z is Julian day 2451545, one second into the day.
	got := int96Time([3]uint32{1e9, 0, 2451545})
	assert.True(t, time.Date(2000, time.January, 1, 0, 0, 1, 0, time.UTC).Equal(got), "got %v", got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestDecoders_RowGroupLifecycle(t *testing.T) {
	path := pqtest.WriteIDVal(t, 3, 2)

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			h, err := Open(ctx, path, WithBackend(backend), WithReadBatchSize(2))
			require.NoError(t, err)

			schema, err := h.ReadSchema(ctx)
			require.NoError(t, err)
			again, err := h.ReadSchema(ctx)
			require.NoError(t, err)
			assert.Same(t, schema, again)

			first, err := h.NextRowGroup(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), first.NumRows())

			// Rows are produced sequentially.
			_, err = first.AssembleRow(ctx, schema, 1)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, core.ErrRowCountMismatch)

			for i := int64(0); i < 3; i++ {
				row, err := first.AssembleRow(ctx, schema, i)
				require.NoError(t, err)
				assert.Equal(t, core.Row{i + 1, fmt.Sprintf("v%d", i+1)}, row)
			}
			_, err = first.AssembleRow(ctx, schema, 3)
			assert.ErrorIs(t, err, core.ErrRowCountMismatch)

			second, err := h.NextRowGroup(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), second.NumRows())

			// Advancing releases the previous group.
			_, err = first.AssembleRow(ctx, schema, 0)
			assert.ErrorIs(t, err, core.ErrClosed)

			_, err = h.NextRowGroup(ctx)
			assert.Equal(t, io.EOF, err)

			require.NoError(t, h.Close())
			require.NoError(t, h.Close())

			_, err = h.NextRowGroup(ctx)
			assert.ErrorIs(t, err, core.ErrClosed)
			_, err = h.ReadSchema(ctx)
			assert.ErrorIs(t, err, core.ErrSchema)
		})
	}
}

func TestArrowFile_FooterCounts(t *testing.T) {
	h, err := Open(context.Background(), pqtest.WriteIDVal(t, 3, 1, 2), WithBackend(BackendArrow))
	require.NoError(t, err)
	defer h.Close()

	af := h.(*ArrowFile)
	assert.Equal(t, 3, af.NumRowGroups())
	assert.Equal(t, int64(6), af.NumRows())
}

func TestArrowFile_SmallBatches(t *testing.T) {
	h, err := Open(context.Background(), pqtest.WriteIDVal(t, 7), WithBackend(BackendArrow), WithReadBatchSize(3))
	require.NoError(t, err)
	defer h.Close()

	_, rows := drain(t, h)
	require.Len(t, rows, 7)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row[0])
	}
}
