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

package pqrows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/pqrows/core"
	"github.com/aaronlmathis/pqrows/internal/pqtest"
	"github.com/aaronlmathis/pqrows/readers"
)

// fakeGroup is an in-memory row group. declared overrides the reported row
// count when non-zero; assembleErr is returned when row failAt is requested.
type fakeGroup struct {
	rows        []core.Row
	declared    int64
	fetchErr    error
	assembleErr error
	failAt      int64
}

func (g *fakeGroup) NumRows() int64 {
	if g.declared != 0 {
		return g.declared
	}
	return int64(len(g.rows))
}

func (g *fakeGroup) AssembleRow(ctx context.Context, schema *core.Schema, index int64) (core.Row, error) {
	if g.assembleErr != nil && index == g.failAt {
		return nil, g.assembleErr
	}
	if index >= int64(len(g.rows)) {
		return nil, fmt.Errorf("%w: row %d", core.ErrRowCountMismatch, index)
	}
	return g.rows[index], nil
}

type fakeHandle struct {
	schema     *core.Schema
	schemaErr  error
	groups     []*fakeGroup
	next       int
	closed     bool
	closeCalls int
}

func (h *fakeHandle) ReadSchema(ctx context.Context) (*core.Schema, error) {
	if h.closed {
		return nil, core.ErrClosed
	}
	return h.schema, h.schemaErr
}

func (h *fakeHandle) NextRowGroup(ctx context.Context) (core.RowGroup, error) {
	if h.closed {
		return nil, core.ErrClosed
	}
	if h.next >= len(h.groups) {
		return nil, io.EOF
	}
	g := h.groups[h.next]
	h.next++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g, nil
}

func (h *fakeHandle) Close() error {
	h.closeCalls++
	h.closed = true
	return nil
}

var idValSchema = core.NewSchema(
	core.SchemaField{Name: "id", Type: "int64", PhysicalType: "INT64"},
	core.SchemaField{Name: "val", Type: "string", PhysicalType: "BYTE_ARRAY"},
)

// newFakeHandle builds groups of the given sizes with ids increasing from 1.
func newFakeHandle(sizes ...int) *fakeHandle {
	h := &fakeHandle{schema: idValSchema}
	id := int64(1)
	for _, size := range sizes {
		g := &fakeGroup{}
		for i := 0; i < size; i++ {
			g.rows = append(g.rows, core.Row{id, fmt.Sprintf("v%d", id)})
			id++
		}
		h.groups = append(h.groups, g)
	}
	return h
}

func openBackend(t *testing.T, path string, backend readers.Backend) core.FileHandle {
	t.Helper()
	h, err := readers.Open(context.Background(), path, readers.WithBackend(backend), readers.WithReadBatchSize(2))
	require.NoError(t, err)
	return h
}

var backends = []readers.Backend{readers.BackendArrow, readers.BackendParquetGo}

func TestMaterialize_Scenario(t *testing.T) {
	path := pqtest.WriteGroups(t, "scenario.parquet", [][]pqtest.IDVal{
		{{ID: 1, Val: "a"}, {ID: 2, Val: "b"}, {ID: 3, Val: "c"}},
	})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := Materialize(context.Background(), openBackend(t, path, backend))
			require.NoError(t, err)

			assert.Equal(t, []string{"id", "val"}, ds.Schema.Names())
			assert.Equal(t, "INT64", ds.Schema.Field(0).PhysicalType)
			assert.Equal(t, "BYTE_ARRAY", ds.Schema.Field(1).PhysicalType)
			assert.Equal(t, core.Required, ds.Schema.Field(0).Repetition)

			assert.Equal(t, []core.Row{
				{int64(1), "a"},
				{int64(2), "b"},
				{int64(3), "c"},
			}, ds.Rows)
			assert.Equal(t, core.Record{"id": int64(2), "val": "b"}, ds.Record(1))
		})
	}
}

func TestMaterialize_CompletenessAndOrder(t *testing.T) {
	sizes := []int{3, 1, 4, 1, 5}
	path := pqtest.WriteIDVal(t, sizes...)

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := Materialize(context.Background(), openBackend(t, path, backend))
			require.NoError(t, err)
			require.Equal(t, 14, ds.Len())

			for i, row := range ds.Rows {
				require.Len(t, row, ds.Schema.Len(), "row %d", i)
				assert.Equal(t, int64(i+1), row.Field(0), "row %d out of order", i)
				assert.Equal(t, fmt.Sprintf("v%d", i+1), row.Field(1))
			}
		})
	}
}

func TestMaterialize_EmptyFile(t *testing.T) {
	path := pqtest.WriteGroups(t, "empty.parquet", [][]pqtest.IDVal{})

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := Materialize(context.Background(), openBackend(t, path, backend))
			require.NoError(t, err)
			assert.Empty(t, ds.Rows)
			assert.Equal(t, []string{"id", "val"}, ds.Schema.Names())
		})
	}
}

func TestMaterialize_ClosesHandle(t *testing.T) {
	path := pqtest.WriteIDVal(t, 2, 2)

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			h := openBackend(t, path, backend)
			_, err := Materialize(context.Background(), h)
			require.NoError(t, err)

			_, err = h.NextRowGroup(context.Background())
			assert.ErrorIs(t, err, core.ErrClosed)
			assert.NoError(t, h.Close())
		})
	}
}

func TestMaterialize_FailureAtomicity(t *testing.T) {
	corrupt := errors.New("corrupt page header")

	tests := []struct {
		name   string
		damage func(g *fakeGroup)
	}{
		{"fetch fails", func(g *fakeGroup) { g.fetchErr = corrupt }},
		{"assembly fails", func(g *fakeGroup) { g.assembleErr = corrupt; g.failAt = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHandle(2, 2, 2, 2, 2)
			tt.damage(h.groups[2])

			ds, err := Materialize(context.Background(), h)
			assert.Nil(t, ds)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrDecode)
			assert.ErrorIs(t, err, corrupt)
			assert.True(t, h.closed)
			assert.Equal(t, 1, h.closeCalls)
		})
	}
}

func TestMaterialize_SchemaError(t *testing.T) {
	h := newFakeHandle(1)
	h.schemaErr = errors.New("footer truncated")

	ds, err := Materialize(context.Background(), h)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, core.ErrSchema)
	assert.True(t, h.closed)
}

func TestMaterialize_RowCountMismatch(t *testing.T) {
	h := newFakeHandle(2, 3)
	h.groups[1].declared = 4

	ds, err := Materialize(context.Background(), h)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.ErrorIs(t, err, core.ErrRowCountMismatch)
	assert.True(t, h.closed)
}

func TestMaterialize_RowWidthMismatch(t *testing.T) {
	h := newFakeHandle(2)
	h.groups[0].rows[1] = core.Row{int64(2)}

	_, err := Materialize(context.Background(), h)
	assert.ErrorIs(t, err, core.ErrDecode)
	assert.ErrorIs(t, err, core.ErrRowCountMismatch)
	assert.True(t, h.closed)
}

func TestMaterialize_SkipsEmptyRowGroups(t *testing.T) {
	h := newFakeHandle(0, 2, 0, 1)

	ds, err := Materialize(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestMaterialize_Projection(t *testing.T) {
	path := pqtest.WriteIDVal(t, 2, 1)

	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			ds, err := Materialize(context.Background(), openBackend(t, path, backend), WithColumns("val", "id"))
			require.NoError(t, err)
			assert.Equal(t, []string{"val", "id"}, ds.Schema.Names())
			assert.Equal(t, []core.Row{
				{"v1", int64(1)},
				{"v2", int64(2)},
				{"v3", int64(3)},
			}, ds.Rows)
		})
	}

	t.Run("unknown column", func(t *testing.T) {
		h := newFakeHandle(1)
		_, err := Materialize(context.Background(), h, WithColumns("missing"))
		assert.ErrorIs(t, err, core.ErrSchema)
		assert.True(t, h.closed)
	})
}

func TestMaterialize_Canceled(t *testing.T) {
	h := newFakeHandle(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Materialize(ctx, h)
	assert.ErrorIs(t, err, core.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, h.closed)
}

func TestMaterialize_OpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := readers.Open(ctx, "does-not-exist.parquet")
	assert.ErrorIs(t, err, core.ErrOpen)

	for _, backend := range backends {
		_, err := readers.Open(ctx, pqtest.WriteGarbage(t), readers.WithBackend(backend))
		assert.ErrorIs(t, err, core.ErrOpen, "backend %s", backend)
	}
}
