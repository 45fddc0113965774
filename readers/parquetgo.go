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
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"

	"github.com/aaronlmathis/pqrows/core"
)

// ParquetGoFile implements core.FileHandle with github.com/parquet-go/parquet-go.
// Rows are read one at a time from the row group's row reader and assembled
// into top-level field values.
type ParquetGoFile struct {
	name    string
	closer  io.Closer
	file    *parquet.File
	columns []leafRange
	nested  bool
	schema  *core.Schema
	next    int
	current *parquetGoRowGroup
	closed  bool
}

// leafRange is the span of leaf column indexes covered by a top-level field.
type leafRange struct {
	start, end int
	field      parquet.Field
}

// NewParquetGoFile wraps an already opened Parquet source of the given size.
// closer, if non-nil, is closed together with the handle.
func NewParquetGoFile(r io.ReaderAt, size int64, closer io.Closer, name string) (*ParquetGoFile, error) {
	pqFile, err := parquet.OpenFile(r, size)
	if err != nil {
		closeQuietly(closer)
		return nil, core.NewOpenError("open_parquet_file", name, err)
	}

	p := &ParquetGoFile{
		name:   name,
		closer: closer,
		file:   pqFile,
	}

	leaf := 0
	for _, field := range pqFile.Schema().Fields() {
		n := leafCount(field)
		p.columns = append(p.columns, leafRange{start: leaf, end: leaf + n, field: field})
		leaf += n
		if !field.Leaf() {
			p.nested = true
		}
	}

	return p, nil
}

// ReadSchema implements core.FileHandle.
func (p *ParquetGoFile) ReadSchema(ctx context.Context) (*core.Schema, error) {
	if p.closed {
		return nil, core.NewSchemaError("read_schema", p.name, core.ErrClosed)
	}
	if p.schema != nil {
		return p.schema, nil
	}

	root := p.file.Schema()
	if root == nil {
		return nil, core.NewSchemaError("read_schema", p.name, fmt.Errorf("file footer has no schema"))
	}

	fields := make([]core.SchemaField, 0, len(p.columns))
	for _, col := range p.columns {
		f := col.field
		field := core.SchemaField{
			Name:         f.Name(),
			Type:         f.Type().String(),
			PhysicalType: "group",
		}
		if f.Leaf() {
			field.PhysicalType = f.Type().Kind().String()
		}
		switch {
		case f.Repeated():
			field.Repetition = core.Repeated
		case f.Optional():
			field.Repetition = core.Optional
		default:
			field.Repetition = core.Required
		}
		fields = append(fields, field)
	}

	p.schema = core.NewSchema(fields...)
	return p.schema, nil
}

// NextRowGroup implements core.FileHandle.
func (p *ParquetGoFile) NextRowGroup(ctx context.Context) (core.RowGroup, error) {
	if p.closed {
		return nil, core.ErrClosed
	}
	p.releaseCurrent()

	groups := p.file.RowGroups()
	if p.next >= len(groups) {
		return nil, io.EOF
	}
	index := p.next
	p.next++

	rg := groups[index]
	p.current = &parquetGoRowGroup{
		file:    p,
		index:   index,
		numRows: rg.NumRows(),
		rows:    rg.Rows(),
		buf:     make([]parquet.Row, 1),
	}
	return p.current, nil
}

// Close implements core.FileHandle.
func (p *ParquetGoFile) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.releaseCurrent()
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func (p *ParquetGoFile) releaseCurrent() {
	if p.current != nil {
		p.current.release()
		p.current = nil
	}
}

type parquetGoRowGroup struct {
	file     *ParquetGoFile
	index    int
	numRows  int64
	rows     parquet.Rows
	buf      []parquet.Row
	next     int64
	released bool
}

func (g *parquetGoRowGroup) NumRows() int64 {
	return g.numRows
}

func (g *parquetGoRowGroup) AssembleRow(ctx context.Context, sch *core.Schema, index int64) (core.Row, error) {
	if g.released {
		return nil, core.ErrClosed
	}
	if index != g.next {
		return nil, fmt.Errorf("row group %d: row %d requested out of order, next row is %d", g.index, index, g.next)
	}
	if index >= g.numRows {
		return nil, fmt.Errorf("%w: row group %d declares %d rows, row %d requested", core.ErrRowCountMismatch, g.index, g.numRows, index)
	}

	n, err := g.rows.ReadRows(g.buf)
	if n == 0 {
		if err == nil || err == io.EOF {
			return nil, fmt.Errorf("%w: row group %d declares %d rows but only %d were decoded", core.ErrRowCountMismatch, g.index, g.numRows, index)
		}
		return nil, fmt.Errorf("row group %d: failed to read row %d: %w", g.index, index, err)
	}

	row, err := g.file.assemble(g.buf[0])
	if err != nil {
		return nil, fmt.Errorf("row group %d: row %d: %w", g.index, index, err)
	}
	if sch != nil && len(row) != sch.Len() {
		return nil, fmt.Errorf("%w: row group %d decoded %d columns, schema has %d fields", core.ErrRowCountMismatch, g.index, len(row), sch.Len())
	}

	g.next++
	return row, nil
}

func (g *parquetGoRowGroup) release() {
	if g.released {
		return
	}
	g.released = true
	if g.rows != nil {
		_ = g.rows.Close()
		g.rows = nil
	}
}

// assemble turns a flat parquet.Row of leaf values into one value per
// top-level field.
func (p *ParquetGoFile) assemble(raw parquet.Row) (core.Row, error) {
	var nested map[string]interface{}
	if p.nested {
		nested = make(map[string]interface{})
		if err := p.file.Schema().Reconstruct(&nested, raw); err != nil {
			return nil, fmt.Errorf("failed to reconstruct nested fields: %w", err)
		}
	}

	row := make(core.Row, len(p.columns))
	for i, col := range p.columns {
		if !col.field.Leaf() {
			row[i] = nestedValue(col.field, nested[col.field.Name()])
			continue
		}

		typ := col.field.Type()
		if col.field.Repeated() {
			values := make([]interface{}, 0)
			for _, v := range raw {
				if v.Column() == col.start && !v.IsNull() {
					values = append(values, parquetGoValue(v, typ))
				}
			}
			row[i] = values
			continue
		}

		for _, v := range raw {
			if v.Column() == col.start {
				row[i] = parquetGoValue(v, typ)
				break
			}
		}
	}
	return row, nil
}

func leafCount(node parquet.Node) int {
	if node.Leaf() {
		return 1
	}
	n := 0
	for _, f := range node.Fields() {
		n += leafCount(f)
	}
	return n
}

// nestedValue converts the leaves of a reconstructed group the same way
// top-level leaves are converted, following node through lists and groups.
func nestedValue(node parquet.Node, v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok && node.Repeated() {
		out := make([]interface{}, len(list))
		for i, elem := range list {
			out[i] = nodeValue(node, elem)
		}
		return out
	}
	return nodeValue(node, v)
}

func nodeValue(node parquet.Node, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if node.Leaf() {
		return reconstructedLeaf(v, node.Type())
	}

	group, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for _, field := range node.Fields() {
		if child, present := group[field.Name()]; present {
			group[field.Name()] = nestedValue(field, child)
		}
	}
	return group
}

// reconstructedLeaf converts a leaf produced by Schema.Reconstruct.
func reconstructedLeaf(v interface{}, typ parquet.Type) interface{} {
	switch x := v.(type) {
	case deprecated.Int96:
		return int96Time(x)
	case bool, int32, int64, float32, float64, string, []byte:
		return parquetGoValue(parquet.ValueOf(x), typ)
	default:
		return v
	}
}

const (
	julianUnixEpoch = 2440588 // Julian day of 1970-01-01
	secondsPerDay   = 86400
)

// int96Time decodes the legacy INT96 timestamp: nanoseconds of the day in the
// low 8 bytes followed by the Julian day.
func int96Time(v deprecated.Int96) time.Time {
	nanos := int64(uint64(v[1])<<32 | uint64(v[0]))
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*secondsPerDay, nanos).UTC()
}

// parquetGoValue converts a leaf value into a plain Go value, honouring the
// string, date and timestamp logical types.
func parquetGoValue(v parquet.Value, typ parquet.Type) interface{} {
	if v.IsNull() {
		return nil
	}

	lt := typ.LogicalType()
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return time.Unix(int64(v.Int32())*secondsPerDay, 0).UTC()
		}
		return v.Int32()
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return time.UnixMilli(v.Int64()).UTC()
			case unit.Nanos != nil:
				return time.Unix(0, v.Int64()).UTC()
			default:
				return time.UnixMicro(v.Int64()).UTC()
			}
		}
		return v.Int64()
	case parquet.Int96:
		return int96Time(v.Int96())
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := v.ByteArray()
		if lt != nil && (lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil) {
			return string(b)
		}
		return bytes.Clone(b)
	default:
		return v.String()
	}
}
