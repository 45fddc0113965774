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
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/apache/arrow/go/v12/parquet/schema"

	"github.com/aaronlmathis/pqrows/core"
)

// ArrowFile implements core.FileHandle on top of the Apache Arrow Parquet
// reader. Each row group is decoded into Arrow record batches of batchSize
// rows, and rows are assembled from the current batch.
type ArrowFile struct {
	name        string
	closer      io.Closer
	reader      *file.Reader
	arrowReader *pqarrow.FileReader
	schema      *core.Schema
	batchSize   int64
	next        int
	current     *arrowRowGroup
	closed      bool
}

// NewArrowFile wraps an already opened Parquet source. closer, if non-nil, is
// closed together with the handle. name is only used in error messages.
func NewArrowFile(r parquet.ReaderAtSeeker, closer io.Closer, name string, batchSize int64) (*ArrowFile, error) {
	if batchSize <= 0 {
		batchSize = DefaultReadBatchSize
	}

	parquetReader, err := file.NewParquetReader(r)
	if err != nil {
		closeQuietly(closer)
		return nil, core.NewOpenError("create_reader", name, err)
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: batchSize}, memory.NewGoAllocator())
	if err != nil {
		closeQuietly(closer)
		return nil, core.NewOpenError("create_arrow_reader", name, err)
	}

	return &ArrowFile{
		name:        name,
		closer:      closer,
		reader:      parquetReader,
		arrowReader: arrowReader,
		batchSize:   batchSize,
	}, nil
}

// ReadSchema implements core.FileHandle.
func (a *ArrowFile) ReadSchema(ctx context.Context) (*core.Schema, error) {
	if a.closed {
		return nil, core.NewSchemaError("read_schema", a.name, core.ErrClosed)
	}
	if a.schema != nil {
		return a.schema, nil
	}

	arrowSchema, err := a.arrowReader.Schema()
	if err != nil {
		return nil, core.NewSchemaError("read_schema", a.name, err)
	}

	var root *schema.GroupNode
	if md := a.reader.MetaData(); md != nil && md.Schema != nil {
		root = md.Schema.Root()
	}

	fields := make([]core.SchemaField, 0, len(arrowSchema.Fields()))
	for i, f := range arrowSchema.Fields() {
		field := core.SchemaField{
			Name:       f.Name,
			Type:       f.Type.String(),
			Repetition: core.Required,
		}
		if f.Nullable {
			field.Repetition = core.Optional
		}
		if root != nil && i < root.NumFields() {
			node := root.Field(i)
			field.Repetition = repetitionOf(node.RepetitionType())
			if prim, ok := node.(*schema.PrimitiveNode); ok {
				field.PhysicalType = prim.PhysicalType().String()
			} else {
				field.PhysicalType = "group"
			}
		}
		fields = append(fields, field)
	}

	a.schema = core.NewSchema(fields...)
	return a.schema, nil
}

// NextRowGroup implements core.FileHandle.
func (a *ArrowFile) NextRowGroup(ctx context.Context) (core.RowGroup, error) {
	if a.closed {
		return nil, core.ErrClosed
	}
	a.releaseCurrent()

	if a.next >= a.reader.NumRowGroups() {
		return nil, io.EOF
	}
	index := a.next
	a.next++

	recordReader, err := a.arrowReader.GetRecordReader(ctx, nil, []int{index})
	if err != nil {
		return nil, core.NewDecodeError("create_record_reader", a.name, fmt.Errorf("row group %d: %w", index, err))
	}

	a.current = &arrowRowGroup{
		index:        index,
		numRows:      a.reader.RowGroup(index).NumRows(),
		recordReader: recordReader,
	}
	return a.current, nil
}

// NumRowGroups returns the number of row groups declared in the footer.
func (a *ArrowFile) NumRowGroups() int {
	return a.reader.NumRowGroups()
}

// NumRows returns the total row count declared in the footer.
func (a *ArrowFile) NumRows() int64 {
	return a.reader.NumRows()
}

// Close implements core.FileHandle.
func (a *ArrowFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.releaseCurrent()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *ArrowFile) releaseCurrent() {
	if a.current != nil {
		a.current.release()
		a.current = nil
	}
}

// arrowRowGroup serves rows of one row group from a pqarrow record reader.
type arrowRowGroup struct {
	index        int
	numRows      int64
	recordReader pqarrow.RecordReader
	batch        arrow.Record
	batchStart   int64
	next         int64
	released     bool
}

func (g *arrowRowGroup) NumRows() int64 {
	return g.numRows
}

func (g *arrowRowGroup) AssembleRow(ctx context.Context, sch *core.Schema, index int64) (core.Row, error) {
	if g.released {
		return nil, core.ErrClosed
	}
	if index != g.next {
		return nil, fmt.Errorf("row group %d: row %d requested out of order, next row is %d", g.index, index, g.next)
	}
	if index >= g.numRows {
		return nil, fmt.Errorf("%w: row group %d declares %d rows, row %d requested", core.ErrRowCountMismatch, g.index, g.numRows, index)
	}

	for g.batch == nil || index >= g.batchStart+g.batch.NumRows() {
		if err := g.loadNextBatch(); err != nil {
			return nil, err
		}
	}

	pos := int(index - g.batchStart)
	row := make(core.Row, g.batch.NumCols())
	for i := range row {
		row[i] = arrowValue(g.batch.Column(i), pos)
	}
	if sch != nil && len(row) != sch.Len() {
		return nil, fmt.Errorf("%w: row group %d decoded %d columns, schema has %d fields", core.ErrRowCountMismatch, g.index, len(row), sch.Len())
	}

	g.next++
	return row, nil
}

func (g *arrowRowGroup) loadNextBatch() error {
	if g.batch != nil {
		g.batchStart += g.batch.NumRows()
		g.batch.Release()
		g.batch = nil
	}

	rec, err := g.recordReader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("row group %d: failed to read record batch: %w", g.index, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: row group %d declares %d rows but only %d were decoded", core.ErrRowCountMismatch, g.index, g.numRows, g.batchStart)
	}

	rec.Retain()
	g.batch = rec
	return nil
}

func (g *arrowRowGroup) release() {
	if g.released {
		return
	}
	g.released = true
	if g.batch != nil {
		g.batch.Release()
		g.batch = nil
	}
	if g.recordReader != nil {
		g.recordReader.Release()
		g.recordReader = nil
	}
}

func repetitionOf(r parquet.Repetition) core.Repetition {
	switch r {
	case parquet.Repetitions.Optional:
		return core.Optional
	case parquet.Repetitions.Repeated:
		return core.Repeated
	default:
		return core.Required
	}
}

// arrowValue converts one cell of an Arrow array into a plain Go value.
func arrowValue(col arrow.Array, rowIdx int) interface{} {
	if col.IsNull(rowIdx) {
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return arr.Value(rowIdx)
	case *array.Int16:
		return arr.Value(rowIdx)
	case *array.Int32:
		return arr.Value(rowIdx)
	case *array.Int64:
		return arr.Value(rowIdx)
	case *array.Uint8:
		return arr.Value(rowIdx)
	case *array.Uint16:
		return arr.Value(rowIdx)
	case *array.Uint32:
		return arr.Value(rowIdx)
	case *array.Uint64:
		return arr.Value(rowIdx)
	case *array.Float32:
		return arr.Value(rowIdx)
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.LargeString:
		return arr.Value(rowIdx)
	case *array.Binary:
		return bytes.Clone(arr.Value(rowIdx))
	case *array.FixedSizeBinary:
		return bytes.Clone(arr.Value(rowIdx))
	case *array.Timestamp:
		unit := arrow.Microsecond
		if tt, ok := arr.DataType().(*arrow.TimestampType); ok {
			unit = tt.Unit
		}
		return arr.Value(rowIdx).ToTime(unit)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime()
	case *array.Date64:
		return arr.Value(rowIdx).ToTime()
	case *array.List:
		offsets := arr.Offsets()
		values := arr.ListValues()
		list := make([]interface{}, 0, offsets[rowIdx+1]-offsets[rowIdx])
		for j := offsets[rowIdx]; j < offsets[rowIdx+1]; j++ {
			list = append(list, arrowValue(values, int(j)))
		}
		return list
	case *array.Struct:
		st := arr.DataType().(*arrow.StructType)
		m := make(map[string]interface{}, arr.NumField())
		for f := 0; f < arr.NumField(); f++ {
			m[st.Field(f).Name] = arrowValue(arr.Field(f), rowIdx)
		}
		return m
	default:
		return col.GetOneForMarshal(rowIdx)
	}
}
