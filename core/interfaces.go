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

package core

import (
	"context"
)

// Package core defines the core interfaces for the PQRows library.
//
// FileHandle and RowGroup describe the capabilities the materializer needs
// from a Parquet decoder. DataSink is implemented by the writers package.

// FileHandle is an opened Parquet file read sequentially, row group by row
// group.
type FileHandle interface {
	// ReadSchema returns the schema declared in the file footer.
	ReadSchema(ctx context.Context) (*Schema, error)
	// NextRowGroup advances to the next row group. It returns io.EOF once
	// every group has been returned, and ErrClosed after Close.
	NextRowGroup(ctx context.Context) (RowGroup, error)
	// Close releases the handle. It is idempotent.
	Close() error
}

// RowGroup is a transient page store for a contiguous run of rows. It is only
// valid until the next call to NextRowGroup on the handle that produced it.
type RowGroup interface {
	// NumRows returns the row count declared in the row group metadata.
	NumRows() int64
	// AssembleRow reconstructs row index of the group. Rows must be requested
	// in increasing order starting at 0.
	AssembleRow(ctx context.Context, schema *Schema, index int64) (Row, error)
}

// DataSink defines the interface for loading materialized rows.
// Implementations are bound to a Schema at construction time.
type DataSink interface {
	// Write outputs a single row.
	Write(ctx context.Context, row Row) error
	// Flush ensures all buffered rows are written to the sink.
	Flush() error
	// Close releases any resources held by the sink.
	Close() error
}
