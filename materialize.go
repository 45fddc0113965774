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
	"fmt"
	"io"
	"iter"

	"github.com/aaronlmathis/pqrows/core"
)

// Package pqrows materializes column-oriented Parquet files into ordered,
// row-oriented records.
//
// A Scanner streams rows one row group at a time and is the default way to
// consume a file. Materialize collects every row into a core.Dataset when the
// whole file is wanted in memory. Both close the file handle they are given
// on success and on failure.
//
// Example usage:
//
//	h, err := readers.Open(ctx, "data.parquet")
//	if err != nil { return err }
//	ds, err := pqrows.Materialize(ctx, h)
//	if err != nil { return err }
//	for _, row := range ds.Rows { fmt.Println(row...) }

// Materialize reads every row of handle into memory and closes the handle.
//
// The returned Dataset holds the rows in on-disk order and the schema they are
// aligned to. On failure the handle is still closed and no partial Dataset is
// returned.
func Materialize(ctx context.Context, handle core.FileHandle, options ...Option) (*core.Dataset, error) {
	scanner, err := NewScanner(ctx, handle, options...)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	rows := make([]core.Row, 0)
	for {
		row, err := scanner.Read(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		rows = append(rows, row)
	}

	return &core.Dataset{
		Schema: scanner.Schema(),
		Rows:   rows,
	}, nil
}

// Opener returns a freshly opened handle positioned at the start of a file.
type Opener func(ctx context.Context) (core.FileHandle, error)

// Rows returns a lazy sequence over the rows of the file produced by open.
// Every range over the sequence opens a new handle, so the sequence can be
// iterated more than once. Iteration stops after the first error, which is
// yielded with a nil row. Breaking out of the loop closes the handle.
func Rows(ctx context.Context, open Opener, options ...Option) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		handle, err := open(ctx)
		if err != nil {
			yield(nil, core.Classify(core.KindOpen, "open_file", err))
			return
		}

		scanner, err := NewScanner(ctx, handle, options...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer scanner.Close()

		for {
			row, err := scanner.Read(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Copy drains scanner into sink and flushes it. It returns the number of rows
// written. The sink is not closed.
func Copy(ctx context.Context, scanner *Scanner, sink core.DataSink) (int64, error) {
	var written int64
	for {
		batch, err := scanner.ReadBatch(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
		for _, row := range batch {
			if err := sink.Write(ctx, row); err != nil {
				_ = scanner.Close()
				return written, fmt.Errorf("failed to write row %d: %w", written, err)
			}
			written++
		}
	}
	if err := sink.Flush(); err != nil {
		return written, fmt.Errorf("failed to flush sink: %w", err)
	}
	return written, nil
}

func fmtMismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrRowCountMismatch, fmt.Sprintf(format, args...))
}
