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
	"io"
	"log/slog"
	"time"

	"github.com/aaronlmathis/pqrows/core"
)

type scanState int

const (
	stateIterating scanState = iota
	stateClosed
)

// ScanStats holds statistics about a Scanner's progress.
type ScanStats struct {
	RowGroupsRead int64
	RowsRead      int64
	ReadDuration  time.Duration
	LastReadTime  time.Time
}

// Scanner streams the rows of a FileHandle in on-disk order: row group order,
// then row order within each group. Only the current row group is held in
// memory. The handle is closed as soon as the scan ends, whether it ran to
// completion or failed.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	handle     core.FileHandle
	fileSchema *core.Schema
	schema     *core.Schema
	projection []int
	identity   bool

	group      core.RowGroup
	groupIndex int
	groupRows  int64
	groupPos   int64

	state  scanState
	done   bool
	err    error
	stats  ScanStats
	logger *slog.Logger
	opts   *Options
}

// NewScanner reads the schema from handle and prepares a row-by-row scan.
// If the schema cannot be read or the projection names an unknown column, the
// handle is closed and a SchemaError is returned.
func NewScanner(ctx context.Context, handle core.FileHandle, options ...Option) (*Scanner, error) {
	opts := buildOptions(options)

	fileSchema, err := handle.ReadSchema(ctx)
	if err != nil {
		_ = handle.Close()
		return nil, core.Classify(core.KindSchema, "read_schema", err)
	}
	if fileSchema == nil {
		_ = handle.Close()
		return nil, core.NewSchemaError("read_schema", "", errors.New("file has no schema"))
	}

	schema, projection, err := fileSchema.Project(opts.Columns...)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	return &Scanner{
		handle:     handle,
		fileSchema: fileSchema,
		schema:     schema,
		projection: projection,
		identity:   len(opts.Columns) == 0,
		groupIndex: -1,
		logger:     opts.Logger,
		opts:       opts,
	}, nil
}

// Schema returns the schema of the rows produced by Read.
func (s *Scanner) Schema() *core.Schema {
	return s.schema
}

// Stats returns statistics about the scan so far.
func (s *Scanner) Stats() ScanStats {
	return s.stats
}

// Read returns the next row, or io.EOF once every row group is exhausted.
// Any other error ends the scan and is returned again by later calls.
func (s *Scanner) Read(ctx context.Context) (core.Row, error) {
	startTime := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(startTime)
		s.stats.LastReadTime = time.Now()
	}()

	if s.state == stateClosed {
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		return nil, core.NewDecodeError("read", "", core.ErrClosed)
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail(&core.Error{Kind: core.KindCanceled, Op: "read", Err: err})
	}

	for s.group == nil || s.groupPos >= s.groupRows {
		if err := s.advance(ctx); err != nil {
			if err == io.EOF {
				s.finish()
				return nil, io.EOF
			}
			return nil, s.fail(err)
		}
	}

	row, err := s.group.AssembleRow(ctx, s.fileSchema, s.groupPos)
	if err != nil {
		return nil, s.fail(core.Classify(core.KindDecode, "assemble_row", err))
	}
	if len(row) != s.fileSchema.Len() {
		return nil, s.fail(core.NewDecodeError("assemble_row", "",
			fmtMismatch("row %d of group %d has %d values, schema has %d fields",
				s.groupPos, s.groupIndex, len(row), s.fileSchema.Len())))
	}
	s.groupPos++
	s.stats.RowsRead++

	return s.project(row), nil
}

// ReadBatch returns up to BatchSize rows. A batch never spans two row groups.
// It returns io.EOF, with no rows, once the scan is complete.
func (s *Scanner) ReadBatch(ctx context.Context) ([]core.Row, error) {
	row, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}

	batch := make([]core.Row, 0, min(int64(s.opts.BatchSize), s.groupRows-s.groupPos+1))
	batch = append(batch, row)
	for len(batch) < s.opts.BatchSize && s.groupPos < s.groupRows {
		row, err := s.Read(ctx)
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}

// Close ends the scan early and closes the handle. It is safe to call more
// than once. Reads after an early Close fail with core.ErrClosed rather than
// io.EOF.
func (s *Scanner) Close() error {
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	s.group = nil
	return s.handle.Close()
}

// advance fetches the next non-empty row group.
func (s *Scanner) advance(ctx context.Context) error {
	if s.group != nil {
		s.logger.Debug("row group materialized", "group", s.groupIndex, "rows", s.groupRows)
	}
	s.group = nil

	group, err := s.handle.NextRowGroup(ctx)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return core.Classify(core.KindDecode, "next_row_group", err)
	}
	if group == nil {
		return io.EOF
	}

	s.groupIndex++
	s.group = group
	s.groupRows = group.NumRows()
	s.groupPos = 0
	s.stats.RowGroupsRead++
	if s.groupRows < 0 {
		return core.NewDecodeError("next_row_group", "",
			fmtMismatch("row group %d reports %d rows", s.groupIndex, s.groupRows))
	}
	return nil
}

func (s *Scanner) project(row core.Row) core.Row {
	if s.identity {
		return row
	}
	out := make(core.Row, len(s.projection))
	for i, src := range s.projection {
		out[i] = row[src]
	}
	return out
}

func (s *Scanner) finish() {
	s.done = true
	s.logger.Info("parquet scan complete",
		"row_groups", s.stats.RowGroupsRead,
		"rows", s.stats.RowsRead)
	_ = s.Close()
}

func (s *Scanner) fail(err error) error {
	s.err = err
	s.logger.Debug("parquet scan failed", "group", s.groupIndex, "error", err)
	_ = s.Close()
	return err
}
