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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aaronlmathis/pqrows/core"
)

// JSONWriterError wraps JSON-specific write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter writes rows as line-delimited JSON objects whose keys follow
// schema order.
type JSONWriter struct {
	writer *bufio.Writer
	closer io.Closer
	keys   [][]byte
	buf    bytes.Buffer
	rows   int64
}

// NewJSONWriter creates a JSON lines writer for rows of schema.
func NewJSONWriter(w io.WriteCloser, schema *core.Schema) (*JSONWriter, error) {
	keys := make([][]byte, schema.Len())
	for i, name := range schema.Names() {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, &JSONWriterError{Op: "create", Err: err}
		}
		keys[i] = key
	}

	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
		keys:   keys,
	}, nil
}

// Write implements the DataSink interface
func (j *JSONWriter) Write(ctx context.Context, row core.Row) error {
	if row.Len() != len(j.keys) {
		return &JSONWriterError{Op: "write", Err: fmt.Errorf("row has %d values, schema has %d columns", row.Len(), len(j.keys))}
	}

	j.buf.Reset()
	j.buf.WriteByte('{')
	for i, val := range row {
		if i > 0 {
			j.buf.WriteByte(',')
		}
		j.buf.Write(j.keys[i])
		j.buf.WriteByte(':')

		data, err := json.Marshal(val)
		if err != nil {
			return &JSONWriterError{Op: "marshal", Err: fmt.Errorf("column %s: %w", j.keys[i], err)}
		}
		j.buf.Write(data)
	}
	j.buf.WriteString("}\n")

	if _, err := j.writer.Write(j.buf.Bytes()); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.rows++
	return nil
}

// Flush implements the DataSink interface
func (j *JSONWriter) Flush() error {
	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// RowsWritten returns the number of rows written so far.
func (j *JSONWriter) RowsWritten() int64 {
	return j.rows
}
