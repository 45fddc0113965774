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

import "fmt"

// Package core defines the core types for the PQRows library.
//
// PQRows materializes column-oriented Parquet files into row-oriented records.
// This file contains the data model shared by the materializer, the decoding
// backends and the sinks.

// Row is one materialized record. Values are positionally aligned with the
// Schema the row was assembled against; a row never carries its own schema.
type Row []interface{}

// Len returns the number of values in the row.
func (r Row) Len() int {
	return len(r)
}

// Field returns the value at position i.
func (r Row) Field(i int) interface{} {
	return r[i]
}

// Record is a name-keyed view of a Row, for consumers that address values by
// column name instead of position.
type Record map[string]interface{}

// Repetition is the Parquet repetition of a schema field.
type Repetition int

const (
	Required Repetition = iota
	Optional
	Repeated
)

func (r Repetition) String() string {
	switch r {
	case Required:
		return "required"
	case Optional:
		return "optional"
	case Repeated:
		return "repeated"
	default:
		return fmt.Sprintf("repetition(%d)", int(r))
	}
}

// SchemaField describes one top-level column as declared in the file footer.
type SchemaField struct {
	Name         string     // Column name
	Type         string     // Logical type as rendered by the decoder
	PhysicalType string     // Parquet physical type, or "group" for nested fields
	Repetition   Repetition // Required, optional or repeated
}

// Schema is the ordered, immutable list of fields of a file. A single Schema
// is shared by every row read from the same file.
type Schema struct {
	fields []SchemaField
	index  map[string]int
}

// NewSchema builds a Schema from fields in declaration order.
func NewSchema(fields ...SchemaField) *Schema {
	s := &Schema{
		fields: make([]SchemaField, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i, f := range s.fields {
		if _, dup := s.index[f.Name]; !dup {
			s.index[f.Name] = i
		}
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Field returns the i-th field.
func (s *Schema) Field(i int) SchemaField {
	return s.fields[i]
}

// Fields returns a copy of the field list.
func (s *Schema) Fields() []SchemaField {
	out := make([]SchemaField, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the position of the named field.
func (s *Schema) Lookup(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Project narrows the schema to the named columns, in the order given. It
// returns the narrowed schema together with the source position of every
// projected column. An empty name list selects every column.
func (s *Schema) Project(names ...string) (*Schema, []int, error) {
	if len(names) == 0 {
		indices := make([]int, len(s.fields))
		for i := range indices {
			indices[i] = i
		}
		return s, indices, nil
	}

	fields := make([]SchemaField, 0, len(names))
	indices := make([]int, 0, len(names))
	for _, name := range names {
		i, ok := s.index[name]
		if !ok {
			return nil, nil, NewSchemaError("project", "", fmt.Errorf("column %q not found in schema", name))
		}
		fields = append(fields, s.fields[i])
		indices = append(indices, i)
	}
	return NewSchema(fields...), indices, nil
}

// Record converts a row assembled against s into a name-keyed Record.
func (s *Schema) Record(row Row) Record {
	rec := make(Record, len(s.fields))
	for i, f := range s.fields {
		if i < len(row) {
			rec[f.Name] = row[i]
		}
	}
	return rec
}

// Dataset is a fully materialized file: every row in on-disk order together
// with the schema the rows are aligned to.
type Dataset struct {
	Schema *Schema
	Rows   []Row
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Record returns the i-th row as a Record.
func (d *Dataset) Record(i int) Record {
	return d.Schema.Record(d.Rows[i])
}
