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

// Package pqtest writes small Parquet files with a known row group layout for
// tests.
package pqtest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
)

// IDVal is the two column layout used by most tests: a monotonically
// increasing id and a string value.
type IDVal struct {
	ID  int64  `parquet:"id"`
	Val string `parquet:"val"`
}

// Measurement exercises optional and repeated columns.
type Measurement struct {
	ID     int64    `parquet:"id"`
	Sensor *string  `parquet:"sensor,optional"`
	Value  *float64 `parquet:"value,optional"`
	Tags   []string `parquet:"tags"`
	OK     bool     `parquet:"ok"`
}

// Point is a nested group.
type Point struct {
	X float64 `parquet:"x"`
	Y float64 `parquet:"y"`
}

// Located has a nested group column.
type Located struct {
	ID    int64 `parquet:"id"`
	Point Point `parquet:"point"`
}

// Stamp is a group with a string and a timestamp leaf.
type Stamp struct {
	Name string    `parquet:"name"`
	At   time.Time `parquet:"at,timestamp(millisecond)"`
}

// Stamped has a nested group with logical type leaves.
type Stamped struct {
	ID    int64 `parquet:"id"`
	Stamp Stamp `parquet:"stamp"`
}

// Legacy stores a timestamp in the deprecated INT96 physical type.
type Legacy struct {
	ID int64            `parquet:"id"`
	At deprecated.Int96 `parquet:"at"`
}

// Int96 encodes t as an INT96 timestamp: nanoseconds of the day, then the
// Julian day.
func Int96(t time.Time) deprecated.Int96 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	nanos := uint64(t.Sub(midnight).Nanoseconds())
	julian := uint32(midnight.Unix()/86400 + 2440588)
	return deprecated.Int96{uint32(nanos), uint32(nanos >> 32), julian}
}

// Groups builds row groups of the given sizes. IDs start at 1 and increase
// across groups; Val is "v<id>".
func Groups(sizes ...int) [][]IDVal {
	groups := make([][]IDVal, len(sizes))
	id := int64(1)
	for i, size := range sizes {
		groups[i] = make([]IDVal, size)
		for j := range groups[i] {
			groups[i][j] = IDVal{ID: id, Val: fmt.Sprintf("v%d", id)}
			id++
		}
	}
	return groups
}

// WriteGroups writes one row group per element of groups into a new file
// under t.TempDir and returns its path.
func WriteGroups[T any](t testing.TB, name string, groups [][]T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer func() { _ = f.Close() }()

	writer := parquet.NewGenericWriter[T](f)
	for i, group := range groups {
		if len(group) == 0 {
			continue
		}
		if _, err := writer.Write(group); err != nil {
			t.Fatalf("failed to write row group %d: %v", i, err)
		}
		if err := writer.Flush(); err != nil {
			t.Fatalf("failed to flush row group %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return path
}

// WriteIDVal writes an IDVal file with row groups of the given sizes.
func WriteIDVal(t testing.TB, sizes ...int) string {
	t.Helper()
	return WriteGroups(t, "idval.parquet", Groups(sizes...))
}

// WriteGarbage writes a file that is not Parquet.
func WriteGarbage(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "garbage.parquet")
	if err := os.WriteFile(path, []byte("this is not a parquet file at all"), 0o644); err != nil {
		t.Fatalf("failed to write garbage file: %v", err)
	}
	return path
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
