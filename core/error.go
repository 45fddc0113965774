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
	"errors"
	"fmt"
)

// Package core defines the error handling types for the PQRows library.
//
// Every failure surfaced by the materializer is an *Error carrying one of the
// kinds below. Callers test kinds with errors.Is against the sentinels.

// ErrorKind classifies a materialization failure.
type ErrorKind int

const (
	// KindOpen covers missing, unreadable or non-Parquet inputs.
	KindOpen ErrorKind = iota + 1
	// KindSchema covers missing or malformed footer metadata.
	KindSchema
	// KindDecode covers page data that cannot be decoded into records.
	KindDecode
	// KindCanceled is reported when the caller's context ends mid-scan.
	KindCanceled
)

var (
	// ErrOpen matches every error of KindOpen.
	ErrOpen = errors.New("open error")
	// ErrSchema matches every error of KindSchema.
	ErrSchema = errors.New("schema error")
	// ErrDecode matches every error of KindDecode.
	ErrDecode = errors.New("decode error")
	// ErrCanceled matches every error of KindCanceled.
	ErrCanceled = errors.New("canceled")

	// ErrClosed is returned by a FileHandle used after Close.
	ErrClosed = errors.New("file handle is closed")
	// ErrRowCountMismatch is wrapped when a row group yields a different
	// number of rows or values than its metadata declares.
	ErrRowCountMismatch = errors.New("row count mismatch")
)

func (k ErrorKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindSchema:
		return "schema"
	case KindDecode:
		return "decode"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindOpen:
		return ErrOpen
	case KindSchema:
		return ErrSchema
	case KindDecode:
		return ErrDecode
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// Error provides structured error information for materialization failures.
type Error struct {
	Kind ErrorKind // Failure class
	Op   string    // Operation that failed (e.g., "open_file", "read_schema", "next_row_group")
	Path string    // Input path, when known
	Err  error     // Underlying error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// NewOpenError returns an OpenError.
func NewOpenError(op, path string, err error) error {
	return &Error{Kind: KindOpen, Op: op, Path: path, Err: err}
}

// NewSchemaError returns a SchemaError.
func NewSchemaError(op, path string, err error) error {
	return &Error{Kind: KindSchema, Op: op, Path: path, Err: err}
}

// NewDecodeError returns a DecodeError.
func NewDecodeError(op, path string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Path: path, Err: err}
}

// Classify tags err with kind unless it already carries one.
func Classify(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or 0 when err is untagged.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
