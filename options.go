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
	"log/slog"
)

// DefaultBatchSize is the number of rows ReadBatch returns at most.
const DefaultBatchSize = 1024

// Options configures a Scanner.
// Columns: optional list of column names to project, in output order
// BatchSize: maximum rows per ReadBatch call
type Options struct {
	Columns   []string
	BatchSize int
	Logger    *slog.Logger
}

// Option represents a configuration function
type Option func(*Options)

// WithColumns projects the output onto the named columns.
func WithColumns(columns ...string) Option {
	return func(opts *Options) {
		opts.Columns = make([]string, len(columns))
		copy(opts.Columns, columns)
	}
}

// WithBatchSize sets the maximum number of rows returned by ReadBatch.
func WithBatchSize(size int) Option {
	return func(opts *Options) {
		opts.BatchSize = size
	}
}

// WithLogger sets the logger used for row group progress.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func (opts *Options) withDefaults() *Options {
	result := &Options{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = DefaultBatchSize
	}
	if result.Logger == nil {
		result.Logger = slog.New(slog.DiscardHandler)
	}
	return result
}

func buildOptions(options []Option) *Options {
	opts := &Options{}
	for _, option := range options {
		option(opts)
	}
	return opts.withDefaults()
}
