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
	"os"
	"strings"

	"github.com/aaronlmathis/pqrows/core"
)

// Package readers provides core.FileHandle implementations backed by
// third-party Parquet decoders, and Open to obtain one from a path.

// DefaultReadBatchSize is the Arrow record batch size used when decoding a
// row group.
const DefaultReadBatchSize = 1024

// Backend selects the Parquet decoder behind a FileHandle.
type Backend string

const (
	BackendArrow     Backend = "arrow"      // Apache Arrow Go parquet/pqarrow
	BackendParquetGo Backend = "parquet-go" // github.com/parquet-go/parquet-go
)

// OpenOptions configures Open.
type OpenOptions struct {
	Backend   Backend   // Decoder to use
	BatchSize int64     // Arrow record batch size
	S3        S3Options // Settings for s3:// paths
	S3Fetcher *S3Fetcher
	HTTP      HTTPOptions // Settings for http:// and https:// paths
}

// OpenOption represents a configuration function for OpenOptions.
type OpenOption func(*OpenOptions)

func WithBackend(backend Backend) OpenOption {
	return func(opts *OpenOptions) {
		opts.Backend = backend
	}
}

func WithReadBatchSize(size int64) OpenOption {
	return func(opts *OpenOptions) {
		opts.BatchSize = size
	}
}

// WithS3Options configures the client created for s3:// paths.
func WithS3Options(options ...S3Option) OpenOption {
	return func(opts *OpenOptions) {
		for _, option := range options {
			option(&opts.S3)
		}
	}
}

// WithS3Fetcher reuses an existing S3 client for s3:// paths.
func WithS3Fetcher(fetcher *S3Fetcher) OpenOption {
	return func(opts *OpenOptions) {
		opts.S3Fetcher = fetcher
	}
}

// WithHTTPOptions configures downloads of http:// and https:// paths.
func WithHTTPOptions(options ...HTTPOption) OpenOption {
	return func(opts *OpenOptions) {
		for _, option := range options {
			option(&opts.HTTP)
		}
	}
}

func (opts *OpenOptions) withDefaults() *OpenOptions {
	result := &OpenOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.Backend == "" {
		result.Backend = BackendArrow
	}
	if result.BatchSize <= 0 {
		result.BatchSize = DefaultReadBatchSize
	}
	return result
}

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(name)) {
	case BackendArrow, "":
		return BackendArrow, nil
	case BackendParquetGo, "parquetgo":
		return BackendParquetGo, nil
	default:
		return "", fmt.Errorf("unknown backend %q (supported: %s, %s)", name, BackendArrow, BackendParquetGo)
	}
}

// Open opens the Parquet file at path for sequential row group reading.
// Paths of the form s3://bucket/key are downloaded with the AWS SDK and
// http(s):// URLs with net/http. Anything else is opened from the local
// filesystem. Failures are OpenErrors.
func Open(ctx context.Context, path string, options ...OpenOption) (core.FileHandle, error) {
	opts := &OpenOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	if IsS3URL(path) {
		return openS3(ctx, path, opts)
	}
	if IsHTTPURL(path) {
		return openHTTP(ctx, path, opts)
	}
	return openLocal(path, opts)
}

func openLocal(path string, opts *OpenOptions) (core.FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewOpenError("open_file", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, core.NewOpenError("stat_file", path, err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, core.NewOpenError("open_file", path, fmt.Errorf("is a directory"))
	}

	return newHandle(f, stat.Size(), f, path, opts)
}

func openS3(ctx context.Context, path string, opts *OpenOptions) (core.FileHandle, error) {
	bucket, key, err := ParseS3URL(path)
	if err != nil {
		return nil, core.NewOpenError("parse_s3_url", path, err)
	}

	fetcher := opts.S3Fetcher
	if fetcher == nil {
		fetcher, err = NewS3Fetcher(ctx, opts.S3)
		if err != nil {
			return nil, core.NewOpenError("create_s3_client", path, err)
		}
	}

	data, err := fetcher.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, core.NewOpenError("get_object", path, err)
	}

	return newHandle(bytes.NewReader(data), int64(len(data)), nil, path, opts)
}

func openHTTP(ctx context.Context, path string, opts *OpenOptions) (core.FileHandle, error) {
	data, err := NewHTTPFetcher(opts.HTTP).Fetch(ctx, path)
	if err != nil {
		return nil, core.NewOpenError("http_get", path, err)
	}
	return newHandle(bytes.NewReader(data), int64(len(data)), nil, path, opts)
}

// readerAtSeeker is what both decoders need from a source.
type readerAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

func newHandle(r readerAtSeeker, size int64, closer io.Closer, name string, opts *OpenOptions) (core.FileHandle, error) {
	switch opts.Backend {
	case BackendParquetGo:
		h, err := NewParquetGoFile(r, size, closer, name)
		if err != nil {
			return nil, err
		}
		return h, nil
	case BackendArrow:
		h, err := NewArrowFile(r, closer, name, opts.BatchSize)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		closeQuietly(closer)
		return nil, core.NewOpenError("select_backend", name, fmt.Errorf("unknown backend %q", opts.Backend))
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
