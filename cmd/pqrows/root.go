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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/pqrows"
	"github.com/aaronlmathis/pqrows/core"
	"github.com/aaronlmathis/pqrows/readers"
)

var (
	backendName string
	columns     []string
	batchSize   int
	logLevel    string
	s3Region    string
	s3Endpoint  string
	s3Profile   string
	s3PathStyle bool
	httpToken   string
	httpRetries int

	logger = slog.New(slog.DiscardHandler)
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pqrows",
		Short: "Read Parquet files as rows",
		Long: `pqrows reads Parquet files row group by row group and turns them into rows.

Files can be local paths, s3://bucket/key URLs or http(s):// URLs.

Examples:
  pqrows cat data.parquet
  pqrows cat s3://bucket/events.parquet --columns id,name --format csv
  pqrows schema data.parquet
  pqrows convert data.parquet small.parquet --row-group-size 5000
  pqrows load data.parquet --postgres-dsn postgres://localhost/db --table events`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", string(readers.BackendArrow), "Parquet decoder (arrow or parquet-go)")
	rootCmd.PersistentFlags().StringSliceVarP(&columns, "columns", "c", []string{}, "Columns to keep, in output order (e.g., id,name)")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", pqrows.DefaultBatchSize, "Rows per batch when streaming")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "", "AWS region for s3:// paths")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible storage")
	rootCmd.PersistentFlags().StringVar(&s3Profile, "s3-profile", "", "AWS shared config profile")
	rootCmd.PersistentFlags().BoolVar(&s3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	rootCmd.PersistentFlags().StringVar(&httpToken, "http-token", "", "Bearer token for http(s):// paths")
	rootCmd.PersistentFlags().IntVar(&httpRetries, "http-retries", 2, "Retries for failed http(s):// downloads")

	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newLoadCmd())
	return rootCmd
}

func Execute() error {
	return newRootCmd().Execute()
}

func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// openOptions builds reader options from the persistent flags.
func openOptions() ([]readers.OpenOption, error) {
	backend, err := readers.ParseBackend(backendName)
	if err != nil {
		return nil, err
	}

	return []readers.OpenOption{
		readers.WithBackend(backend),
		readers.WithS3Options(
			readers.WithS3Region(s3Region),
			readers.WithS3Endpoint(s3Endpoint),
			readers.WithS3Profile(s3Profile),
			readers.WithS3PathStyle(s3PathStyle),
		),
		readers.WithHTTPOptions(
			readers.WithHTTPBearerToken(httpToken),
			readers.WithHTTPRetries(httpRetries, 0),
		),
	}, nil
}

// openFile opens path with the decoder and remote settings from the flags.
func openFile(ctx context.Context, path string) (core.FileHandle, error) {
	opts, err := openOptions()
	if err != nil {
		return nil, err
	}
	return readers.Open(ctx, path, opts...)
}

// scanOptions builds materializer options from the persistent flags.
func scanOptions() []pqrows.Option {
	return []pqrows.Option{
		pqrows.WithColumns(columns...),
		pqrows.WithBatchSize(batchSize),
		pqrows.WithLogger(logger),
	}
}

// nopWriteCloser keeps sinks from closing stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}
