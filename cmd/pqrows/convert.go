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
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/pqrows"
	"github.com/aaronlmathis/pqrows/writers"
)

var (
	convertRowGroupSize int64
	convertCompression  string
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [file] [output]",
		Short: "Rewrite a Parquet file with new row groups or compression",
		Long: `Stream the rows of a Parquet file into a new Parquet file.
Examples:
  pqrows convert data.parquet out.parquet --row-group-size 5000
  pqrows convert s3://bucket/data.parquet out.parquet --columns id,name --compression zstd`,
		Args: cobra.ExactArgs(2),
		RunE: runConvert,
	}

	cmd.Flags().Int64Var(&convertRowGroupSize, "row-group-size", 10000, "Maximum rows per output row group")
	cmd.Flags().StringVar(&convertCompression, "compression", "snappy", "Output compression (none, snappy, gzip, zstd, brotli)")
	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	codec, err := writers.ParseCompression(convertCompression)
	if err != nil {
		return err
	}

	handle, err := openFile(ctx, args[0])
	if err != nil {
		return err
	}

	scanner, err := pqrows.NewScanner(ctx, handle, scanOptions()...)
	if err != nil {
		return err
	}
	defer scanner.Close()

	out, err := createOutput(args[1])
	if err != nil {
		return err
	}

	sink, err := writers.NewParquetWriter(out, scanner.Schema(),
		writers.WithRowGroupSize(convertRowGroupSize),
		writers.WithCompression(codec),
		writers.WithBatchSize(int64(batchSize)),
		writers.WithMetadata(map[string]string{"pqrows.source": args[0]}),
	)
	if err != nil {
		_ = out.Close()
		return err
	}

	n, err := pqrows.Copy(ctx, scanner, sink)
	if err != nil {
		_ = sink.Close()
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	logger.Info("parquet file converted", "source", args[0], "output", args[1], "rows", n)
	return nil
}
