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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/pqrows"
	"github.com/aaronlmathis/pqrows/core"
	"github.com/aaronlmathis/pqrows/writers"
)

var (
	catFormat string
	catLimit  int64
	catEager  bool
)

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat [file]",
		Short: "Print the rows of a Parquet file",
		Long: `Print every row of a Parquet file in file order.
Examples:
  pqrows cat data.parquet
  pqrows cat data.parquet --format csv --limit 10
  pqrows cat data.parquet --eager`,
		Args: cobra.ExactArgs(1),
		RunE: runCat,
	}

	cmd.Flags().StringVarP(&catFormat, "format", "f", "jsonl", "Output format (jsonl or csv)")
	cmd.Flags().Int64VarP(&catLimit, "limit", "n", 0, "Stop after this many rows (0 for all)")
	cmd.Flags().BoolVar(&catEager, "eager", false, "Materialize the whole file before printing")
	return cmd
}

func newSink(format string, w io.WriteCloser, schema *core.Schema) (core.DataSink, error) {
	var (
		sink core.DataSink
		err  error
	)
	switch format {
	case "jsonl", "json":
		sink, err = writers.NewJSONWriter(w, schema)
	case "csv":
		sink, err = writers.NewCSVWriter(w, schema)
	default:
		return nil, fmt.Errorf("unknown format %q (supported: jsonl, csv)", format)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	handle, err := openFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := nopWriteCloser{cmd.OutOrStdout()}

	if catEager {
		ds, err := pqrows.Materialize(ctx, handle, scanOptions()...)
		if err != nil {
			return err
		}
		sink, err := newSink(catFormat, out, ds.Schema)
		if err != nil {
			return err
		}
		for i, row := range ds.Rows {
			if catLimit > 0 && int64(i) >= catLimit {
				break
			}
			if err := sink.Write(ctx, row); err != nil {
				return err
			}
		}
		return sink.Close()
	}

	scanner, err := pqrows.NewScanner(ctx, handle, scanOptions()...)
	if err != nil {
		return err
	}
	defer scanner.Close()

	sink, err := newSink(catFormat, out, scanner.Schema())
	if err != nil {
		return err
	}

	if catLimit <= 0 {
		if _, err := pqrows.Copy(ctx, scanner, sink); err != nil {
			return err
		}
		return sink.Close()
	}

	for n := int64(0); n < catLimit; n++ {
		row, err := scanner.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := sink.Write(ctx, row); err != nil {
			return err
		}
	}
	return sink.Close()
}
