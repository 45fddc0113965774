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
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [file]",
		Short: "Show the columns and row groups of a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchema,
	}
	return cmd
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	handle, err := openFile(ctx, args[0])
	if err != nil {
		return err
	}
	defer handle.Close()

	schema, err := handle.ReadSchema(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	columns := tablewriter.NewWriter(out)
	columns.Header("#", "Column", "Type", "Physical", "Repetition")
	for i, f := range schema.Fields() {
		if err := columns.Append([]string{strconv.Itoa(i), f.Name, f.Type, f.PhysicalType, f.Repetition.String()}); err != nil {
			return err
		}
	}
	if err := columns.Render(); err != nil {
		return err
	}

	groups := tablewriter.NewWriter(out)
	groups.Header("Row group", "Rows")
	var total int64
	for i := 0; ; i++ {
		rg, err := handle.NextRowGroup(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		total += rg.NumRows()
		if err := groups.Append([]string{strconv.Itoa(i), strconv.FormatInt(rg.NumRows(), 10)}); err != nil {
			return err
		}
	}
	if err := groups.Render(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "%d columns, %d rows\n", schema.Len(), total)
	return err
}
