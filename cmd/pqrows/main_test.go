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
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/pqrows/internal/pqtest"
)

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCat(t *testing.T) {
	path := pqtest.WriteIDVal(t, 2, 1)

	out, err := run(t, "cat", path, "--format", "jsonl")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"val":"v1"}`+"\n"+`{"id":2,"val":"v2"}`+"\n"+`{"id":3,"val":"v3"}`+"\n", out)

	out, err = run(t, "cat", path, "--format", "csv", "--limit", "2", "--columns", "val", "--backend", "parquet-go")
	require.NoError(t, err)
	assert.Equal(t, "val\nv1\nv2\n", out)
}

func TestCat_Errors(t *testing.T) {
	path := pqtest.WriteIDVal(t, 1)

	_, err := run(t, "cat", path, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "cat", path, "--format", "jsonl", "--backend", "duckdb")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = run(t, "cat", filepath.Join(t.TempDir(), "missing.parquet"), "--backend", "arrow")
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	path := pqtest.WriteIDVal(t, 3, 2)

	out, err := run(t, "schema", path, "--backend", "arrow")
	require.NoError(t, err)
	assert.Contains(t, out, "INT64")
	assert.Contains(t, out, "BYTE_ARRAY")
	assert.Contains(t, out, "required")
	assert.True(t, strings.HasSuffix(out, "2 columns, 5 rows\n"), out)
}

func TestConvert(t *testing.T) {
	path := pqtest.WriteIDVal(t, 5)
	dest := filepath.Join(t.TempDir(), "converted.parquet")

	_, err := run(t, "convert", path, dest, "--row-group-size", "2", "--compression", "gzip", "--columns", "id", "--backend", "arrow")
	require.NoError(t, err)

	out, err := run(t, "cat", dest, "--format", "csv", "--limit", "0", "--eager=false")
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n2\n3\n4\n5\n", out)
}

func TestLoad_RequiresTarget(t *testing.T) {
	path := pqtest.WriteIDVal(t, 1)

	_, err := run(t, "load", path)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "INFO"} {
		_, err := parseLogLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := parseLogLevel("loud")
	assert.Error(t, err)
}
