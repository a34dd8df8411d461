// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package data

import (
	"slices"

	"github.com/rs/zerolog"
)

// Table is an ordered set of rows with named columns. Labels optionally
// carries the provider's row label (e.g. "2022" or "2022-Q3") for each row.
type Table struct {
	Columns []string
	Labels  []string
	Rows    [][]Cell
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...string) *Table {
	return &Table{
		Columns: slices.Clone(columns),
		Labels:  []string{},
		Rows:    [][]Cell{},
	}
}

// Len returns the number of rows in the table
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column or -1
func (t *Table) ColumnIndex(name string) int {
	return slices.Index(t.Columns, name)
}

// Label returns the label of row idx or an empty string
func (t *Table) Label(idx int) string {
	if idx < len(t.Labels) {
		return t.Labels[idx]
	}
	return ""
}

// AppendRow adds an unlabeled row; missing trailing cells are null
func (t *Table) AppendRow(cells ...Cell) {
	t.AppendLabeledRow("", cells...)
}

// AppendLabeledRow adds a row with the given label; missing trailing cells
// are null
func (t *Table) AppendLabeledRow(label string, cells ...Cell) {
	row := make([]Cell, len(t.Columns))
	copy(row, cells)

	t.padLabels()
	t.Rows = append(t.Rows, row)
	t.Labels = append(t.Labels, label)
}

// Get returns the cell at row idx in the named column
func (t *Table) Get(idx int, column string) Cell {
	col := t.ColumnIndex(column)
	if col < 0 || idx >= len(t.Rows) || col >= len(t.Rows[idx]) {
		return Null()
	}
	return t.Rows[idx][col]
}

// Clone returns a deep copy of the table structure. Cell values are shared.
func (t *Table) Clone() *Table {
	clone := &Table{
		Columns: slices.Clone(t.Columns),
		Labels:  make([]string, len(t.Rows)),
		Rows:    make([][]Cell, len(t.Rows)),
	}

	for idx, row := range t.Rows {
		clone.Rows[idx] = slices.Clone(row)
		clone.Labels[idx] = t.Label(idx)
	}

	return clone
}

// Values converts the rows into the form accepted by pgx.CopyFromRows
func (t *Table) Values() [][]any {
	values := make([][]any, len(t.Rows))
	for idx, row := range t.Rows {
		vals := make([]any, len(row))
		for col, cell := range row {
			vals[col] = cell.Any()
		}
		values[idx] = vals
	}
	return values
}

// Concat returns a new table holding the rows of each input in order. The
// column list is the union of the input columns in first-seen order; values
// for columns a table does not have are null. Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	result := NewTable()
	for _, tbl := range tables {
		if tbl == nil {
			continue
		}
		for _, col := range tbl.Columns {
			if !slices.Contains(result.Columns, col) {
				result.Columns = append(result.Columns, col)
			}
		}
	}

	for _, tbl := range tables {
		if tbl == nil {
			continue
		}

		positions := make([]int, len(tbl.Columns))
		for idx, col := range tbl.Columns {
			positions[idx] = result.ColumnIndex(col)
		}

		for rowIdx, row := range tbl.Rows {
			out := make([]Cell, len(result.Columns))
			for idx, cell := range row {
				if idx < len(positions) {
					out[positions[idx]] = cell
				}
			}
			result.Rows = append(result.Rows, out)
			result.Labels = append(result.Labels, tbl.Label(rowIdx))
		}
	}

	return result
}

func (t *Table) padLabels() {
	for len(t.Labels) < len(t.Rows) {
		t.Labels = append(t.Labels, "")
	}
}

func (t *Table) MarshalZerologObject(e *zerolog.Event) {
	e.Int("NumRows", t.Len())
	e.Int("NumColumns", len(t.Columns))
}
