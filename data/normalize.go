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
	"github.com/penny-vault/pvfin/schema"
	"github.com/rs/zerolog/log"
)

// Normalize conforms t to the table schema. Columns the schema declares but
// t lacks are added as nulls, columns are projected and reordered to match
// the schema, and rows repeating an earlier primary key are dropped so the
// first occurrence wins. If the schema has no primary key, or a key column
// is not one of the schema columns, duplicates are kept and a warning is
// logged. The input table is never modified.
func Normalize(t *Table, tbl schema.TableSchema) *Table {
	result := NewTable(tbl.Columns...)
	if t == nil {
		return result
	}

	// source position of each schema column; -1 when missing
	positions := make([]int, len(tbl.Columns))
	for idx, col := range tbl.Columns {
		positions[idx] = t.ColumnIndex(col)
	}

	keyPositions, dedupe := keyColumnPositions(result.Columns, tbl)
	if !dedupe && t.Len() > 0 {
		log.Warn().Str("Table", tbl.Name).Strs("PrimaryKeys", tbl.PrimaryKeys).Msg("cannot remove duplicate rows without a complete primary key")
	}

	seen := make(map[string]struct{}, t.Len())
	for rowIdx, row := range t.Rows {
		cells := make([]Cell, len(positions))
		for idx, pos := range positions {
			if pos >= 0 && pos < len(row) {
				cells[idx] = row[pos]
			}
		}

		if dedupe {
			key := rowKey(cells, keyPositions)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}

		result.AppendLabeledRow(t.Label(rowIdx), cells...)
	}

	return result
}

// keyColumnPositions returns the position of each primary key within
// columns and whether every key column is present
func keyColumnPositions(columns []string, tbl schema.TableSchema) ([]int, bool) {
	if len(tbl.PrimaryKeys) == 0 {
		return nil, false
	}

	positions := make([]int, len(tbl.PrimaryKeys))
	for idx, pk := range tbl.PrimaryKeys {
		pos := -1
		for colIdx, col := range columns {
			if col == pk {
				pos = colIdx
				break
			}
		}
		if pos < 0 {
			return nil, false
		}
		positions[idx] = pos
	}

	return positions, true
}
