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
	"errors"
	"fmt"
)

var (
	ErrMissingKeyColumn = errors.New("primary key column missing from table")
)

// Filter returns the rows of t whose complete primary key tuple is not in
// existing. When existing is empty t is returned as is.
func Filter(t *Table, primaryKeys []string, existing KeySet) (*Table, error) {
	if existing.Len() == 0 || len(primaryKeys) == 0 {
		return t, nil
	}

	positions, err := keyPositions(t, primaryKeys)
	if err != nil {
		return nil, err
	}

	result := NewTable(t.Columns...)
	for rowIdx, row := range t.Rows {
		if _, ok := existing[rowKey(row, positions)]; ok {
			continue
		}
		result.AppendLabeledRow(t.Label(rowIdx), row...)
	}

	return result, nil
}

// KeysOf returns the primary key tuples of every row in t
func KeysOf(t *Table, primaryKeys []string) (KeySet, error) {
	positions, err := keyPositions(t, primaryKeys)
	if err != nil {
		return nil, err
	}

	keys := NewKeySet()
	for _, row := range t.Rows {
		keys[rowKey(row, positions)] = struct{}{}
	}

	return keys, nil
}

func keyPositions(t *Table, primaryKeys []string) ([]int, error) {
	positions := make([]int, len(primaryKeys))
	for idx, pk := range primaryKeys {
		positions[idx] = t.ColumnIndex(pk)
		if positions[idx] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingKeyColumn, pk)
		}
	}
	return positions, nil
}
