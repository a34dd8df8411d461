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
package library

import (
	"context"
	"fmt"

	"github.com/alphadose/haxmap"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/schema"
	"github.com/rs/zerolog/log"
)

// ExistingKeys returns the primary key tuples already stored in the table.
// When the table has a ticker column and ticker is not empty only that
// ticker's keys are read.
func (myLibrary *Library) ExistingKeys(ctx context.Context, tbl schema.TableSchema, ticker string) (data.KeySet, error) {
	keys := data.NewKeySet()
	if len(tbl.PrimaryKeys) == 0 {
		return keys, nil
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", quoteColumns(tbl.PrimaryKeys), quoteTable(tbl.Name))
	args := []any{}
	if ticker != "" && tbl.IsTickerScoped() {
		sql += fmt.Sprintf(" WHERE %s = $1", quoteIdent("ticker"))
		args = append(args, ticker)
	}

	rows, err := myLibrary.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing keys of %s: %w", tbl.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read existing keys of %s: %w", tbl.Name, err)
		}

		for idx, val := range values {
			values[idx] = keyValue(val)
		}
		keys.Add(values...)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read existing keys of %s: %w", tbl.Name, err)
	}

	log.Debug().Str("Table", tbl.Name).Str("Ticker", ticker).Int("NumKeys", keys.Len()).Msg("loaded existing keys")

	return keys, nil
}

// keyValue converts pgx wire types into values with a canonical key form
func keyValue(val any) any {
	switch v := val.(type) {
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Date:
		if !v.Valid {
			return nil
		}
		return v.Time
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
	}
	return val
}

// KeyCache holds key sets for tables that are not scoped to a ticker so they
// are read from the database once per run
type KeyCache struct {
	sets *haxmap.Map[string, data.KeySet]
}

func NewKeyCache() *KeyCache {
	return &KeyCache{
		sets: haxmap.New[string, data.KeySet](),
	}
}

// Get returns the cached key set for table
func (cache *KeyCache) Get(table string) (data.KeySet, bool) {
	return cache.sets.Get(table)
}

// Set stores the key set for table
func (cache *KeyCache) Set(table string, keys data.KeySet) {
	cache.sets.Set(table, keys)
}

// Add records keys that were loaded into table during the run
func (cache *KeyCache) Add(table string, keys data.KeySet) {
	if existing, ok := cache.sets.Get(table); ok {
		existing.Merge(keys)
		return
	}
	cache.sets.Set(table, keys)
}
