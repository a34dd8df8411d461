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
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LoadMode string

const (
	AppendMode LoadMode = "append"
	UpsertMode LoadMode = "upsert"
)

var (
	ErrNoPrimaryKey = errors.New("upsert requires a primary key")
)

// LoadResult reports the outcome of a single bulk load
type LoadResult struct {
	Table     string
	Mode      LoadMode
	Attempted int64
	Inserted  int64
	Updated   int64
}

func (result LoadResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Table", result.Table)
	e.Str("Mode", string(result.Mode))
	e.Int64("NumAttempted", result.Attempted)
	e.Int64("NumInserted", result.Inserted)
	e.Int64("NumUpdated", result.Updated)
}

// BulkAppend copies rows directly into table in a single transaction. The
// caller guarantees none of the rows collide with stored keys.
func (myLibrary *Library) BulkAppend(ctx context.Context, table string, columns []string, rows [][]any) (LoadResult, error) {
	result := LoadResult{
		Table:     table,
		Mode:      AppendMode,
		Attempted: int64(len(rows)),
	}

	if len(rows) == 0 {
		return result, nil
	}

	tx, err := myLibrary.Pool.Begin(ctx)
	if err != nil {
		return result, err
	}

	defer rollback(ctx, tx, table)

	copied, err := tx.CopyFrom(ctx, tableIdentifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return result, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit %s: %w", table, err)
	}

	result.Inserted = copied
	log.Info().Object("Result", result).Msg("appended rows")

	return result, nil
}

// BulkUpsert stages rows in a temporary copy of table and merges them into
// the target. Rows whose primary key is already stored have every non-key
// column overwritten with the staged value. The staging table is dropped
// when the transaction ends whether it commits or rolls back.
func (myLibrary *Library) BulkUpsert(ctx context.Context, table string, columns, primaryKeys []string, rows [][]any) (LoadResult, error) {
	result := LoadResult{
		Table:     table,
		Mode:      UpsertMode,
		Attempted: int64(len(rows)),
	}

	if len(primaryKeys) == 0 {
		return result, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table)
	}

	if len(rows) == 0 {
		return result, nil
	}

	ident := tableIdentifier(table)
	stage := ident[len(ident)-1] + "_stage"

	tx, err := myLibrary.Pool.Begin(ctx)
	if err != nil {
		return result, err
	}

	defer rollback(ctx, tx, table)

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", quoteIdent(stage), quoteTable(table))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return result, fmt.Errorf("create staging table for %s: %w", table, err)
	}

	staged, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return result, fmt.Errorf("copy into staging table for %s: %w", table, err)
	}

	matchSQL := make([]string, len(primaryKeys))
	for idx, pk := range primaryKeys {
		matchSQL[idx] = fmt.Sprintf("t.%s = s.%s", quoteIdent(pk), quoteIdent(pk))
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM %s s WHERE EXISTS (SELECT 1 FROM %s t WHERE %s)",
		quoteIdent(stage), quoteTable(table), strings.Join(matchSQL, " AND "))
	var updated int64
	if err := tx.QueryRow(ctx, countSQL).Scan(&updated); err != nil {
		return result, fmt.Errorf("count matching keys in %s: %w", table, err)
	}

	if _, err := tx.Exec(ctx, mergeSQL(table, stage, columns, primaryKeys)); err != nil {
		return result, fmt.Errorf("merge staged rows into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit %s: %w", table, err)
	}

	result.Updated = updated
	result.Inserted = staged - updated
	log.Info().Object("Result", result).Msg("upserted rows")

	return result, nil
}

// mergeSQL builds the statement that moves staged rows into the target
func mergeSQL(table, stage string, columns, primaryKeys []string) string {
	cols := quoteColumns(columns)

	updates := make([]string, 0, len(columns))
	for _, col := range columns {
		isKey := false
		for _, pk := range primaryKeys {
			if col == pk {
				isKey = true
				break
			}
		}
		if !isKey {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(col), quoteIdent(col)))
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		quoteTable(table), cols, cols, quoteIdent(stage), quoteColumns(primaryKeys), conflict)
}

func rollback(ctx context.Context, tx pgx.Tx, table string) {
	if err := tx.Rollback(ctx); err != nil {
		if !errors.Is(err, pgx.ErrTxClosed) {
			log.Error().Err(err).Str("Table", table).Msg("error rollingback tx")
		}
	}
}
