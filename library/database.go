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
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PgxIface is the subset of pgxpool.Pool used by the library
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

type Library struct {
	DBUrl string
	Name  string
	Owner string

	Pool PgxIface
}

// Connect to the database configured for the library
func (myLibrary *Library) Connect(ctx context.Context) error {
	if myLibrary.Pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, myLibrary.DBUrl)
	if err != nil {
		return err
	}
	myLibrary.Pool = pool

	return nil
}

// Close the database pool
func (myLibrary *Library) Close() {
	if myLibrary.Pool != nil {
		myLibrary.Pool.Close()
	}
}

// NewFromDB creates a new library object with values from the database
func NewFromDB(ctx context.Context, dbURL string) (*Library, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	return NewFromPool(ctx, dbURL, pool)
}

// NewFromPool creates a library on an existing connection pool and loads its
// name and owner. A database that was never initialized with `init` is still
// usable; its name is left blank.
func NewFromPool(ctx context.Context, dbURL string, pool PgxIface) (*Library, error) {
	myLibrary := Library{
		DBUrl: dbURL,
		Pool:  pool,
	}

	err := pool.QueryRow(ctx, "SELECT name, owner FROM library LIMIT 1").Scan(&myLibrary.Name, &myLibrary.Owner)
	if err != nil {
		log.Warn().Err(err).Msg("could not read library name; has `pvfin init` been run?")
	}

	return &myLibrary, nil
}

// SaveDB creates a new record in the library table for this library
func (myLibrary *Library) SaveDB(ctx context.Context) error {
	_, err := myLibrary.Pool.Exec(ctx, `INSERT INTO library ("name", "owner") VALUES ($1, $2)`, myLibrary.Name, myLibrary.Owner)
	return err
}

// ApplyDDL executes the DDL text as a single batch. Statements should be
// written so that they can be run repeatedly (CREATE TABLE IF NOT EXISTS).
func (myLibrary *Library) ApplyDDL(ctx context.Context, ddl string) error {
	if _, err := myLibrary.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply ddl: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in table
func (myLibrary *Library) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := myLibrary.Pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteTable(table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

// quoteIdent quotes a single identifier
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteTable quotes a possibly schema-qualified table name
func quoteTable(name string) string {
	parts := tableIdentifier(name)
	quoted := make([]string, len(parts))
	for idx, part := range parts {
		quoted[idx] = quoteIdent(part)
	}
	return strings.Join(quoted, ".")
}

// tableIdentifier splits "schema.table" into a pgx.Identifier
func tableIdentifier(name string) pgx.Identifier {
	if schemaName, tableName, ok := strings.Cut(name, "."); ok {
		return pgx.Identifier{schemaName, tableName}
	}
	return pgx.Identifier{name}
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for idx, col := range columns {
		quoted[idx] = quoteIdent(col)
	}
	return strings.Join(quoted, ", ")
}
