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
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Run is the history record of a single ingest
type Run struct {
	ID               uuid.UUID `db:"id"`
	StartedOn        time.Time `db:"started_on"`
	FinishedOn       time.Time `db:"finished_on"`
	Mode             string    `db:"mode"`
	TickersRequested int       `db:"tickers_requested"`
	TickersFetched   int       `db:"tickers_fetched"`
	RowsInserted     int64     `db:"rows_inserted"`
	RowsUpdated      int64     `db:"rows_updated"`
	FailedTables     []string  `db:"failed_tables"`
}

func (run *Run) MarshalZerologObject(e *zerolog.Event) {
	e.Str("RunID", run.ID.String())
	e.Str("Mode", run.Mode)
	e.Int("TickersRequested", run.TickersRequested)
	e.Int("TickersFetched", run.TickersFetched)
	e.Int64("RowsInserted", run.RowsInserted)
	e.Int64("RowsUpdated", run.RowsUpdated)
	e.Strs("FailedTables", run.FailedTables)
}

// RecordRun saves the run to the ingest history. An ID is assigned if the run
// does not have one.
func (myLibrary *Library) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	if run.FailedTables == nil {
		run.FailedTables = []string{}
	}

	_, err := myLibrary.Pool.Exec(ctx, `INSERT INTO ingest_runs ("id", "started_on", "finished_on", "mode",
"tickers_requested", "tickers_fetched", "rows_inserted", "rows_updated", "failed_tables")
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.StartedOn, run.FinishedOn, run.Mode, run.TickersRequested, run.TickersFetched,
		run.RowsInserted, run.RowsUpdated, run.FailedTables)

	return err
}

// RecentRuns returns up to limit runs, newest first
func (myLibrary *Library) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	var runs []*Run
	err := pgxscan.Select(ctx, myLibrary.Pool, &runs,
		`SELECT id, started_on, finished_on, mode, tickers_requested, tickers_fetched, rows_inserted,
rows_updated, failed_tables FROM ingest_runs ORDER BY started_on DESC LIMIT $1`, limit)
	return runs, err
}

// LastUpdated returns when the most recent run finished
func (myLibrary *Library) LastUpdated(ctx context.Context) (time.Time, error) {
	var lastUpdated time.Time
	err := myLibrary.Pool.QueryRow(ctx, "SELECT coalesce(max(finished_on), '0001-01-01'::timestamp) FROM ingest_runs").Scan(&lastUpdated)
	if err != nil {
		return time.Time{}, err
	}

	return lastUpdated, nil
}
