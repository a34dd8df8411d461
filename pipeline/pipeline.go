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

// Package pipeline fetches raw datasets for a list of tickers, reconciles
// them with what is already stored and bulk loads the difference.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/library"
	"github.com/penny-vault/pvfin/schema"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Mode selects how fetched rows are reconciled with stored rows
type Mode string

const (
	// IncrementalMode drops rows whose key is already stored and appends
	// the rest
	IncrementalMode Mode = "incremental"

	// RefreshMode upserts every fetched row
	RefreshMode Mode = "refresh"
)

// ParseMode converts a configuration value into a Mode
func ParseMode(val string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(val))) {
	case IncrementalMode, "":
		return IncrementalMode, nil
	case RefreshMode:
		return RefreshMode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, val)
	}
}

// Store is the persistence used by the orchestrator
type Store interface {
	ExistingKeys(ctx context.Context, tbl schema.TableSchema, ticker string) (data.KeySet, error)
	CountRows(ctx context.Context, table string) (int64, error)
	BulkAppend(ctx context.Context, table string, columns []string, rows [][]any) (library.LoadResult, error)
	BulkUpsert(ctx context.Context, table string, columns, primaryKeys []string, rows [][]any) (library.LoadResult, error)
	RecordRun(ctx context.Context, run *library.Run) error
}

type Config struct {
	// Start and End bound the price history fetched (YYYY-MM-DD)
	Start string
	End   string

	// years dimension range; skipped when YearStart is 0
	YearStart int
	YearEnd   int

	// dates dimension range; skipped when DateStart is zero
	DateStart time.Time
	DateEnd   time.Time

	// Workers is the number of tickers fetched concurrently
	Workers int
	Mode    Mode

	// Tables maps a dataset name to the table it is loaded into. Datasets
	// not listed load into the table of the same name.
	Tables map[string]string
}

type Orchestrator struct {
	catalog *schema.Catalog
	store   Store
	fetcher data.Fetcher
	config  Config
	keys    *library.KeyCache
}

func New(catalog *schema.Catalog, store Store, fetcher data.Fetcher, config Config) *Orchestrator {
	if config.Workers < 1 {
		config.Workers = 1
	}

	if config.Mode == "" {
		config.Mode = IncrementalMode
	}

	return &Orchestrator{
		catalog: catalog,
		store:   store,
		fetcher: fetcher,
		config:  config,
		keys:    library.NewKeyCache(),
	}
}

// tableFor returns the table a dataset is loaded into
func (orchestrator *Orchestrator) tableFor(dataset string) string {
	if name, ok := orchestrator.config.Tables[dataset]; ok {
		return name
	}
	return dataset
}

// Run fetches every ticker, reconciles each dataset with the store and loads
// the combined result one table at a time in dependency order. Failures of a
// single ticker or table are logged and do not stop the run.
func (orchestrator *Orchestrator) Run(ctx context.Context, tickers []string) (*Summary, error) {
	summary := &Summary{
		StartedOn:        time.Now(),
		Mode:             orchestrator.config.Mode,
		TickersRequested: len(tickers),
	}

	fetched := orchestrator.fetchAll(ctx, tickers)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	batches := make(map[string][]*data.Table)
	for idx, raw := range fetched {
		if raw == nil {
			summary.TickersFailed = append(summary.TickersFailed, tickers[idx])
			continue
		}

		summary.TickersFetched = append(summary.TickersFetched, tickers[idx])

		for _, dataset := range data.Datasets {
			tbl, ok := raw.Get(dataset)
			if !ok {
				continue
			}

			tableName := orchestrator.tableFor(dataset)
			tblSchema, ok := orchestrator.catalog.Table(tableName)
			if !ok {
				log.Warn().Str("Table", tableName).Str("Dataset", dataset).Str("Ticker", raw.Ticker).Msg("dataset has no table in the schema; skipping")
				continue
			}

			prepared, err := orchestrator.prepare(ctx, raw.Ticker, dataset, tbl, tblSchema)
			if err != nil {
				log.Error().Err(err).Str("Table", tableName).Str("Ticker", raw.Ticker).Msg("could not prepare dataset; skipping")
				continue
			}

			batches[tableName] = append(batches[tableName], prepared)
		}
	}

	yearsResult, err := orchestrator.coverYears(ctx, batches)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("could not add years referenced by statements")
		summary.FailedTables = append(summary.FailedTables, data.YearsTable)
	case yearsResult != nil:
		summary.Results = append(summary.Results, *yearsResult)
	}

	names := make([]string, 0, len(batches))
	for name := range batches {
		names = append(names, name)
	}

	for _, name := range orchestrator.catalog.DependencyOrder(names) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		tblSchema, _ := orchestrator.catalog.Table(name)
		batch := data.Normalize(data.Concat(batches[name]...), tblSchema)
		if batch.Len() == 0 {
			log.Debug().Str("Table", name).Msg("no new rows")
			continue
		}

		result, err := orchestrator.load(ctx, tblSchema, batch)
		if err != nil {
			log.Error().Err(err).Str("Table", name).Int("NumRows", batch.Len()).Msg("load failed")
			summary.FailedTables = append(summary.FailedTables, name)
			continue
		}

		summary.Results = append(summary.Results, result)

		if result.Mode == library.AppendMode {
			orchestrator.remember(tblSchema, batch)
		}
	}

	summary.FinishedOn = time.Now()

	log.Info().Object("Summary", summary).Msg("run finished")

	if err := orchestrator.store.RecordRun(ctx, summary.Run()); err != nil {
		log.Error().Err(err).Msg("could not record run history")
	}

	return summary, nil
}

// fetchAll fetches every ticker with at most Workers requests in flight.
// Each call fills only its own slot; a nil slot means the fetch failed.
func (orchestrator *Orchestrator) fetchAll(ctx context.Context, tickers []string) []*data.RawDataset {
	results := make([]*data.RawDataset, len(tickers))

	group := errgroup.Group{}
	group.SetLimit(orchestrator.config.Workers)

	for idx, ticker := range tickers {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			raw, err := orchestrator.fetcher.Fetch(ctx, ticker, orchestrator.config.Start, orchestrator.config.End)
			if err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Msg("fetch failed")
				return nil
			}

			results[idx] = raw
			return nil
		})
	}

	// errors are logged above; nothing is returned to the group
	_ = group.Wait()

	return results
}

// prepare turns one ticker's raw dataset into rows ready to load
func (orchestrator *Orchestrator) prepare(ctx context.Context, ticker, dataset string, tbl *data.Table, tblSchema schema.TableSchema) (*data.Table, error) {
	if data.IsStatement(dataset) {
		var err error
		if tbl, err = data.ExtractPeriods(tbl); err != nil {
			return nil, err
		}
	}

	typed, err := data.Coerce(data.Normalize(tbl, tblSchema), tblSchema)
	if err != nil {
		return nil, err
	}

	if orchestrator.config.Mode == RefreshMode {
		return typed, nil
	}

	existing, err := orchestrator.existingKeys(ctx, tblSchema, ticker)
	if err != nil {
		return nil, err
	}

	filtered, err := data.Filter(typed, tblSchema.PrimaryKeys, existing)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("Table", tblSchema.Name).Str("Ticker", ticker).Int("NumFetched", typed.Len()).Int("NumNew", filtered.Len()).Msg("filtered stored rows")

	return filtered, nil
}

// existingKeys reads the stored keys for ticker; tables that are not scoped
// by ticker are read once per run
func (orchestrator *Orchestrator) existingKeys(ctx context.Context, tblSchema schema.TableSchema, ticker string) (data.KeySet, error) {
	if tblSchema.IsTickerScoped() {
		return orchestrator.store.ExistingKeys(ctx, tblSchema, ticker)
	}

	if keys, ok := orchestrator.keys.Get(tblSchema.Name); ok {
		return keys, nil
	}

	keys, err := orchestrator.store.ExistingKeys(ctx, tblSchema, "")
	if err != nil {
		return nil, err
	}

	orchestrator.keys.Set(tblSchema.Name, keys)
	return keys, nil
}

// remember adds rows appended to a table that is not scoped by ticker to the
// cached key set so later reads in the same run see them
func (orchestrator *Orchestrator) remember(tblSchema schema.TableSchema, tbl *data.Table) {
	if tblSchema.IsTickerScoped() || len(tblSchema.PrimaryKeys) == 0 {
		return
	}

	if _, ok := orchestrator.keys.Get(tblSchema.Name); !ok {
		return
	}

	keys, err := data.KeysOf(tbl, tblSchema.PrimaryKeys)
	if err != nil {
		log.Warn().Err(err).Str("Table", tblSchema.Name).Msg("could not cache loaded keys")
		return
	}

	orchestrator.keys.Add(tblSchema.Name, keys)
}

func (orchestrator *Orchestrator) load(ctx context.Context, tblSchema schema.TableSchema, tbl *data.Table) (library.LoadResult, error) {
	if orchestrator.config.Mode == RefreshMode && len(tblSchema.PrimaryKeys) > 0 {
		return orchestrator.store.BulkUpsert(ctx, tblSchema.Name, tbl.Columns, tblSchema.PrimaryKeys, tbl.Values())
	}

	return orchestrator.store.BulkAppend(ctx, tblSchema.Name, tbl.Columns, tbl.Values())
}

// Tickers cleans a list of tickers: symbols are trimmed and upper-cased,
// blanks and repeats are dropped and the original order is kept
func Tickers(tickers []string) []string {
	cleaned := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" || slices.Contains(cleaned, ticker) {
			continue
		}
		cleaned = append(cleaned, ticker)
	}
	return cleaned
}
