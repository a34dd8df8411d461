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
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/library"
	"github.com/rs/zerolog/log"
)

// dimensions builds the contents of each configured dimension table
func (orchestrator *Orchestrator) dimensions() map[string]*data.Table {
	dims := map[string]*data.Table{
		data.QuartersTable: data.Quarters(),
	}

	cfg := orchestrator.config
	if cfg.YearStart > 0 && cfg.YearEnd >= cfg.YearStart {
		dims[data.YearsTable] = data.Years(cfg.YearStart, cfg.YearEnd)
	}

	if !cfg.DateStart.IsZero() && !cfg.DateEnd.Before(cfg.DateStart) {
		dims[data.DatesTable] = data.Dates(cfg.DateStart, cfg.DateEnd)
	}

	return dims
}

// SeedDimensions fills the quarters, years and dates tables. A table whose
// row count already matches its expected contents is left alone; an empty
// table is appended to and a partially filled one is upserted. Tables that
// are not in the schema are skipped.
func (orchestrator *Orchestrator) SeedDimensions(ctx context.Context) ([]library.LoadResult, error) {
	dims := orchestrator.dimensions()

	names := make([]string, 0, len(dims))
	for _, name := range []string{data.QuartersTable, data.YearsTable, data.DatesTable} {
		if _, ok := dims[name]; !ok {
			log.Debug().Str("Table", name).Msg("dimension range not configured; skipping")
			continue
		}

		if _, ok := orchestrator.catalog.Table(name); !ok {
			log.Debug().Str("Table", name).Msg("dimension table not in schema; skipping")
			continue
		}

		names = append(names, name)
	}

	results := []library.LoadResult{}
	var errs []error

	for _, name := range orchestrator.catalog.DependencyOrder(names) {
		tblSchema, _ := orchestrator.catalog.Table(name)

		tbl, err := data.Coerce(data.Normalize(dims[name], tblSchema), tblSchema)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", name, err))
			continue
		}

		expected := int64(tbl.Len())
		count, err := orchestrator.store.CountRows(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("count %s: %w", name, err))
			continue
		}

		if count == expected {
			log.Info().Str("Table", name).Int64("NumRows", count).Msg("dimension table already seeded")
			continue
		}

		var result library.LoadResult
		switch {
		case count == 0:
			result, err = orchestrator.store.BulkAppend(ctx, name, tbl.Columns, tbl.Values())
		case len(tblSchema.PrimaryKeys) > 0:
			result, err = orchestrator.store.BulkUpsert(ctx, name, tbl.Columns, tblSchema.PrimaryKeys, tbl.Values())
		default:
			err = fmt.Errorf("%w: %s is partially filled", library.ErrNoPrimaryKey, name)
		}

		if err != nil {
			log.Error().Err(err).Str("Table", name).Int("NumRows", tbl.Len()).Msg("could not seed dimension table")
			errs = append(errs, err)
			continue
		}

		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// coverYears appends the years referenced by rows of batches that are not in
// the years table yet. Statements reach back further than the seeded range
// and every statement table has a foreign key on years.
func (orchestrator *Orchestrator) coverYears(ctx context.Context, batches map[string][]*data.Table) (*library.LoadResult, error) {
	yearsSchema, ok := orchestrator.catalog.Table(data.YearsTable)
	if !ok || !slices.Equal(yearsSchema.PrimaryKeys, []string{"year"}) {
		return nil, nil
	}

	var first, last int64
	for name, tables := range batches {
		tblSchema, _ := orchestrator.catalog.Table(name)
		if name == data.YearsTable || !slices.Contains(tblSchema.References, data.YearsTable) {
			continue
		}

		for _, tbl := range tables {
			col := tbl.ColumnIndex("year")
			if col < 0 {
				continue
			}

			for _, row := range tbl.Rows {
				year, ok := row[col].Any().(int64)
				if !ok {
					continue
				}
				if first == 0 || year < first {
					first = year
				}
				if year > last {
					last = year
				}
			}
		}
	}

	if first == 0 {
		return nil, nil
	}

	candidates, err := data.Coerce(data.Normalize(data.Years(int(first), int(last)), yearsSchema), yearsSchema)
	if err != nil {
		return nil, err
	}

	existing, err := orchestrator.existingKeys(ctx, yearsSchema, "")
	if err != nil {
		return nil, err
	}

	missing, err := data.Filter(candidates, yearsSchema.PrimaryKeys, existing)
	if err != nil {
		return nil, err
	}

	if missing.Len() == 0 {
		return nil, nil
	}

	log.Info().Int64("FirstYear", first).Int64("LastYear", last).Int("NumMissing", missing.Len()).Msg("adding years referenced by statements")

	result, err := orchestrator.store.BulkAppend(ctx, data.YearsTable, missing.Columns, missing.Values())
	if err != nil {
		return nil, fmt.Errorf("add missing years: %w", err)
	}

	orchestrator.remember(yearsSchema, missing)

	return &result, nil
}
