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

// Package cache keeps raw provider datasets on disk as CSV files so repeated
// runs on the same day do not hit the provider again.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/penny-vault/pvfin/data"
	"github.com/rs/zerolog/log"
)

const (
	// ExpectedFiles is the number of dataset files in a complete directory
	ExpectedFiles = 6

	labelColumn = "label"
)

var (
	ErrCacheMiss = errors.New("ticker is not in the cache")
)

// Fetcher serves datasets from <Root>/<ticker>/<as-of>/<ticker>_<dataset>.csv
// and falls back to Next when the directory is incomplete. Fetched datasets
// are written back to the cache.
type Fetcher struct {
	Root string
	AsOf time.Time
	Next data.Fetcher

	// Offline serves whatever is on disk and never calls Next
	Offline bool
}

// New creates a cache in root dated today
func New(root string, next data.Fetcher) *Fetcher {
	return &Fetcher{
		Root: root,
		AsOf: time.Now(),
		Next: next,
	}
}

// Dir returns the cache directory for ticker
func (cache *Fetcher) Dir(ticker string) string {
	return filepath.Join(cache.Root, ticker, cache.AsOf.Format(time.DateOnly))
}

func (cache *Fetcher) path(ticker, dataset string) string {
	return filepath.Join(cache.Dir(ticker), fmt.Sprintf("%s_%s.csv", ticker, dataset))
}

// Complete reports whether every dataset of ticker is cached
func (cache *Fetcher) Complete(ticker string) bool {
	count := 0
	for _, dataset := range data.Datasets {
		if info, err := os.Stat(cache.path(ticker, dataset)); err == nil && info.Mode().IsRegular() {
			count++
		}
	}
	return count == ExpectedFiles
}

// Fetch implements data.Fetcher
func (cache *Fetcher) Fetch(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
	if cache.Offline || cache.Complete(ticker) {
		raw, err := cache.Read(ticker)
		if err != nil {
			return nil, err
		}

		if raw.NumPresent() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrCacheMiss, ticker)
		}

		log.Debug().Str("Ticker", ticker).Str("Dir", cache.Dir(ticker)).Msg("read ticker from cache")
		return raw, nil
	}

	if cache.Next == nil {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, ticker)
	}

	raw, err := cache.Next.Fetch(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	if err := cache.Write(raw); err != nil {
		log.Warn().Err(err).Str("Ticker", ticker).Msg("could not write ticker to cache")
	}

	return raw, nil
}

// Read loads every cached dataset of ticker; missing files leave the
// dataset absent
func (cache *Fetcher) Read(ticker string) (*data.RawDataset, error) {
	raw := data.NewRawDataset(ticker)
	for _, dataset := range data.Datasets {
		tbl, err := readTable(cache.path(ticker, dataset))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				raw.Set(dataset, nil)
				continue
			}
			return nil, err
		}
		raw.Set(dataset, tbl)
	}
	return raw, nil
}

// Write saves every present dataset of raw
func (cache *Fetcher) Write(raw *data.RawDataset) error {
	if err := os.MkdirAll(cache.Dir(raw.Ticker), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	for _, dataset := range data.Datasets {
		tbl, ok := raw.Get(dataset)
		if !ok {
			continue
		}

		if err := writeTable(cache.path(raw.Ticker, dataset), tbl); err != nil {
			return err
		}
	}

	return nil
}

// Files lists every cached CSV file below root, relative to root
func Files(root string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})

	sort.Strings(files)
	return files, err
}

func writeTable(fn string, tbl *data.Table) error {
	fh, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer fh.Close()

	writer := gocsv.DefaultCSVWriter(fh)
	if err := writer.Write(append([]string{labelColumn}, tbl.Columns...)); err != nil {
		return err
	}

	for idx, row := range tbl.Rows {
		record := make([]string, 0, len(row)+1)
		record = append(record, tbl.Label(idx))
		for _, cell := range row {
			record = append(record, cell.String())
		}

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("write cache file %s: %w", fn, err)
	}

	return fh.Close()
}

// readTable loads a cached dataset. Empty fields become null; every other
// value stays text and is typed later against the table schema.
func readTable(fn string) (*data.Table, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	records, err := gocsv.DefaultCSVReader(fh).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read cache file %s: %w", fn, err)
	}

	if len(records) == 0 {
		return data.NewTable(), nil
	}

	header := records[0]
	labeled := len(header) > 0 && header[0] == labelColumn
	if labeled {
		header = header[1:]
	}

	tbl := data.NewTable(header...)
	for _, record := range records[1:] {
		label := ""
		if labeled && len(record) > 0 {
			label = record[0]
			record = record[1:]
		}

		cells := make([]data.Cell, len(record))
		for idx, field := range record {
			if field == "" {
				cells[idx] = data.Null()
				continue
			}
			cells[idx] = data.Value(field)
		}
		tbl.AppendLabeledRow(label, cells...)
	}

	return tbl, nil
}
