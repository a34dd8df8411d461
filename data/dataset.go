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
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog"
)

// Logical dataset names returned by a fetcher
const (
	CompanyProfileKey  = "company_profile"
	CashFlowKey        = "cash_flow"
	BalanceSheetKey    = "balance_sheet"
	IncomeStatementKey = "income_statement"
	RatiosKey          = "ratios"
	DailyPriceKey      = "daily_price"
)

var (
	ErrNoDatasets = errors.New("no datasets were returned")
)

// Datasets lists every logical dataset in the order it is fetched
var Datasets = []string{
	CompanyProfileKey,
	CashFlowKey,
	BalanceSheetKey,
	IncomeStatementKey,
	RatiosKey,
	DailyPriceKey,
}

// IsStatement reports whether the dataset is a periodic financial statement
// whose rows are labeled with the report period
func IsStatement(dataset string) bool {
	return slices.Contains([]string{CashFlowKey, BalanceSheetKey, IncomeStatementKey, RatiosKey}, dataset)
}

// RawDataset is a single ticker's fetch result keyed by logical dataset name.
// A nil table means the dataset could not be fetched.
type RawDataset struct {
	Ticker string
	Tables map[string]*Table
}

// NewRawDataset creates an empty result for ticker
func NewRawDataset(ticker string) *RawDataset {
	return &RawDataset{
		Ticker: ticker,
		Tables: make(map[string]*Table, len(Datasets)),
	}
}

// Get returns the named dataset and whether it is present
func (raw *RawDataset) Get(dataset string) (*Table, bool) {
	if raw == nil {
		return nil, false
	}
	tbl, ok := raw.Tables[dataset]
	return tbl, ok && tbl != nil
}

// Set stores the named dataset
func (raw *RawDataset) Set(dataset string, tbl *Table) {
	raw.Tables[dataset] = tbl
}

// NumPresent returns how many datasets were fetched
func (raw *RawDataset) NumPresent() int {
	if raw == nil {
		return 0
	}

	count := 0
	for _, tbl := range raw.Tables {
		if tbl != nil {
			count++
		}
	}
	return count
}

func (raw *RawDataset) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", raw.Ticker)
	e.Int("NumDatasets", raw.NumPresent())
	for _, name := range Datasets {
		if tbl, ok := raw.Get(name); ok {
			e.Int(name, tbl.Len())
		}
	}
}

// Fetcher retrieves every dataset for a ticker between start and end
// (inclusive ISO dates)
type Fetcher interface {
	Fetch(ctx context.Context, ticker, start, end string) (*RawDataset, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, ticker, start, end string) (*RawDataset, error)

func (f FetcherFunc) Fetch(ctx context.Context, ticker, start, end string) (*RawDataset, error) {
	return f(ctx, ticker, start, end)
}
