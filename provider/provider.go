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
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/penny-vault/pvfin/data"
)

var (
	ErrInvalidStatusCode = errors.New("provider returned an invalid HTTP status code")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrUnexpectedBody    = errors.New("unexpected response body")
)

// Statement identifies a periodic financial report
type Statement string

const (
	BalanceSheet    Statement = "balancesheet"
	IncomeStatement Statement = "incomestatement"
	CashFlow        Statement = "cashflow"
	Ratios          Statement = "financialratio"
)

// Period selects annual or quarterly reports
type Period int

const (
	Quarterly Period = iota
	Yearly
)

func (p Period) String() string {
	if p == Yearly {
		return "yearly"
	}
	return "quarterly"
}

// statements maps the logical dataset name to the report it is built from
var statements = map[string]Statement{
	data.CashFlowKey:        CashFlow,
	data.BalanceSheetKey:    BalanceSheet,
	data.IncomeStatementKey: IncomeStatement,
	data.RatiosKey:          Ratios,
}

// Client fetches raw tables from a market-data provider. Statement tables
// label each row with its report period ("2023" or "2023-Q1"). Column names
// are snake_case.
type Client interface {
	Name() string
	FetchProfile(ctx context.Context, ticker string) (*data.Table, error)
	FetchStatement(ctx context.Context, ticker string, statement Statement, period Period) (*data.Table, error)
	FetchPriceHistory(ctx context.Context, ticker, start, end string) (*data.Table, error)
	FetchListing(ctx context.Context) ([]*Listing, error)
}

// Config holds the settings shared by provider clients
type Config struct {
	BaseURL string

	// ListingURL is the endpoint listing every symbol with its industry
	ListingURL string

	// RateLimit is the maximum number of requests per minute
	RateLimit int
	Timeout   time.Duration
}

// Factory creates a configured client
type Factory func(Config) Client

// Map lists every supported provider by name
var Map = map[string]Factory{
	"tcbs": NewTCBS,
}

// New creates the named provider client
func New(name string, cfg Config) (Client, error) {
	factory, ok := Map[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(cfg), nil
}

// RateLimitError is returned when the provider rejects a request because too
// many were made; RetryAfter is how long the provider asked us to wait
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limit exceeded; retry after %s", e.RetryAfter)
}
