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
	"fmt"

	"github.com/penny-vault/pvfin/data"
	"github.com/rs/zerolog/log"
)

// Adapter turns a provider client into a data.Fetcher that returns every
// logical dataset for a ticker
type Adapter struct {
	client Client
}

func NewAdapter(client Client) *Adapter {
	return &Adapter{
		client: client,
	}
}

// Fetch retrieves the company profile, each financial statement (annual and
// quarterly reports combined) and the daily price history. A dataset that
// cannot be fetched is logged and left absent; an error is returned only
// when nothing could be fetched.
func (adapter *Adapter) Fetch(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
	raw := data.NewRawDataset(ticker)
	logger := log.With().Str("Ticker", ticker).Str("Provider", adapter.client.Name()).Logger()

	for _, dataset := range data.Datasets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			tbl *data.Table
			err error
		)

		switch {
		case dataset == data.CompanyProfileKey:
			tbl, err = adapter.client.FetchProfile(ctx, ticker)
		case dataset == data.DailyPriceKey:
			tbl, err = adapter.client.FetchPriceHistory(ctx, ticker, start, end)
		case data.IsStatement(dataset):
			tbl, err = adapter.fetchStatement(ctx, ticker, statements[dataset])
		}

		if err != nil {
			logger.Error().Err(err).Str("Dataset", dataset).Msg("could not fetch dataset")
			raw.Set(dataset, nil)
			continue
		}

		raw.Set(dataset, tbl)
	}

	if raw.NumPresent() == 0 {
		return nil, fmt.Errorf("%w: %s", data.ErrNoDatasets, ticker)
	}

	logger.Info().Object("Dataset", raw).Msg("fetched ticker")

	return raw, nil
}

func (adapter *Adapter) fetchStatement(ctx context.Context, ticker string, statement Statement) (*data.Table, error) {
	annual, err := adapter.client.FetchStatement(ctx, ticker, statement, Yearly)
	if err != nil {
		return nil, err
	}

	quarterly, err := adapter.client.FetchStatement(ctx, ticker, statement, Quarterly)
	if err != nil {
		return nil, err
	}

	return data.Concat(annual, quarterly), nil
}
