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
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const listingQuery = `{
  CompaniesListingInfo {
    ticker
    organName
    enOrganName
    icbName2
    enIcbName2
    icbName3
    enIcbName3
    icbName4
    enIcbName4
    comTypeCode
  }
}`

// Listing is a listed symbol with its ICB industry classification
type Listing struct {
	Ticker      string
	OrganName   string
	EnOrganName string
	IcbName2    string
	EnIcbName2  string
	IcbName3    string
	EnIcbName3  string
	IcbName4    string
	EnIcbName4  string
	ComTypeCode string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// FetchListing returns every listed symbol with its industry
func (tcbs *TCBS) FetchListing(ctx context.Context) ([]*Listing, error) {
	body, err := tcbs.post(ctx, tcbs.listingURL, &graphQLRequest{
		Query:     listingQuery,
		Variables: map[string]any{},
	})
	if err != nil {
		return nil, err
	}

	companies := gjson.GetBytes(body, "data.CompaniesListingInfo")
	if !companies.IsArray() {
		return nil, fmt.Errorf("%w: listing has no companies", ErrUnexpectedBody)
	}

	listings := make([]*Listing, 0, len(companies.Array()))
	companies.ForEach(func(_, company gjson.Result) bool {
		ticker := company.Get("ticker").String()
		if ticker == "" {
			return true
		}

		listings = append(listings, &Listing{
			Ticker:      ticker,
			OrganName:   company.Get("organName").String(),
			EnOrganName: company.Get("enOrganName").String(),
			IcbName2:    company.Get("icbName2").String(),
			EnIcbName2:  company.Get("enIcbName2").String(),
			IcbName3:    company.Get("icbName3").String(),
			EnIcbName3:  company.Get("enIcbName3").String(),
			IcbName4:    company.Get("icbName4").String(),
			EnIcbName4:  company.Get("enIcbName4").String(),
			ComTypeCode: company.Get("comTypeCode").String(),
		})
		return true
	})

	log.Debug().Int("NumListings", len(listings)).Msg("fetched listing")

	return listings, nil
}

// IndustryTickers returns the tickers whose level 3 industry matches
// industry in either language, ignoring case, in listing order
func IndustryTickers(listings []*Listing, industry string) []string {
	industry = strings.TrimSpace(industry)

	tickers := make([]string, 0)
	for _, listing := range listings {
		if strings.EqualFold(listing.IcbName3, industry) || strings.EqualFold(listing.EnIcbName3, industry) {
			tickers = append(tickers, listing.Ticker)
		}
	}

	return tickers
}
