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
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/iancoleman/strcase"
	"github.com/goccy/go-json"
	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/pkginfo"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	tcbsBaseURL          = "https://apipubaws.tcbs.com.vn"
	listingURL           = "https://trading.vietcap.com.vn/data-mt/graphql"
	tcbsDefaultRateLimit = 60
	defaultRetryAfter    = 60 * time.Second
)

type tcbsBar struct {
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      int64   `json:"volume"`
	TradingDate string  `json:"tradingDate"`
}

type tcbsBars struct {
	Ticker string     `json:"ticker"`
	Data   []*tcbsBar `json:"data"`
}

// TCBS retrieves company, statement and price data from the TCBS public
// analysis API. The client owns its rate limiter; every request waits on it.
type TCBS struct {
	client     *resty.Client
	limiter    *rate.Limiter
	listingURL string
}

// NewTCBS creates a TCBS client
func NewTCBS(cfg Config) Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = tcbsBaseURL
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = tcbsDefaultRateLimit
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", pkginfo.UserAgent()).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	listing := cfg.ListingURL
	if listing == "" {
		listing = listingURL
	}

	return &TCBS{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(float64(rateLimit)/float64(61)), 1),
		listingURL: listing,
	}
}

func (tcbs *TCBS) Name() string {
	return "tcbs"
}

// FetchProfile returns a single-row table describing the company
func (tcbs *TCBS) FetchProfile(ctx context.Context, ticker string) (*data.Table, error) {
	body, err := tcbs.get(ctx, fmt.Sprintf("/tcanalysis/v1/ticker/%s/overview", ticker), nil)
	if err != nil {
		return nil, err
	}

	result := gjson.ParseBytes(body)
	if !result.IsObject() {
		return nil, fmt.Errorf("%w: company overview for %s is not an object", ErrUnexpectedBody, ticker)
	}

	tbl := tableFromObjects([]gjson.Result{result}, nil)
	setTicker(tbl, ticker)

	return tbl, nil
}

// FetchStatement returns every available report of the statement for the
// given period. Rows are labeled "2023" for annual and "2023-Q1" for
// quarterly reports.
func (tcbs *TCBS) FetchStatement(ctx context.Context, ticker string, statement Statement, period Period) (*data.Table, error) {
	yearly := "0"
	if period == Yearly {
		yearly = "1"
	}

	body, err := tcbs.get(ctx, fmt.Sprintf("/tcanalysis/v1/finance/%s/%s", ticker, statement), map[string]string{
		"yearly": yearly,
		"isAll":  "true",
	})
	if err != nil {
		return nil, err
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: %s %s for %s is not an array", ErrUnexpectedBody, period, statement, ticker)
	}

	tbl := tableFromObjects(result.Array(), func(obj gjson.Result) string {
		year := int(obj.Get("year").Int())
		quarter := int(obj.Get("quarter").Int())
		if period == Yearly || quarter < 1 || quarter > 4 {
			quarter = data.AnnualQuarter
		}
		return data.PeriodLabel(year, quarter)
	})
	setTicker(tbl, ticker)

	log.Debug().Str("Ticker", ticker).Str("Statement", string(statement)).Stringer("Period", period).Int("NumRows", tbl.Len()).Msg("fetched statement")

	return tbl, nil
}

// FetchPriceHistory returns daily bars from start through end (YYYY-MM-DD)
func (tcbs *TCBS) FetchPriceHistory(ctx context.Context, ticker, start, end string) (*data.Table, error) {
	startDate, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}

	endDate, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}

	body, err := tcbs.get(ctx, "/stock-insight/v1/stock/bars-long-term", map[string]string{
		"ticker":     ticker,
		"type":       "stock",
		"resolution": "D",
		"from":       strconv.FormatInt(startDate.Unix(), 10),
		"to":         strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix()-1, 10),
	})
	if err != nil {
		return nil, err
	}

	bars := tcbsBars{}
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedBody, err)
	}

	tbl := data.NewTable("ticker", "date", "open", "high", "low", "close", "volume")
	for _, bar := range bars.Data {
		date := bar.TradingDate
		if len(date) > len(time.DateOnly) {
			date = date[:len(time.DateOnly)]
		}

		tbl.AppendRow(data.Value(ticker), data.Value(date), data.Value(bar.Open), data.Value(bar.High),
			data.Value(bar.Low), data.Value(bar.Close), data.Value(bar.Volume))
	}

	return tbl, nil
}

func (tcbs *TCBS) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	if err := tcbs.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := tcbs.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}

	return checkResponse(resp, path)
}

func (tcbs *TCBS) post(ctx context.Context, url string, body any) ([]byte, error) {
	if err := tcbs.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := tcbs.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, err
	}

	return checkResponse(resp, url)
}

func checkResponse(resp *resty.Response, path string) ([]byte, error) {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	}

	if resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: %d %s", ErrInvalidStatusCode, resp.StatusCode(), path)
	}

	return resp.Body(), nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(header); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
		return 0
	}

	return defaultRetryAfter
}

// tableFromObjects builds a table from JSON objects keeping the key order of
// the first object that introduced each column
func tableFromObjects(objects []gjson.Result, label func(gjson.Result) string) *data.Table {
	tbl := data.NewTable()
	for _, obj := range objects {
		obj.ForEach(func(key, _ gjson.Result) bool {
			col := toSnake(key.String())
			if tbl.ColumnIndex(col) < 0 {
				tbl.Columns = append(tbl.Columns, col)
			}
			return true
		})
	}

	for _, obj := range objects {
		cells := make([]data.Cell, len(tbl.Columns))
		obj.ForEach(func(key, value gjson.Result) bool {
			cells[tbl.ColumnIndex(toSnake(key.String()))] = cellFromJSON(value)
			return true
		})

		rowLabel := ""
		if label != nil {
			rowLabel = label(obj)
		}
		tbl.AppendLabeledRow(rowLabel, cells...)
	}

	return tbl
}

func cellFromJSON(value gjson.Result) data.Cell {
	switch value.Type {
	case gjson.Null:
		return data.Null()
	case gjson.True, gjson.False:
		return data.Value(value.Bool())
	case gjson.Number:
		return data.Value(value.Float())
	case gjson.String:
		return data.Value(value.String())
	default:
		return data.Value(value.Raw)
	}
}

// setTicker makes sure the table has a ticker column
func setTicker(tbl *data.Table, ticker string) {
	if tbl.ColumnIndex("ticker") >= 0 {
		return
	}

	if idx := tbl.ColumnIndex("symbol"); idx >= 0 {
		tbl.Columns[idx] = "ticker"
		return
	}

	tbl.Columns = append([]string{"ticker"}, tbl.Columns...)
	for idx, row := range tbl.Rows {
		tbl.Rows[idx] = append([]data.Cell{data.Value(ticker)}, row...)
	}
}

// columnAliases names provider fields that do not split cleanly into words
var columnAliases = map[string]string{
	"industryIDv2": "industry_idv2",
}

// toSnake converts camelCase field names to snake_case
func toSnake(name string) string {
	if alias, ok := columnAliases[name]; ok {
		return alias
	}
	return strcase.ToSnake(name)
}
