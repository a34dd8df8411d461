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
package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/library"
	"github.com/penny-vault/pvfin/pipeline"
	"github.com/penny-vault/pvfin/schema"
)

const financialDDL = `
CREATE TABLE cash_flow (
    ticker TEXT NOT NULL REFERENCES company (ticker),
    year INT NOT NULL,
    quarter INT NOT NULL,
    amount NUMERIC,
    PRIMARY KEY (ticker, year, quarter)
);

CREATE TABLE company (
    ticker TEXT PRIMARY KEY,
    name TEXT
);

CREATE TABLE quarters (
    quarter INT PRIMARY KEY
);

CREATE TABLE years (
    year INT PRIMARY KEY
);

CREATE TABLE dates (
    date DATE PRIMARY KEY,
    year INT
);
`

var errFetch = errors.New("provider unavailable")

func acbDataset(ticker string) *data.RawDataset {
	raw := data.NewRawDataset(ticker)

	profile := data.NewTable("ticker", "name", "exchange")
	profile.AppendRow(data.Value(ticker), data.Value("Asia Commercial Bank"), data.Value("HOSE"))
	raw.Set(data.CompanyProfileKey, profile)

	cashFlow := data.NewTable("ticker", "amount")
	cashFlow.AppendLabeledRow("2023", data.Value(ticker), data.Value(100.0))
	cashFlow.AppendLabeledRow("2023-Q1", data.Value(ticker), data.Value(30.0))
	raw.Set(data.CashFlowKey, cashFlow)

	return raw
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		catalog *schema.Catalog
		store   *memoryStore
		fetcher data.Fetcher
		config  pipeline.Config
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		catalog, err = schema.Parse(strings.NewReader(financialDDL))
		Expect(err).NotTo(HaveOccurred())

		store = newMemoryStore()
		fetcher = data.FetcherFunc(func(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
			if ticker == "BAD" {
				return nil, errFetch
			}
			return acbDataset(ticker), nil
		})

		config = pipeline.Config{
			Start:   "2023-01-01",
			End:     "2023-12-31",
			Workers: 2,
			Tables: map[string]string{
				data.CompanyProfileKey: "company",
			},
		}
	})

	Describe("Run", func() {
		It("loads new rows with referenced tables first", func() {
			summary, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.loadedTables()).To(Equal([]string{"company", "cash_flow"}))

			cashFlow := store.loads[1]
			Expect(cashFlow.Mode).To(Equal(library.AppendMode))
			Expect(cashFlow.Columns).To(Equal([]string{"ticker", "year", "quarter", "amount"}))
			Expect(cashFlow.Rows).To(Equal([][]any{
				{"ACB", int64(2023), int64(5), 100.0},
				{"ACB", int64(2023), int64(1), 30.0},
			}))

			company := store.loads[0]
			Expect(company.Columns).To(Equal([]string{"ticker", "name"}))

			Expect(summary.TickersFetched).To(Equal([]string{"ACB"}))
			Expect(summary.RowsInserted()).To(Equal(int64(3)))
			Expect(summary.Failed()).To(BeFalse())
		})

		It("skips rows that are already stored", func() {
			existing := data.NewKeySet()
			existing.Add("ACB", int64(2023), int64(5))
			store.keys["cash_flow"] = existing

			companies := data.NewKeySet()
			companies.Add("ACB")
			store.keys["company"] = companies

			_, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.loadedTables()).To(Equal([]string{"cash_flow"}))
			Expect(store.loads[0].Rows).To(Equal([][]any{
				{"ACB", int64(2023), int64(1), 30.0},
			}))
		})

		It("upserts every row in refresh mode", func() {
			existing := data.NewKeySet()
			existing.Add("ACB", int64(2023), int64(5))
			store.keys["cash_flow"] = existing

			config.Mode = pipeline.RefreshMode
			_, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.keyReads).To(BeEmpty())
			Expect(store.loads).To(HaveLen(2))
			Expect(store.loads[1].Mode).To(Equal(library.UpsertMode))
			Expect(store.loads[1].Rows).To(HaveLen(2))
		})

		It("continues when a ticker cannot be fetched", func() {
			summary, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB", "BAD", "VCB"})
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.TickersFetched).To(Equal([]string{"ACB", "VCB"}))
			Expect(summary.TickersFailed).To(Equal([]string{"BAD"}))
			Expect(summary.Failed()).To(BeTrue())

			Expect(store.loadedTables()).To(Equal([]string{"company", "cash_flow"}))
			Expect(store.loads[1].Rows).To(HaveLen(4))
		})

		It("merges tickers into one load per table", func() {
			tickers := []string{"ACB", "VCB", "FPT", "HPG", "MWG"}
			_, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, tickers)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.loads).To(HaveLen(2))
			Expect(store.loads[0].Rows).To(HaveLen(len(tickers)))
			Expect(store.loads[1].Rows).To(HaveLen(2 * len(tickers)))
		})

		It("keeps loading other tables when one load fails", func() {
			store.failLoads["company"] = true

			summary, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.loadedTables()).To(Equal([]string{"company", "cash_flow"}))
			Expect(summary.FailedTables).To(Equal([]string{"company"}))
			Expect(summary.Results).To(HaveLen(1))
			Expect(summary.Results[0].Table).To(Equal("cash_flow"))
		})

		It("skips a dataset with a malformed period label", func() {
			fetcher = data.FetcherFunc(func(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
				raw := acbDataset(ticker)
				cashFlow, _ := raw.Get(data.CashFlowKey)
				cashFlow.Labels[1] = "FY23"
				return raw, nil
			})

			_, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.loadedTables()).To(Equal([]string{"company"}))
		})

		It("records the run", func() {
			_, err := pipeline.New(catalog, store, fetcher, config).Run(ctx, []string{"ACB", "BAD"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.runs).To(HaveLen(1))
			run := store.runs[0]
			Expect(run.Mode).To(Equal("incremental"))
			Expect(run.TickersRequested).To(Equal(2))
			Expect(run.TickersFetched).To(Equal(1))
			Expect(run.RowsInserted).To(Equal(int64(3)))
			Expect(run.FinishedOn).NotTo(BeTemporally("<", run.StartedOn))
		})

		It("stops when the context is canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := pipeline.New(catalog, store, fetcher, config).Run(canceled, []string{"ACB"})
			Expect(err).To(MatchError(context.Canceled))
			Expect(store.loads).To(BeEmpty())
		})
	})

	Describe("SeedDimensions", func() {
		BeforeEach(func() {
			config.YearStart = 2022
			config.YearEnd = 2024
			config.DateStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			config.DateEnd = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
		})

		It("fills empty dimension tables", func() {
			results, err := pipeline.New(catalog, store, fetcher, config).SeedDimensions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			Expect(store.loadedTables()).To(Equal([]string{"quarters", "years", "dates"}))
			Expect(store.loads[0].Rows).To(HaveLen(5))
			Expect(store.loads[1].Rows).To(Equal([][]any{{int64(2022)}, {int64(2023)}, {int64(2024)}}))
			Expect(store.loads[2].Columns).To(Equal([]string{"date", "year"}))
			Expect(store.loads[2].Rows[0]).To(Equal([]any{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(2024)}))

			for _, call := range store.loads {
				Expect(call.Mode).To(Equal(library.AppendMode))
			}
		})

		It("does not write a table that is already seeded", func() {
			store.counts["quarters"] = 5
			store.counts["years"] = 3
			store.counts["dates"] = 3

			results, err := pipeline.New(catalog, store, fetcher, config).SeedDimensions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(store.loads).To(BeEmpty())
		})

		It("upserts a partially filled table", func() {
			store.counts["quarters"] = 5
			store.counts["years"] = 1
			store.counts["dates"] = 3

			_, err := pipeline.New(catalog, store, fetcher, config).SeedDimensions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.loads).To(HaveLen(1))
			Expect(store.loads[0].Table).To(Equal("years"))
			Expect(store.loads[0].Mode).To(Equal(library.UpsertMode))
		})

		It("skips ranges that are not configured", func() {
			config.YearStart = 0
			config.DateStart = time.Time{}

			_, err := pipeline.New(catalog, store, fetcher, config).SeedDimensions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.loadedTables()).To(Equal([]string{"quarters"}))
		})

		It("reports load failures", func() {
			store.failLoads["years"] = true

			results, err := pipeline.New(catalog, store, fetcher, config).SeedDimensions(ctx)
			Expect(err).To(MatchError(errLoad))
			Expect(results).To(HaveLen(2))
		})
	})
})

var _ = DescribeTable("ParseMode",
	func(val string, expected pipeline.Mode, ok bool) {
		mode, err := pipeline.ParseMode(val)
		if !ok {
			Expect(err).To(MatchError(pipeline.ErrUnknownMode))
			return
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(expected))
	},
	Entry("default", "", pipeline.IncrementalMode, true),
	Entry("incremental", "incremental", pipeline.IncrementalMode, true),
	Entry("refresh", " Refresh ", pipeline.RefreshMode, true),
	Entry("unknown", "merge", pipeline.Mode(""), false),
)

var _ = Describe("Tickers", func() {
	It("cleans the ticker list", func() {
		Expect(pipeline.Tickers([]string{" acb", "VCB", "", "ACB", "fpt "})).To(Equal([]string{"ACB", "VCB", "FPT"}))
	})
})

const statementDDL = `
CREATE TABLE years (
    year INT PRIMARY KEY
);

CREATE TABLE quarters (
    quarter INT PRIMARY KEY
);

CREATE TABLE cash_flow (
    ticker TEXT NOT NULL,
    year INT NOT NULL,
    quarter INT NOT NULL,
    amount NUMERIC,
    CONSTRAINT cash_flow_pk
        PRIMARY KEY (ticker, year, quarter),
    CONSTRAINT cash_flow_year_fkey
        FOREIGN KEY (year) REFERENCES years (year),
    CONSTRAINT cash_flow_quarter_fkey
        FOREIGN KEY (quarter) REFERENCES quarters (quarter)
);
`

var _ = Describe("Statement years", func() {
	var (
		ctx     context.Context
		catalog *schema.Catalog
		store   *memoryStore
		fetcher data.Fetcher
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		catalog, err = schema.Parse(strings.NewReader(statementDDL))
		Expect(err).NotTo(HaveOccurred())

		store = newMemoryStore()
		seeded := data.NewKeySet()
		for year := int64(2016); year <= 2026; year++ {
			seeded.Add(year)
		}
		store.keys["years"] = seeded

		fetcher = data.FetcherFunc(func(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
			raw := data.NewRawDataset(ticker)
			cashFlow := data.NewTable("ticker", "amount")
			cashFlow.AppendLabeledRow("2010", data.Value(ticker), data.Value(80.0))
			cashFlow.AppendLabeledRow("2012-Q3", data.Value(ticker), data.Value(20.0))
			cashFlow.AppendLabeledRow("2023", data.Value(ticker), data.Value(100.0))
			raw.Set(data.CashFlowKey, cashFlow)
			return raw, nil
		})
	})

	It("adds years older than the seeded range before loading statements", func() {
		summary, err := pipeline.New(catalog, store, fetcher, pipeline.Config{Workers: 1}).Run(ctx, []string{"ACB"})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.loadedTables()).To(Equal([]string{"years", "cash_flow"}))
		Expect(store.loads[0].Mode).To(Equal(library.AppendMode))
		Expect(store.loads[0].Rows).To(Equal([][]any{
			{int64(2010)}, {int64(2011)}, {int64(2012)}, {int64(2013)}, {int64(2014)}, {int64(2015)},
		}))
		Expect(store.loads[1].Rows).To(HaveLen(3))

		Expect(summary.Failed()).To(BeFalse())
		Expect(summary.RowsInserted()).To(Equal(int64(9)))
	})

	It("does not touch the years table when every year is stored", func() {
		fetcher = data.FetcherFunc(func(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
			raw := data.NewRawDataset(ticker)
			cashFlow := data.NewTable("ticker", "amount")
			cashFlow.AppendLabeledRow("2023", data.Value(ticker), data.Value(100.0))
			raw.Set(data.CashFlowKey, cashFlow)
			return raw, nil
		})

		_, err := pipeline.New(catalog, store, fetcher, pipeline.Config{Workers: 1}).Run(ctx, []string{"ACB"})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.loadedTables()).To(Equal([]string{"cash_flow"}))
	})

	It("reads the stored years once for every ticker", func() {
		_, err := pipeline.New(catalog, store, fetcher, pipeline.Config{Workers: 2}).Run(ctx, []string{"ACB", "MBB"})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.keyReads["years"]).To(Equal(1))
		Expect(store.loads[0].Table).To(Equal("years"))
		Expect(store.loads[0].Rows).To(HaveLen(6))
	})

	It("reports the years table when adding years fails", func() {
		store.failLoads["years"] = true

		summary, err := pipeline.New(catalog, store, fetcher, pipeline.Config{Workers: 1}).Run(ctx, []string{"ACB"})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.FailedTables).To(ContainElement("years"))
	})
})
