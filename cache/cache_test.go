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
package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvfin/cache"
	"github.com/penny-vault/pvfin/data"
)

func fullDataset(ticker string) *data.RawDataset {
	raw := data.NewRawDataset(ticker)
	for _, dataset := range data.Datasets {
		tbl := data.NewTable("ticker", "value")
		if data.IsStatement(dataset) {
			tbl.AppendLabeledRow("2022", data.Value(ticker), data.Value(1.5))
			tbl.AppendLabeledRow("2023-Q1", data.Value(ticker), data.Null())
		} else {
			tbl.AppendRow(data.Value(ticker), data.Value(int64(42)))
		}
		raw.Set(dataset, tbl)
	}
	return raw
}

var _ = Describe("Fetcher", func() {
	var (
		ctx   context.Context
		root  string
		calls int
		next  data.Fetcher
		asOf  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		calls = 0
		asOf = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
		next = data.FetcherFunc(func(ctx context.Context, ticker, start, end string) (*data.RawDataset, error) {
			calls++
			return fullDataset(ticker), nil
		})
	})

	It("lays files out by ticker and as-of date", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Next: next}
		Expect(fetcher.Dir("ACB")).To(Equal(filepath.Join(root, "ACB", "2024-06-03")))

		_, err := fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(root, "ACB", "2024-06-03", "ACB_cash_flow.csv")).To(BeAnExistingFile())
		Expect(fetcher.Complete("ACB")).To(BeTrue())
	})

	It("serves a complete directory without fetching", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Next: next}

		_, err := fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())

		raw, err := fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(raw.NumPresent()).To(Equal(len(data.Datasets)))

		cashFlow, ok := raw.Get(data.CashFlowKey)
		Expect(ok).To(BeTrue())
		Expect(cashFlow.Columns).To(Equal([]string{"ticker", "value"}))
		Expect(cashFlow.Labels).To(Equal([]string{"2022", "2023-Q1"}))
		Expect(cashFlow.Get(0, "value").Any()).To(Equal("1.5"))
		Expect(cashFlow.Get(1, "value").IsNull()).To(BeTrue())

		prices, ok := raw.Get(data.DailyPriceKey)
		Expect(ok).To(BeTrue())
		Expect(prices.Get(0, "value").Any()).To(Equal("42"))
	})

	It("refetches an incomplete directory", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Next: next}
		_, err := fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(filepath.Join(fetcher.Dir("ACB"), "ACB_ratios.csv"))).To(Succeed())
		Expect(fetcher.Complete("ACB")).To(BeFalse())

		_, err = fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
		Expect(fetcher.Complete("ACB")).To(BeTrue())
	})

	It("does not count unrelated files toward completeness", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Next: next}
		dir := fetcher.Dir("ACB")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		for _, name := range []string{"a.csv", "b.csv", "c.csv", "d.csv", "e.csv", "f.csv"} {
			Expect(os.WriteFile(filepath.Join(dir, name), []byte("label\n"), 0o644)).To(Succeed())
		}

		Expect(fetcher.Complete("ACB")).To(BeFalse())
	})

	It("serves partial data offline", func() {
		raw := fullDataset("VCB")
		raw.Set(data.DailyPriceKey, nil)

		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Offline: true}
		Expect(fetcher.Write(raw)).To(Succeed())

		cached, err := fetcher.Fetch(ctx, "VCB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())
		Expect(cached.NumPresent()).To(Equal(5))
	})

	It("reports a miss offline when nothing is cached", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Offline: true}
		_, err := fetcher.Fetch(ctx, "FPT", "2024-01-01", "2024-06-03")
		Expect(err).To(MatchError(cache.ErrCacheMiss))
	})

	It("lists cached files relative to the root", func() {
		fetcher := &cache.Fetcher{Root: root, AsOf: asOf, Next: next}
		_, err := fetcher.Fetch(ctx, "ACB", "2024-01-01", "2024-06-03")
		Expect(err).NotTo(HaveOccurred())

		files, err := cache.Files(root)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(cache.ExpectedFiles))
		Expect(files).To(ContainElement(filepath.Join("ACB", "2024-06-03", "ACB_daily_price.csv")))
	})
})
