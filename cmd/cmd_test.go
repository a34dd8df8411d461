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
package cmd

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvfin/db"
	"github.com/penny-vault/pvfin/library"
	"github.com/penny-vault/pvfin/pipeline"
	"github.com/penny-vault/pvfin/provider"
	"github.com/penny-vault/pvfin/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _ = Describe("splitTickers", func() {
	It("accepts commas, spaces and new lines", func() {
		Expect(splitTickers("ACB, VCB\nFPT;HPG\r\n\tMWG")).To(Equal([]string{"ACB", "VCB", "FPT", "HPG", "MWG"}))
	})
})

var _ = Describe("catalogMarkdown", func() {
	It("lists tables in load order with their keys", func() {
		catalog, err := schema.Parse(strings.NewReader(db.ReferenceSchema))
		Expect(err).NotTo(HaveOccurred())

		doc := catalogMarkdown(catalog)
		Expect(doc).To(ContainSubstring("| ticker | TEXT | PK |"))
		Expect(doc).To(ContainSubstring("## 4. company_profile"))
		Expect(doc).To(ContainSubstring("## 5. cash_flow"))
		Expect(doc).To(ContainSubstring("References: company_profile, years, quarters"))
	})
})

var _ = Describe("renderSummary", func() {
	It("reports totals and failures", func() {
		started := time.Now().Add(-90 * time.Second)
		summary := &pipeline.Summary{
			StartedOn:        started,
			FinishedOn:       started.Add(90 * time.Second),
			Mode:             pipeline.IncrementalMode,
			TickersRequested: 2,
			TickersFetched:   []string{"ACB"},
			TickersFailed:    []string{"BAD"},
			Results: []library.LoadResult{
				{Table: "cash_flow", Mode: library.AppendMode, Attempted: 1200, Inserted: 1200},
			},
		}

		out := renderSummary(summary)
		Expect(out).To(ContainSubstring("Tickers fetched: 1 of 2"))
		Expect(out).To(ContainSubstring("Rows inserted:   1,200"))
		Expect(out).To(ContainSubstring("Failed tickers:  BAD"))
		Expect(out).To(ContainSubstring("1 minute 30 seconds"))
	})
})

var _ = Describe("bindRangeFlags", func() {
	AfterEach(func() {
		for _, cmd := range []*cobra.Command{runCmd, seedCmd} {
			Expect(cmd.Flags().Set("start", "")).To(Succeed())
			Expect(cmd.Flags().Set("end", "")).To(Succeed())
		}
	})

	It("reads the range from the command being run", func() {
		Expect(runCmd.Flags().Set("start", "2020-01-01")).To(Succeed())
		Expect(runCmd.Flags().Set("end", "2020-12-31")).To(Succeed())
		Expect(seedCmd.Flags().Set("start", "2015-01-01")).To(Succeed())

		bindRangeFlags(runCmd)
		Expect(viper.GetString("dates.start")).To(Equal("2020-01-01"))
		Expect(viper.GetString("dates.end")).To(Equal("2020-12-31"))

		bindRangeFlags(seedCmd)
		Expect(viper.GetString("dates.start")).To(Equal("2015-01-01"))
		Expect(viper.GetString("dates.end")).To(BeEmpty())
	})
})

// listingClient serves a fixed listing
type listingClient struct {
	provider.Client
	calls int
}

func (lc *listingClient) FetchListing(ctx context.Context) ([]*provider.Listing, error) {
	lc.calls++
	return []*provider.Listing{
		{Ticker: "ACB", IcbName3: "Ngân hàng", EnIcbName3: "Banks"},
		{Ticker: "FPT", IcbName3: "Công nghệ Thông tin", EnIcbName3: "Technology"},
		{Ticker: "MBB", IcbName3: "Ngân hàng", EnIcbName3: "Banks"},
	}, nil
}

var _ = Describe("tickerList", func() {
	var client *listingClient

	BeforeEach(func() {
		client = &listingClient{}
		viper.Set("industry", "Ngân hàng")
	})

	AfterEach(func() {
		viper.Set("testing", false)
		viper.Set("tickers", []string{})
		viper.Set("industry", "")
	})

	It("loads only the sample tickers in testing mode", func() {
		viper.Set("testing", true)
		Expect(tickerList(context.Background(), client, []string{"VCB"}, false)).To(Equal([]string{"ACB", "MBB"}))
		Expect(client.calls).To(Equal(0))
	})

	It("prefers tickers given as arguments", func() {
		Expect(tickerList(context.Background(), client, []string{"VCB"}, true)).To(Equal([]string{"VCB"}))
		Expect(client.calls).To(Equal(0))
	})

	It("uses the config file tickers before the configured industry", func() {
		viper.Set("tickers", []string{"HPG"})
		Expect(tickerList(context.Background(), client, nil, false)).To(Equal([]string{"HPG"}))
		Expect(client.calls).To(Equal(0))
	})

	It("selects every symbol of the industry given on the command line", func() {
		viper.Set("tickers", []string{"HPG"})
		viper.Set("industry", "Banks")
		Expect(tickerList(context.Background(), client, nil, true)).To(Equal([]string{"ACB", "MBB"}))
		Expect(client.calls).To(Equal(1))
	})

	It("falls back to the configured industry", func() {
		Expect(tickerList(context.Background(), client, nil, false)).To(Equal([]string{"ACB", "MBB"}))
	})
})
