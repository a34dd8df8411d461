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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hako/durafmt"
	"github.com/penny-vault/pvfin/cache"
	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/healthcheck"
	"github.com/penny-vault/pvfin/pipeline"
	"github.com/penny-vault/pvfin/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	tickersFile string
	refresh     bool
	fromCache   bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [ticker...]",
	Short: "Download and load financial data for a list of tickers",
	Long: `The run sub-command downloads the company profile, financial statements
and daily prices of each ticker and loads every row that is not already in the
database. Tickers are read from the arguments, from --tickers-file, or from the
tickers list in the config file, in that order.

With --refresh every downloaded row is upserted so values that were restated by
the provider overwrite what is stored. With --from-cache nothing is downloaded;
the most recent cache directory of the day is loaded instead.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindRangeFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		client := newClient()

		tickers := pipeline.Tickers(tickerList(ctx, client, args, cmd.Flags().Changed("industry")))
		if len(tickers) == 0 {
			log.Fatal().Msg("no tickers to load; pass them as arguments, with --tickers-file, with --industry, or set tickers in the config file")
		}

		start, end := fetchRange()

		mode, err := pipeline.ParseMode(viper.GetString("load.mode"))
		if err != nil {
			log.Fatal().Err(err).Msg("invalid load mode")
		}
		if refresh {
			mode = pipeline.RefreshMode
		}

		catalog := loadCatalog()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		orchestrator := pipeline.New(catalog, myLibrary, newFetcher(client), pipelineConfig(start, end, mode))

		if _, err := orchestrator.SeedDimensions(ctx); err != nil {
			log.Error().Err(err).Msg("could not seed dimension tables")
		}

		log.Info().Int("NumTickers", len(tickers)).Str("Start", start.Format(time.DateOnly)).Str("End", end.Format(time.DateOnly)).
			Str("Mode", string(mode)).Msg("starting run")

		summary, err := orchestrator.Run(ctx, tickers)
		if err != nil {
			log.Fatal().Err(err).Msg("run aborted")
		}

		report := renderSummary(summary)
		fmt.Println(report)

		if err := healthcheck.Ping(ctx, viper.GetString("healthchecks.ping_url"), summary.Failed(), report); err != nil {
			log.Warn().Err(err).Msg("could not ping healthchecks")
		}
	},
}

// sampleTickers are loaded instead of the full list in testing mode
var sampleTickers = []string{"ACB", "MBB"}

// tickerList collects tickers from the arguments, the tickers file, the
// config file or every listed symbol in the configured industry. An industry
// given on the command line takes precedence over the config file tickers.
func tickerList(ctx context.Context, client provider.Client, args []string, byIndustry bool) []string {
	if viper.GetBool("testing") {
		log.Info().Strs("Tickers", sampleTickers).Msg("testing mode; loading sample tickers only")
		return sampleTickers
	}

	if len(args) > 0 {
		return args
	}

	if tickersFile != "" {
		contents, err := os.ReadFile(tickersFile)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", tickersFile).Msg("could not read tickers file")
		}
		return splitTickers(string(contents))
	}

	if tickers := viper.GetStringSlice("tickers"); len(tickers) > 0 && !byIndustry {
		return tickers
	}

	industry := viper.GetString("industry")
	if industry == "" {
		return nil
	}

	listings, err := client.FetchListing(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not fetch symbol listing")
	}

	tickers := provider.IndustryTickers(listings, industry)
	log.Info().Str("Industry", industry).Int("NumTickers", len(tickers)).Msg("selected tickers by industry")

	return tickers
}

// fetchRange returns the dates.start / dates.end range, defaulting to the
// last lookback_years years ending today
func fetchRange() (time.Time, time.Time) {
	now := time.Now()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if val := viper.GetString("dates.end"); val != "" {
		var err error
		if end, err = time.Parse(time.DateOnly, val); err != nil {
			log.Fatal().Err(err).Str("End", val).Msg("could not parse end date")
		}
	}

	start := time.Date(end.Year()-viper.GetInt("lookback_years"), time.January, 1, 0, 0, 0, 0, time.UTC)
	if val := viper.GetString("dates.start"); val != "" {
		var err error
		if start, err = time.Parse(time.DateOnly, val); err != nil {
			log.Fatal().Err(err).Str("Start", val).Msg("could not parse start date")
		}
	}

	if end.Before(start) {
		log.Fatal().Str("Start", start.Format(time.DateOnly)).Str("End", end.Format(time.DateOnly)).Msg("start date is after end date")
	}

	return start, end
}

func pipelineConfig(start, end time.Time, mode pipeline.Mode) pipeline.Config {
	yearStart := viper.GetInt("years.start")
	if yearStart == 0 {
		yearStart = start.Year()
	}

	yearEnd := viper.GetInt("years.end")
	if yearEnd == 0 {
		yearEnd = end.Year()
	}

	return pipeline.Config{
		Start:     start.Format(time.DateOnly),
		End:       end.Format(time.DateOnly),
		YearStart: yearStart,
		YearEnd:   yearEnd,
		DateStart: start,
		DateEnd:   end,
		Workers:   viper.GetInt("fetch.workers"),
		Mode:      mode,
		Tables:    viper.GetStringMapString("tables"),
	}
}

// newClient builds the provider client wrapped with retries
func newClient() provider.Client {
	client, err := provider.New(viper.GetString("provider.name"), provider.Config{
		BaseURL:    viper.GetString("provider.base_url"),
		ListingURL: viper.GetString("provider.listing_url"),
		RateLimit:  viper.GetInt("provider.rate_limit"),
		Timeout:    viper.GetDuration("provider.timeout"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not create provider")
	}

	return provider.WithRetry(client, provider.RetryPolicy{
		MaxAttempts: viper.GetInt("fetch.max_attempts"),
		Delay:       viper.GetDuration("fetch.retry_delay"),
	})
}

// newFetcher adapts client to fetch whole datasets and, when enabled, puts
// the on-disk cache in front of it
func newFetcher(client provider.Client) data.Fetcher {
	var fetcher data.Fetcher = provider.NewAdapter(client)
	if fromCache || viper.GetBool("cache.enabled") {
		cached := cache.New(viper.GetString("cache.dir"), fetcher)
		cached.Offline = fromCache
		fetcher = cached
	}

	return fetcher
}

func renderSummary(summary *pipeline.Summary) string {
	printer := message.NewPrinter(language.English)

	lines := []string{
		printer.Sprintf("Mode:            %s", summary.Mode),
		printer.Sprintf("Tickers fetched: %d of %d", len(summary.TickersFetched), summary.TickersRequested),
		printer.Sprintf("Rows inserted:   %d", summary.RowsInserted()),
		printer.Sprintf("Rows updated:    %d", summary.RowsUpdated()),
		printer.Sprintf("Duration:        %s", durafmt.Parse(summary.Duration()).LimitFirstN(2).String()),
	}

	for _, result := range summary.Results {
		lines = append(lines, printer.Sprintf("  %-18s +%d ~%d", result.Table, result.Inserted, result.Updated))
	}

	if len(summary.TickersFailed) > 0 {
		lines = append(lines, "Failed tickers:  "+strings.Join(summary.TickersFailed, ", "))
	}

	if len(summary.FailedTables) > 0 {
		lines = append(lines, "Failed tables:   "+strings.Join(summary.FailedTables, ", "))
	}

	borderColor := lipgloss.Color("63")
	if summary.Failed() {
		borderColor = lipgloss.Color("196")
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)

	return style.Render(strings.Join(lines, "\n"))
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&tickersFile, "tickers-file", "", "file with one ticker per line")
	runCmd.Flags().BoolVar(&refresh, "refresh", false, "upsert every downloaded row instead of only loading new rows")
	runCmd.Flags().BoolVar(&fromCache, "from-cache", false, "load today's cached files without contacting the provider")

	runCmd.Flags().String("start", "", "first date of price history to load (YYYY-MM-DD)")
	runCmd.Flags().String("end", "", "last date of price history to load (YYYY-MM-DD)")

	runCmd.Flags().String("industry", "", "load every listed symbol in this industry (level 3 ICB name, Vietnamese or English)")
	if err := viper.BindPFlag("industry", runCmd.Flags().Lookup("industry")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for industry failed")
	}

	runCmd.Flags().Bool("testing", false, "only load the sample tickers ACB and MBB")
	if err := viper.BindPFlag("testing", runCmd.Flags().Lookup("testing")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for testing failed")
	}

	runCmd.Flags().Int("workers", 4, "number of tickers downloaded concurrently")
	if err := viper.BindPFlag("fetch.workers", runCmd.Flags().Lookup("workers")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for workers failed")
	}
}
