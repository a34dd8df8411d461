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

	"github.com/penny-vault/pvfin/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the quarters, years and dates dimension tables",
	Long: `The seed sub-command loads the quarters (1-4 and 5 for the full year), years
and dates tables. Tables that already hold the expected number of rows are not
written, so seed can be run any number of times.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindRangeFlags(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		start, end := fetchRange()
		mode, err := pipeline.ParseMode(viper.GetString("load.mode"))
		if err != nil {
			log.Fatal().Err(err).Msg("invalid load mode")
		}

		catalog := loadCatalog()

		myLibrary := openLibrary(ctx)
		defer myLibrary.Close()

		orchestrator := pipeline.New(catalog, myLibrary, nil, pipelineConfig(start, end, mode))
		results, err := orchestrator.SeedDimensions(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not seed dimension tables")
		}

		for _, result := range results {
			log.Info().Object("Result", result).Msg("seeded dimension table")
		}

		log.Info().Int("NumTables", len(results)).Msg("dimension tables are up to date")
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("start", "", "first date of the dates table (YYYY-MM-DD)")
	seedCmd.Flags().String("end", "", "last date of the dates table (YYYY-MM-DD)")
}
