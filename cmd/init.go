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
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/pvfin/db"
	"github.com/penny-vault/pvfin/healthcheck"
	"github.com/penny-vault/pvfin/library"
	"github.com/penny-vault/pvfin/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Gather database configuration and setup schema",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary := &library.Library{}
		var (
			tickers         string
			healthchecksKey string
		)

		form := huh.NewForm(
			// Gather details about the library and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the library a name:").
					Value(&myLibrary.Name),

				huh.NewInput().
					Title("Who owns the library?").
					Value(&myLibrary.Owner),
			),

			// Get details about the database
			huh.NewGroup(
				huh.NewInput().
					Title("Provide the DSN for connecting to your PostgreSQL database (postgres://[user[:password]@][netloc][:port][/dbname][?param1=value1&...])").
					Value(&myLibrary.DBUrl).
					Validate(func(dsn string) error {
						_, err := pgx.ParseConfig(dsn)
						return err
					}),
			),

			// What to download
			huh.NewGroup(
				huh.NewText().
					Title("Which tickers should be loaded? (separate with spaces, commas or new lines)").
					Value(&tickers),

				huh.NewInput().
					Title("healthchecks.io API key (leave blank to disable monitoring):").
					Value(&healthchecksKey),
			),
		)

		err := form.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("error gathering database settings")
		}

		log.Info().Msg("creating database tables")

		// run migration
		err = db.Migrate(myLibrary.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("error running database migration")
		}

		log.Info().Msg("database tables created")
		log.Info().Msg("Saving library name and owner to database")

		// save library name and owner to database
		if err := myLibrary.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		defer myLibrary.Close()

		err = myLibrary.SaveDB(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error saving library settings to database")
		}

		conf := fileConfig{
			Tickers:       pipeline.Tickers(splitTickers(tickers)),
			LookbackYears: viper.GetInt("lookback_years"),
			DB: dbConfig{
				URL: myLibrary.DBUrl,
			},
			Cache: cacheConfig{
				Enabled: viper.GetBool("cache.enabled"),
				Dir:     viper.GetString("cache.dir"),
			},
		}

		if healthchecksKey != "" {
			checkSlug := slug.Make("pvfin " + myLibrary.Name)
			pingURL, err := healthcheck.New(healthchecksKey).Create(ctx, "pvfin "+myLibrary.Name, checkSlug, []string{"pvfin"}, "0 18 * * 1-5")
			if err != nil {
				log.Error().Err(err).Msg("could not create healthcheck; monitoring is disabled")
			} else {
				conf.Healthchecks.PingURL = pingURL
			}
		}

		// save database settings to config file
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("could not determine user home directory")
		}

		configFN := filepath.Join(home, ".pvfin.toml")
		log.Info().Str("ConfigFile", configFN).Msg("Saving database connection info to config file")
		configData, err := toml.Marshal(conf)
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		err = os.WriteFile(configFN, configData, 0600)
		if err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Int("NumTickers", len(conf.Tickers)).Msg("Your data library has been initialized")
	},
}

// splitTickers splits a list of tickers separated by whitespace or commas
func splitTickers(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func init() {
	rootCmd.AddCommand(initCmd)
}
