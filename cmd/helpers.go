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
	"strings"

	"github.com/penny-vault/pvfin/db"
	"github.com/penny-vault/pvfin/library"
	"github.com/penny-vault/pvfin/schema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindRangeFlags binds the --start and --end flags of the command that is
// about to run to dates.start and dates.end; run and seed share these keys.
func bindRangeFlags(cmd *cobra.Command) {
	for key, name := range map[string]string{"dates.start": "start", "dates.end": "end"} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			log.Panic().Err(err).Str("Flag", name).Msg("BindPFlag failed")
		}
	}
}

// ddlText returns the configured DDL or the built-in reference schema. A
// configured file that cannot be read is fatal.
func ddlText() string {
	fn := viper.GetString("ddl")
	if fn == "" {
		return db.ReferenceSchema
	}

	contents, err := os.ReadFile(fn)
	if err != nil {
		log.Fatal().Err(err).Str("FileName", fn).Msg("could not read ddl file")
	}

	return string(contents)
}

// loadCatalog parses the configured DDL; without a schema nothing else can
// run so failures are fatal
func loadCatalog() *schema.Catalog {
	catalog, err := schema.Parse(strings.NewReader(ddlText()))
	if err != nil {
		log.Fatal().Err(err).Msg("could not parse ddl")
	}

	if catalog.Len() == 0 {
		log.Fatal().Str("DDL", viper.GetString("ddl")).Msg("ddl does not define any tables")
	}

	log.Debug().Int("NumTables", catalog.Len()).Strs("Tables", catalog.Names()).Msg("loaded schema")

	return catalog
}

// openLibrary connects to the configured database and optionally creates
// the tables in the DDL
func openLibrary(ctx context.Context) *library.Library {
	myLibrary, err := library.NewFromDB(ctx, viper.GetString("db.url"))
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to library")
	}

	if viper.GetBool("db.apply_ddl") {
		if err := myLibrary.ApplyDDL(ctx, ddlText()); err != nil {
			log.Fatal().Err(err).Msg("could not create tables")
		}
	}

	return myLibrary
}
