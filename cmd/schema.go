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
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/penny-vault/pvfin/schema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Display the tables pvfin loads and the order they are loaded in",
	Run: func(cmd *cobra.Command, args []string) {
		catalog := loadCatalog()

		r, _ := glamour.NewTermRenderer(
			// detect background color and pick either the default dark or light theme
			glamour.WithAutoStyle(),
			// wrap output at specific width (default is 80)
			glamour.WithWordWrap(100),
		)

		out, err := r.Render(catalogMarkdown(catalog))
		if err != nil {
			log.Fatal().Err(err).Msg("could not render schema document")
		}

		fmt.Print(out)
	},
}

func catalogMarkdown(catalog *schema.Catalog) string {
	var doc strings.Builder

	doc.WriteString("# Schema\n\n")
	for idx, name := range catalog.DependencyOrder(catalog.Names()) {
		tbl, _ := catalog.Table(name)

		fmt.Fprintf(&doc, "## %d. %s\n\n", idx+1, name)
		if len(tbl.References) > 0 {
			fmt.Fprintf(&doc, "References: %s\n\n", strings.Join(tbl.References, ", "))
		}

		doc.WriteString("| Column | Type | Key |\n|--------|------|-----|\n")
		for _, col := range tbl.Columns {
			var keys []string
			for _, pk := range tbl.PrimaryKeys {
				if pk == col {
					keys = append(keys, "PK")
				}
			}
			for _, fk := range tbl.ForeignKeys {
				if fk == col {
					keys = append(keys, "FK")
				}
			}
			fmt.Fprintf(&doc, "| %s | %s | %s |\n", col, tbl.ColumnType(col), strings.Join(keys, ", "))
		}
		doc.WriteString("\n")
	}

	return doc.String()
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
