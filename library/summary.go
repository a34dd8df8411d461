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
package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/penny-vault/pvfin/schema"
	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary renders a markdown document describing the library: row counts
// of every table in the catalog and the most recent runs
func (myLibrary *Library) Summary(ctx context.Context, catalog *schema.Catalog) (string, error) {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	name := myLibrary.Name
	if name == "" {
		name = "pvfin library"
	}

	builder.WriteString(fmt.Sprintf("# %s\n", name))
	builder.WriteString("## Details\n\n")
	if myLibrary.Owner != "" {
		builder.WriteString(fmt.Sprintf("Owner: %s\n\n", myLibrary.Owner))
	}
	builder.WriteString(fmt.Sprintf("Database: %s\n\n", redactPassword(myLibrary.DBUrl)))

	// Last updated time
	lastUpdated, err := myLibrary.LastUpdated(ctx)
	if err != nil {
		return "", err
	}

	if lastUpdated.Equal(time.Time{}) {
		builder.WriteString("Last Updated: Never\n\n")
	} else {
		age := timeago.English.Format(lastUpdated)
		builder.WriteString(fmt.Sprintf("Last Updated: %s (%s)\n\n", age, lastUpdated.Local().Format("01/02/2006")))
	}

	// Tables
	builder.WriteString("## Tables\n\n")

	var totalRecords int64
	for _, table := range catalog.Names() {
		count, err := myLibrary.CountRows(ctx, table)
		if err != nil {
			builder.WriteString(p.Sprintf("  * %s: unavailable\n", table))
			continue
		}
		totalRecords += count
		builder.WriteString(p.Sprintf("  * %s: %d\n", table, count))
	}

	builder.WriteString(p.Sprintf("\nTotal Records: %d\n\n", totalRecords))

	// Runs
	builder.WriteString("## Recent runs\n\n")

	runs, err := myLibrary.RecentRuns(ctx, 5)
	if err != nil {
		return "", err
	}

	if len(runs) == 0 {
		builder.WriteString("No runs recorded\n")
	}

	for _, run := range runs {
		builder.WriteString(p.Sprintf("  * %s %s: %d/%d tickers, %d inserted, %d updated [%s]\n",
			run.StartedOn.Local().Format("2006-01-02 15:04"), run.Mode, run.TickersFetched,
			run.TickersRequested, run.RowsInserted, run.RowsUpdated, run.ID.String()[:6]))

		if len(run.FailedTables) > 0 {
			builder.WriteString(fmt.Sprintf("    * failed: %s\n", strings.Join(run.FailedTables, ", ")))
		}
	}

	return builder.String(), nil
}

// redactPassword hides the password portion of a connection string
func redactPassword(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}

	userInfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}

	if user, _, hasPassword := strings.Cut(userInfo, ":"); hasPassword {
		return fmt.Sprintf("%s://%s:xxxxx@%s", scheme, user, host)
	}

	return dsn
}
