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
package data

import "time"

// Dimension table names
const (
	QuartersTable = "quarters"
	YearsTable    = "years"
	DatesTable    = "dates"
)

// Quarters returns the quarters dimension: 1-4 plus AnnualQuarter
func Quarters() *Table {
	tbl := NewTable("quarter")
	for quarter := 1; quarter <= AnnualQuarter; quarter++ {
		tbl.AppendRow(Value(int64(quarter)))
	}
	return tbl
}

// Years returns the years dimension for start through end inclusive
func Years(start, end int) *Table {
	tbl := NewTable("year")
	for year := start; year <= end; year++ {
		tbl.AppendRow(Value(int64(year)))
	}
	return tbl
}

// Dates returns one row per calendar day from start through end inclusive
// along with the year of each date
func Dates(start, end time.Time) *Table {
	tbl := NewTable("date", "year")

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		tbl.AppendRow(Value(day), Value(int64(day.Year())))
		day = day.AddDate(0, 0, 1)
	}

	return tbl
}
