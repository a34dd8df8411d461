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

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

// AnnualQuarter is the quarter value used for full-year reports
const AnnualQuarter = 5

var (
	ErrInvalidPeriodLabel = errors.New("invalid period label")
)

var (
	annualLabelRegex    = regexp.MustCompile(`^(\d{4})$`)
	quarterlyLabelRegex = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
)

// periodColumns are replaced by the values parsed from the row label
var periodColumns = []string{"report_period", "year", "quarter"}

// ParsePeriod converts a report label into a year and quarter. "2022" is an
// annual report (quarter 5) and "2022-Q3" is the third quarter of 2022.
func ParsePeriod(label string) (year, quarter int, err error) {
	if match := annualLabelRegex.FindStringSubmatch(label); match != nil {
		year, _ = strconv.Atoi(match[1])
		return year, AnnualQuarter, nil
	}

	if match := quarterlyLabelRegex.FindStringSubmatch(label); match != nil {
		year, _ = strconv.Atoi(match[1])
		quarter, _ = strconv.Atoi(match[2])
		return year, quarter, nil
	}

	return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriodLabel, label)
}

// PeriodLabel is the inverse of ParsePeriod
func PeriodLabel(year, quarter int) string {
	if quarter == AnnualQuarter {
		return strconv.Itoa(year)
	}
	return fmt.Sprintf("%d-Q%d", year, quarter)
}

// ExtractPeriods replaces any report_period, year and quarter columns with
// year and quarter values parsed from each row's label. The input table is
// not modified.
func ExtractPeriods(t *Table) (*Table, error) {
	keep := make([]int, 0, len(t.Columns))
	columns := make([]string, 0, len(t.Columns)+2)
	for idx, col := range t.Columns {
		if slices.Contains(periodColumns, col) {
			continue
		}
		keep = append(keep, idx)
		columns = append(columns, col)
	}
	columns = append(columns, "year", "quarter")

	result := NewTable(columns...)
	for rowIdx, row := range t.Rows {
		label := t.Label(rowIdx)
		year, quarter, err := ParsePeriod(label)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIdx, err)
		}

		cells := make([]Cell, 0, len(columns))
		for _, idx := range keep {
			if idx < len(row) {
				cells = append(cells, row[idx])
			} else {
				cells = append(cells, Null())
			}
		}
		cells = append(cells, Value(int64(year)), Value(int64(quarter)))

		result.AppendLabeledRow(label, cells...)
	}

	return result, nil
}
