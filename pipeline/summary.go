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
package pipeline

import (
	"errors"
	"time"

	"github.com/penny-vault/pvfin/library"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownMode = errors.New("unknown load mode")
)

// Summary describes the outcome of a run
type Summary struct {
	StartedOn        time.Time
	FinishedOn       time.Time
	Mode             Mode
	TickersRequested int
	TickersFetched   []string
	TickersFailed    []string
	Results          []library.LoadResult
	FailedTables     []string
}

// Duration is how long the run took
func (summary *Summary) Duration() time.Duration {
	if summary.FinishedOn.IsZero() {
		return time.Since(summary.StartedOn)
	}
	return summary.FinishedOn.Sub(summary.StartedOn)
}

// RowsInserted is the number of new rows across every table
func (summary *Summary) RowsInserted() int64 {
	var total int64
	for _, result := range summary.Results {
		total += result.Inserted
	}
	return total
}

// RowsUpdated is the number of stored rows overwritten across every table
func (summary *Summary) RowsUpdated() int64 {
	var total int64
	for _, result := range summary.Results {
		total += result.Updated
	}
	return total
}

// Failed reports whether any ticker or table could not be processed
func (summary *Summary) Failed() bool {
	return len(summary.TickersFailed) > 0 || len(summary.FailedTables) > 0
}

// Run converts the summary into a run history record
func (summary *Summary) Run() *library.Run {
	failed := make([]string, len(summary.FailedTables))
	copy(failed, summary.FailedTables)

	return &library.Run{
		StartedOn:        summary.StartedOn,
		FinishedOn:       summary.FinishedOn,
		Mode:             string(summary.Mode),
		TickersRequested: summary.TickersRequested,
		TickersFetched:   len(summary.TickersFetched),
		RowsInserted:     summary.RowsInserted(),
		RowsUpdated:      summary.RowsUpdated(),
		FailedTables:     failed,
	}
}

func (summary *Summary) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Mode", string(summary.Mode))
	e.Int("TickersRequested", summary.TickersRequested)
	e.Int("TickersFetched", len(summary.TickersFetched))
	e.Strs("TickersFailed", summary.TickersFailed)
	e.Int64("RowsInserted", summary.RowsInserted())
	e.Int64("RowsUpdated", summary.RowsUpdated())
	e.Strs("FailedTables", summary.FailedTables)
	e.Dur("Duration", summary.Duration())
}
