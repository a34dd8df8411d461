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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	keySeparator = "\x1f"
	nullKey      = "\x00"
)

// KeySet is a set of primary-key tuples in canonical form
type KeySet map[string]struct{}

// NewKeySet creates an empty key set
func NewKeySet() KeySet {
	return make(KeySet)
}

// Add inserts the tuple made of parts
func (ks KeySet) Add(parts ...any) {
	ks[KeyOf(parts...)] = struct{}{}
}

// Has reports whether the tuple made of parts is in the set
func (ks KeySet) Has(parts ...any) bool {
	_, ok := ks[KeyOf(parts...)]
	return ok
}

// Len returns the number of tuples in the set
func (ks KeySet) Len() int {
	return len(ks)
}

// Merge adds every tuple of other to the set
func (ks KeySet) Merge(other KeySet) {
	for key := range other {
		ks[key] = struct{}{}
	}
}

// KeyOf encodes a key tuple so equal values of different representations
// compare equal. Times are compared as UTC instants; one that falls on UTC
// midnight is written as YYYY-MM-DD so it matches a DATE value. Whole floats
// become integers and strings are trimmed.
func KeyOf(parts ...any) string {
	encoded := make([]string, len(parts))
	for idx, part := range parts {
		encoded[idx] = canonical(part)
	}
	return strings.Join(encoded, keySeparator)
}

// rowKey builds the key for the cells at the given positions
func rowKey(row []Cell, positions []int) string {
	parts := make([]any, len(positions))
	for idx, pos := range positions {
		if pos < len(row) {
			parts[idx] = row[pos]
		}
	}
	return KeyOf(parts...)
}

func canonical(v any) string {
	if cell, ok := v.(Cell); ok {
		v = cell.Any()
	}

	switch val := v.(type) {
	case nil:
		return nullKey
	case string:
		return canonicalString(val)
	case time.Time:
		return canonicalTime(val)
	case *time.Time:
		if val == nil {
			return nullKey
		}
		return canonicalTime(*val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return canonicalFloat(float64(val))
	case float64:
		return canonicalFloat(val)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return canonicalString(val.String())
	default:
		return fmt.Sprint(val)
	}
}

func canonicalString(s string) string {
	s = strings.TrimSpace(s)

	if len(s) == len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, s); err == nil {
			return s
		}
	}

	if len(s) > len(time.DateOnly) && s[4] == '-' {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return canonicalTime(ts)
		}
		if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return canonicalTime(ts)
		}
		if ts, err := time.Parse(time.DateTime, s); err == nil {
			return canonicalTime(ts)
		}
	}

	return s
}

func canonicalTime(ts time.Time) string {
	ts = ts.UTC()
	if isMidnight(ts) {
		return ts.Format(time.DateOnly)
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func isMidnight(ts time.Time) bool {
	return ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0
}
