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
	"strconv"
	"time"
)

// Cell is a single table value. A null cell is distinct from a cell holding
// an empty string.
type Cell struct {
	value any
	valid bool
}

// Null returns a cell with no value
func Null() Cell {
	return Cell{}
}

// Value returns a cell holding v. A nil v yields a null cell.
func Value(v any) Cell {
	if v == nil {
		return Cell{}
	}
	return Cell{value: v, valid: true}
}

// IsNull reports whether the cell has no value
func (c Cell) IsNull() bool {
	return !c.valid
}

// Any returns the held value or nil for a null cell
func (c Cell) Any() any {
	if !c.valid {
		return nil
	}
	return c.value
}

// String formats the value for display and CSV output; null cells format
// as an empty string
func (c Cell) String() string {
	if !c.valid {
		return ""
	}

	switch v := c.value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		if isMidnight(v) {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
