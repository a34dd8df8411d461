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
	"math"
	"strings"
	"time"

	"github.com/penny-vault/pvfin/schema"
	"github.com/spf13/cast"
)

var (
	ErrCoerce = errors.New("value does not match column type")
)

type columnKind int

const (
	kindUnknown columnKind = iota
	kindText
	kindInt
	kindFloat
	kindBool
	kindDate
	kindTimestamp
)

func kindOf(columnType string) columnKind {
	columnType = strings.ToUpper(strings.TrimSpace(columnType))
	switch {
	case columnType == "":
		return kindUnknown
	case strings.HasPrefix(columnType, "TIMESTAMP"):
		return kindTimestamp
	case strings.HasPrefix(columnType, "DATE"):
		return kindDate
	case strings.HasPrefix(columnType, "BOOL"):
		return kindBool
	case strings.HasPrefix(columnType, "NUMERIC"), strings.HasPrefix(columnType, "DECIMAL"),
		strings.HasPrefix(columnType, "REAL"), strings.HasPrefix(columnType, "DOUBLE"),
		strings.HasPrefix(columnType, "FLOAT"), strings.HasPrefix(columnType, "MONEY"):
		return kindFloat
	case strings.HasPrefix(columnType, "INTERVAL"):
		return kindUnknown
	case strings.HasPrefix(columnType, "INT"), strings.HasPrefix(columnType, "BIGINT"),
		strings.HasPrefix(columnType, "SMALLINT"), strings.HasSuffix(columnType, "SERIAL"):
		return kindInt
	case strings.HasPrefix(columnType, "TEXT"), strings.HasPrefix(columnType, "VARCHAR"),
		strings.HasPrefix(columnType, "CHAR"), strings.HasPrefix(columnType, "CHARACTER"),
		strings.HasPrefix(columnType, "CITEXT"):
		return kindText
	default:
		return kindUnknown
	}
}

// Coerce converts the cells of a normalized table to the Go types pgx
// encodes for each column's declared type. Empty strings in non-text
// columns become null. Columns with an unknown type are left untouched.
func Coerce(t *Table, tbl schema.TableSchema) (*Table, error) {
	kinds := make([]columnKind, len(t.Columns))
	for idx, col := range t.Columns {
		kinds[idx] = kindOf(tbl.ColumnType(col))
	}

	result := t.Clone()
	for rowIdx, row := range result.Rows {
		for colIdx, cell := range row {
			if cell.IsNull() || kinds[colIdx] == kindUnknown {
				continue
			}

			converted, err := coerceValue(cell.Any(), kinds[colIdx])
			if err != nil {
				return nil, fmt.Errorf("%w: column %s row %d: %w", ErrCoerce, t.Columns[colIdx], rowIdx, err)
			}
			row[colIdx] = converted
		}
	}

	return result, nil
}

func coerceValue(v any, kind columnKind) (Cell, error) {
	if s, ok := v.(string); ok && kind != kindText {
		s = strings.TrimSpace(s)
		if s == "" {
			return Null(), nil
		}
		v = s
	}

	switch kind {
	case kindText:
		return Value(Value(v).String()), nil
	case kindInt:
		i, err := toInt64(v)
		return Value(i), err
	case kindFloat:
		f, err := toFloat64(v)
		return Value(f), err
	case kindBool:
		b, err := toBool(v)
		return Value(b), err
	case kindDate:
		ts, err := toTime(v)
		if err != nil {
			return Null(), err
		}
		return Value(time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)), nil
	case kindTimestamp:
		ts, err := toTime(v)
		return Value(ts), err
	}

	return Value(v), nil
}

func toInt64(v any) (int64, error) {
	switch v.(type) {
	case float32, float64, string:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(f), nil
	case bool:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
	return cast.ToInt64E(v)
}

func toFloat64(v any) (float64, error) {
	if _, ok := v.(bool); ok {
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
	return cast.ToFloat64E(v)
}

func toBool(v any) (bool, error) {
	return cast.ToBoolE(v)
}

// toTime parses dates and timestamps; values without a zone and unix seconds
// are taken as UTC
func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case float64:
		v = int64(val)
	}

	ts, err := cast.ToTimeInDefaultLocationE(v, time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	if _, ok := v.(string); !ok {
		ts = ts.UTC()
	}

	return ts, nil
}
