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

// Package schema builds a catalog of table definitions from CREATE TABLE
// statements.
package schema

import (
	"errors"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownTable = errors.New("table not found in catalog")
)

// TableSchema describes a single table parsed from DDL. Values are built once
// per run and must not be modified after the catalog is returned.
type TableSchema struct {
	Name        string
	Columns     []string
	ColumnTypes map[string]string
	PrimaryKeys []string
	ForeignKeys []string
	References  []string
}

// HasColumn reports whether name is one of the table's columns
func (tbl TableSchema) HasColumn(name string) bool {
	return slices.Contains(tbl.Columns, name)
}

// IsTickerScoped reports whether rows of the table belong to a single ticker
func (tbl TableSchema) IsTickerScoped() bool {
	return tbl.HasColumn("ticker")
}

// ColumnType returns the declared type of the column, upper-cased, or an
// empty string if the type is unknown
func (tbl TableSchema) ColumnType(name string) string {
	return strings.ToUpper(tbl.ColumnTypes[name])
}

// NonKeyColumns returns the columns that are not part of the primary key in
// column order
func (tbl TableSchema) NonKeyColumns() []string {
	cols := make([]string, 0, len(tbl.Columns))
	for _, col := range tbl.Columns {
		if !slices.Contains(tbl.PrimaryKeys, col) {
			cols = append(cols, col)
		}
	}
	return cols
}

func (tbl TableSchema) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Table", tbl.Name)
	e.Int("NumColumns", len(tbl.Columns))
	e.Strs("PrimaryKeys", tbl.PrimaryKeys)
	e.Strs("ForeignKeys", tbl.ForeignKeys)
	e.Strs("References", tbl.References)
}

// Catalog maps table names to their schema and remembers the order tables
// were declared in
type Catalog struct {
	tables map[string]TableSchema
	order  []string
}

// NewCatalog creates a catalog from the given tables. If a table name is
// repeated the later definition wins but keeps the original position.
func NewCatalog(tables ...TableSchema) *Catalog {
	catalog := &Catalog{
		tables: make(map[string]TableSchema, len(tables)),
	}

	for _, tbl := range tables {
		catalog.add(tbl)
	}

	return catalog
}

func (catalog *Catalog) add(tbl TableSchema) {
	if _, ok := catalog.tables[tbl.Name]; !ok {
		catalog.order = append(catalog.order, tbl.Name)
	}
	catalog.tables[tbl.Name] = tbl
}

// Table returns the schema for the named table
func (catalog *Catalog) Table(name string) (TableSchema, bool) {
	tbl, ok := catalog.tables[name]
	return tbl, ok
}

// Names returns all table names in declaration order
func (catalog *Catalog) Names() []string {
	return slices.Clone(catalog.order)
}

// Len returns the number of tables in the catalog
func (catalog *Catalog) Len() int {
	return len(catalog.order)
}

// DependencyOrder sorts names so that every table is preceded by the tables
// it references. Ties are broken by declaration order; names that are not in
// the catalog keep their relative order at the end. Reference cycles are
// broken by declaration order.
func (catalog *Catalog) DependencyOrder(names []string) []string {
	position := make(map[string]int, len(catalog.order))
	for idx, name := range catalog.order {
		position[name] = idx
	}

	known := make([]string, 0, len(names))
	unknown := make([]string, 0)
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if wanted[name] {
			continue
		}
		wanted[name] = true

		if _, ok := catalog.tables[name]; ok {
			known = append(known, name)
		} else {
			unknown = append(unknown, name)
		}
	}

	slices.SortStableFunc(known, func(a, b string) int {
		return position[a] - position[b]
	})

	// count unresolved references among the requested tables
	pending := make(map[string]int, len(known))
	dependents := make(map[string][]string, len(known))
	for _, name := range known {
		for _, ref := range catalog.tables[name].References {
			if ref == name || !wanted[ref] {
				continue
			}
			if _, ok := catalog.tables[ref]; !ok {
				continue
			}
			pending[name]++
			dependents[ref] = append(dependents[ref], name)
		}
	}

	sorted := make([]string, 0, len(names))
	done := make(map[string]bool, len(known))
	for len(sorted) < len(known) {
		progressed := false
		for _, name := range known {
			if done[name] || pending[name] > 0 {
				continue
			}
			done[name] = true
			sorted = append(sorted, name)
			for _, dep := range dependents[name] {
				pending[dep]--
			}
			progressed = true
			break
		}

		if !progressed {
			// cycle: release the earliest declared table that is still waiting
			for _, name := range known {
				if !done[name] {
					pending[name] = 0
					break
				}
			}
		}
	}

	return append(sorted, unknown...)
}
