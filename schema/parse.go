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
package schema

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	createTableRegex = regexp.MustCompile(`(?i)^\s*CREATE\s+(?:(?:GLOBAL|LOCAL)\s+)?(?:(?:TEMP|TEMPORARY|UNLOGGED)\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?((?:"[^"]+"|` + "`[^`]+`" + `|[^\s(]+)(?:\.(?:"[^"]+"|[^\s(]+))?)`)
	referencesRegex  = regexp.MustCompile(`(?i)\bREFERENCES\s+((?:"[^"]+"|[^\s(]+)(?:\.(?:"[^"]+"|[^\s(]+))?)`)
	primaryKeyRegex  = regexp.MustCompile(`(?i)\bPRIMARY\s+KEY\b`)
	foreignKeyRegex  = regexp.MustCompile(`(?i)\bFOREIGN\s+KEY\b`)
)

// reservedWords are never treated as column names
var reservedWords = []string{"CONSTRAINT", "PRIMARY", "FOREIGN", "KEY", "REFERENCES", "UNIQUE", "CHECK", "EXCLUDE", "LIKE"}

// typeTerminators end the type portion of a column definition
var typeTerminators = []string{"NOT", "NULL", "DEFAULT", "PRIMARY", "REFERENCES", "UNIQUE", "CHECK", "CONSTRAINT", "GENERATED", "COLLATE"}

// ParseFile reads DDL from the named file and builds a catalog
func ParseFile(fn string) (*Catalog, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, fmt.Errorf("open ddl file: %w", err)
	}
	defer fh.Close()

	catalog, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("parse ddl file %s: %w", fn, err)
	}

	return catalog, nil
}

// Parse scans DDL text line by line and builds a catalog of every CREATE
// TABLE statement it finds. Parsing is best-effort: statements that are not
// table definitions and lines that do not look like column or key clauses
// are skipped.
func Parse(r io.Reader) (*Catalog, error) {
	p := &parser{
		catalog: NewCatalog(),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// unterminated final table
	if p.current != nil {
		p.closeTable()
	}

	return p.catalog, nil
}

type parser struct {
	catalog *Catalog
	current *TableSchema

	// depth is the parenthesis depth inside the current CREATE TABLE; the
	// table body is at depth 1
	depth   int
	element strings.Builder
	quoted  bool
}

func (p *parser) line(text string) {
	text = stripComment(text)
	if strings.TrimSpace(text) == "" {
		return
	}

	if match := createTableRegex.FindStringSubmatchIndex(text); match != nil {
		if p.current != nil {
			log.Warn().Str("Table", p.current.Name).Msg("table definition not terminated before next CREATE TABLE")
			p.closeTable()
		}

		p.current = &TableSchema{
			Name:        unquoteName(text[match[2]:match[3]]),
			ColumnTypes: make(map[string]string),
		}
		p.depth = 0
		p.element.Reset()
		p.quoted = false

		text = text[match[1]:]
	}

	if p.current == nil {
		return
	}

	p.body(text)

	// keep element text on one logical line when clauses span lines
	if p.current != nil && p.element.Len() > 0 {
		p.element.WriteByte(' ')
	}
}

// body feeds characters of the table definition, splitting on top-level
// commas and closing the table when the outer parenthesis is closed
func (p *parser) body(text string) {
	for _, ch := range text {
		if p.current == nil {
			return
		}

		if ch == '\'' {
			p.quoted = !p.quoted
		}

		if p.quoted {
			p.element.WriteRune(ch)
			continue
		}

		switch ch {
		case '(':
			p.depth++
			if p.depth == 1 {
				continue
			}
		case ')':
			p.depth--
			if p.depth <= 0 {
				p.closeTable()
				continue
			}
		case ',':
			if p.depth == 1 {
				p.flushElement()
				continue
			}
		}

		if p.depth >= 1 {
			p.element.WriteRune(ch)
		}
	}
}

func (p *parser) flushElement() {
	text := strings.TrimSpace(p.element.String())
	p.element.Reset()
	if text != "" {
		p.clause(text)
	}
}

func (p *parser) closeTable() {
	p.flushElement()

	tbl := *p.current
	p.current = nil
	p.depth = 0
	p.quoted = false

	tbl.PrimaryKeys = keepColumns(tbl, tbl.PrimaryKeys, "primary key")
	tbl.ForeignKeys = keepColumns(tbl, tbl.ForeignKeys, "foreign key")

	p.catalog.add(tbl)
}

// clause interprets a single comma separated element of a table body
func (p *parser) clause(text string) {
	tbl := p.current
	fields := strings.Fields(text)
	first := strings.ToUpper(fields[0])

	switch {
	case first == "CONSTRAINT":
		// CONSTRAINT <name> <constraint>
		if len(fields) > 2 {
			p.clause(strings.Join(fields[2:], " "))
		}
		return
	case first == "PRIMARY" && primaryKeyRegex.MatchString(text):
		tbl.PrimaryKeys = appendUnique(tbl.PrimaryKeys, parenList(text)...)
		return
	case first == "FOREIGN" && foreignKeyRegex.MatchString(text):
		tbl.ForeignKeys = appendUnique(tbl.ForeignKeys, parenList(text)...)
		if ref := referencesRegex.FindStringSubmatch(text); ref != nil {
			tbl.References = appendUnique(tbl.References, unquoteName(ref[1]))
		}
		return
	case slices.Contains(reservedWords, first):
		return
	}

	name, rest := splitColumnName(text)
	if name == "" {
		return
	}

	tbl.Columns = appendUnique(tbl.Columns, name)
	tbl.ColumnTypes[name] = columnType(rest)

	if primaryKeyRegex.MatchString(rest) {
		tbl.PrimaryKeys = appendUnique(tbl.PrimaryKeys, name)
	}

	if ref := referencesRegex.FindStringSubmatch(rest); ref != nil {
		tbl.ForeignKeys = appendUnique(tbl.ForeignKeys, name)
		tbl.References = appendUnique(tbl.References, unquoteName(ref[1]))
	}
}

// keepColumns drops key names that are not columns of the table
func keepColumns(tbl TableSchema, keys []string, kind string) []string {
	kept := make([]string, 0, len(keys))
	for _, key := range keys {
		if !tbl.HasColumn(key) {
			log.Warn().Str("Table", tbl.Name).Str("Column", key).Str("KeyType", kind).Msg("key column is not defined in table; ignoring")
			continue
		}
		kept = append(kept, key)
	}
	return kept
}

// splitColumnName returns the unquoted leading identifier and the remaining
// text of a column definition
func splitColumnName(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	if text[0] == '"' || text[0] == '`' {
		end := strings.IndexByte(text[1:], text[0])
		if end < 0 {
			return "", ""
		}
		return text[1 : end+1], strings.TrimSpace(text[end+2:])
	}

	fields := strings.Fields(text)
	return fields[0], strings.Join(fields[1:], " ")
}

// columnType returns the type portion of a column definition
func columnType(rest string) string {
	fields := strings.Fields(rest)
	typeFields := make([]string, 0, len(fields))
	for _, field := range fields {
		if slices.Contains(typeTerminators, strings.ToUpper(field)) {
			break
		}
		typeFields = append(typeFields, field)
	}
	return strings.Join(typeFields, " ")
}

// parenList returns the unquoted names in the first parenthesized list
func parenList(text string) []string {
	start := strings.IndexByte(text, '(')
	if start < 0 {
		return nil
	}

	end := strings.IndexByte(text[start:], ')')
	if end < 0 {
		end = len(text) - start
	}

	parts := strings.Split(text[start+1:start+end], ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		part = unquoteName(strings.TrimSpace(part))
		if part != "" {
			names = append(names, part)
		}
	}

	return names
}

// unquoteName strips identifier quotes and any schema qualification
func unquoteName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > 1 && name[0] == '"' && strings.IndexByte(name[1:], '"') == len(name)-2 {
		return name[1 : len(name)-1]
	}

	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}

	return strings.Trim(name, "\"`")
}

func stripComment(line string) string {
	inString := false
	for idx := 0; idx < len(line); idx++ {
		switch line[idx] {
		case '\'':
			inString = !inString
		case '-':
			if !inString && idx+1 < len(line) && line[idx+1] == '-' {
				return line[:idx]
			}
		}
	}
	return line
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
