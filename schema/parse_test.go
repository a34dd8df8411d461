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
package schema_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvfin/schema"
)

const financialDDL = `
-- statement tables reference the company profile
CREATE TABLE IF NOT EXISTS company (
    ticker TEXT PRIMARY KEY,
    name TEXT -- display name
);

CREATE TABLE "cash_flow" (
    "ticker" TEXT NOT NULL,
    year INT NOT NULL,
    quarter INT NOT NULL,
    amount NUMERIC(18, 4),
    PRIMARY KEY (ticker, year, quarter),
    FOREIGN KEY (ticker) REFERENCES company (ticker)
);

CREATE INDEX cash_flow_year_idx ON cash_flow (year);

create table public.balance_sheet (
    ticker TEXT,
    year INT REFERENCES years(year),
    quarter INT,
    cash DOUBLE PRECISION DEFAULT 0,
    CONSTRAINT balance_sheet_pk PRIMARY KEY (
        ticker,
        year,
        quarter
    ),
    CONSTRAINT balance_sheet_company_fk FOREIGN KEY (
        ticker
    ) REFERENCES company (ticker)
);

CREATE TABLE quarters (quarter INT PRIMARY KEY);
`

var _ = Describe("Parse", func() {
	var catalog *schema.Catalog

	BeforeEach(func() {
		var err error
		catalog, err = schema.Parse(strings.NewReader(financialDDL))
		Expect(err).NotTo(HaveOccurred())
	})

	It("finds every table in declaration order", func() {
		Expect(catalog.Names()).To(Equal([]string{"company", "cash_flow", "balance_sheet", "quarters"}))
		Expect(catalog.Len()).To(Equal(4))
	})

	It("parses inline primary keys", func() {
		company, ok := catalog.Table("company")
		Expect(ok).To(BeTrue())
		Expect(company.Columns).To(Equal([]string{"ticker", "name"}))
		Expect(company.PrimaryKeys).To(Equal([]string{"ticker"}))
		Expect(company.ForeignKeys).To(BeEmpty())
		Expect(company.ColumnType("ticker")).To(Equal("TEXT"))
	})

	It("parses quoted names and table level keys", func() {
		cashFlow, ok := catalog.Table("cash_flow")
		Expect(ok).To(BeTrue())
		Expect(cashFlow.Columns).To(Equal([]string{"ticker", "year", "quarter", "amount"}))
		Expect(cashFlow.PrimaryKeys).To(Equal([]string{"ticker", "year", "quarter"}))
		Expect(cashFlow.ForeignKeys).To(Equal([]string{"ticker"}))
		Expect(cashFlow.References).To(Equal([]string{"company"}))
		Expect(cashFlow.ColumnType("amount")).To(Equal("NUMERIC(18, 4)"))
		Expect(cashFlow.NonKeyColumns()).To(Equal([]string{"amount"}))
		Expect(cashFlow.IsTickerScoped()).To(BeTrue())
	})

	It("parses multi-line key clauses and schema qualified names", func() {
		balanceSheet, ok := catalog.Table("balance_sheet")
		Expect(ok).To(BeTrue())
		Expect(balanceSheet.Columns).To(Equal([]string{"ticker", "year", "quarter", "cash"}))
		Expect(balanceSheet.PrimaryKeys).To(Equal([]string{"ticker", "year", "quarter"}))
		Expect(balanceSheet.ForeignKeys).To(ConsistOf("year", "ticker"))
		Expect(balanceSheet.References).To(ConsistOf("years", "company"))
		Expect(balanceSheet.ColumnType("cash")).To(Equal("DOUBLE PRECISION"))
	})

	It("parses single line tables", func() {
		quarters, ok := catalog.Table("quarters")
		Expect(ok).To(BeTrue())
		Expect(quarters.Columns).To(Equal([]string{"quarter"}))
		Expect(quarters.PrimaryKeys).To(Equal([]string{"quarter"}))
		Expect(quarters.IsTickerScoped()).To(BeFalse())
	})

	It("drops key names that are not columns", func() {
		catalog, err := schema.Parse(strings.NewReader(`CREATE TABLE t (
    a INT,
    PRIMARY KEY (a, missing),
    FOREIGN KEY (other) REFERENCES u (id)
);`))
		Expect(err).NotTo(HaveOccurred())

		tbl, ok := catalog.Table("t")
		Expect(ok).To(BeTrue())
		Expect(tbl.PrimaryKeys).To(Equal([]string{"a"}))
		Expect(tbl.ForeignKeys).To(BeEmpty())
		Expect(tbl.References).To(Equal([]string{"u"}))
	})

	DescribeTable("keys are always a subset of the columns",
		func(ddl string) {
			catalog, err := schema.Parse(strings.NewReader(ddl))
			Expect(err).NotTo(HaveOccurred())

			for _, name := range catalog.Names() {
				tbl, _ := catalog.Table(name)
				for _, pk := range tbl.PrimaryKeys {
					Expect(tbl.Columns).To(ContainElement(pk))
				}
				for _, fk := range tbl.ForeignKeys {
					Expect(tbl.Columns).To(ContainElement(fk))
				}
			}
		},
		Entry("reference financial schema", financialDDL),
		Entry("key on unknown column", "CREATE TABLE t (a INT, PRIMARY KEY (b));"),
		Entry("constraint continuation lines", "CREATE TABLE t (\n a INT,\n CONSTRAINT pk\n PRIMARY KEY\n (a, z)\n);"),
		Entry("unterminated table", "CREATE TABLE t (\n a INT PRIMARY KEY,\n b TEXT"),
		Entry("no tables", "SELECT 1;"),
	)

	It("skips lines that are not table definitions", func() {
		catalog, err := schema.Parse(strings.NewReader("SET search_path = public;\nSELECT 1;\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(catalog.Len()).To(Equal(0))
	})
})

var _ = Describe("ParseFile", func() {
	It("reads ddl from disk", func() {
		fn := filepath.Join(GinkgoT().TempDir(), "schema.sql")
		Expect(os.WriteFile(fn, []byte(financialDDL), 0o644)).To(Succeed())

		catalog, err := schema.ParseFile(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(catalog.Len()).To(Equal(4))
	})

	It("fails when the file cannot be opened", func() {
		_, err := schema.ParseFile(filepath.Join(GinkgoT().TempDir(), "missing.sql"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

var _ = Describe("DependencyOrder", func() {
	It("orders referenced tables before their dependents", func() {
		catalog := schema.NewCatalog(
			schema.TableSchema{Name: "cash_flow", References: []string{"company", "years"}},
			schema.TableSchema{Name: "years"},
			schema.TableSchema{Name: "company"},
			schema.TableSchema{Name: "daily_price", References: []string{"company"}},
		)

		order := catalog.DependencyOrder([]string{"daily_price", "cash_flow", "company"})
		Expect(order).To(Equal([]string{"company", "cash_flow", "daily_price"}))
	})

	It("places unknown tables last", func() {
		catalog := schema.NewCatalog(schema.TableSchema{Name: "company"})
		Expect(catalog.DependencyOrder([]string{"extra", "company"})).To(Equal([]string{"company", "extra"}))
	})

	It("breaks reference cycles by declaration order", func() {
		catalog := schema.NewCatalog(
			schema.TableSchema{Name: "a", References: []string{"b"}},
			schema.TableSchema{Name: "b", References: []string{"a"}},
		)
		Expect(catalog.DependencyOrder([]string{"b", "a"})).To(Equal([]string{"a", "b"}))
	})
})
