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
package data_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pvfin/data"
	"github.com/penny-vault/pvfin/schema"
)

var priceSchema = schema.TableSchema{
	Name:    "daily_price",
	Columns: []string{"ticker", "date", "close", "volume", "adjusted", "note"},
	ColumnTypes: map[string]string{
		"ticker":   "TEXT",
		"date":     "DATE",
		"close":    "DOUBLE PRECISION",
		"volume":   "BIGINT",
		"adjusted": "BOOLEAN",
	},
	PrimaryKeys: []string{"ticker", "date"},
}

var _ = Describe("Coerce", func() {
	It("converts text values to the declared column types", func() {
		tbl := data.NewTable(priceSchema.Columns...)
		tbl.AppendRow(data.Value("ACB"), data.Value("2024-01-05T00:00:00.000Z"), data.Value("24.15"), data.Value("1200"), data.Value("true"), data.Value(7.0))

		coerced, err := data.Coerce(tbl, priceSchema)
		Expect(err).NotTo(HaveOccurred())
		Expect(coerced.Rows[0]).To(Equal([]data.Cell{
			data.Value("ACB"),
			data.Value(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
			data.Value(24.15),
			data.Value(int64(1200)),
			data.Value(true),
			data.Value(7.0),
		}))
	})

	It("turns empty strings in typed columns into null", func() {
		tbl := data.NewTable(priceSchema.Columns...)
		tbl.AppendRow(data.Value(""), data.Value("2024-01-05"), data.Value(""), data.Value(" "), data.Null(), data.Value(""))

		coerced, err := data.Coerce(tbl, priceSchema)
		Expect(err).NotTo(HaveOccurred())
		Expect(coerced.Get(0, "ticker")).To(Equal(data.Value("")))
		Expect(coerced.Get(0, "close").IsNull()).To(BeTrue())
		Expect(coerced.Get(0, "volume").IsNull()).To(BeTrue())
		Expect(coerced.Get(0, "adjusted").IsNull()).To(BeTrue())
		Expect(coerced.Get(0, "note")).To(Equal(data.Value("")))
	})

	It("converts whole floats to integers", func() {
		tbl := data.NewTable("ticker", "year", "quarter", "amount")
		tbl.AppendRow(data.Value("ACB"), data.Value(2023.0), data.Value(int64(5)), data.Value(int64(100)))

		coerced, err := data.Coerce(tbl, cashFlowSchema)
		Expect(err).NotTo(HaveOccurred())
		Expect(coerced.Get(0, "year")).To(Equal(data.Value(int64(2023))))
		Expect(coerced.Get(0, "amount")).To(Equal(data.Value(100.0)))
	})

	It("reads unix seconds, numeric text and flags", func() {
		tbl := data.NewTable(priceSchema.Columns...)
		tbl.AppendRow(data.Value("ACB"), data.Value(int64(1704412800)), data.Value(int64(24)), data.Value("1200.0"), data.Value("1"))

		coerced, err := data.Coerce(tbl, priceSchema)
		Expect(err).NotTo(HaveOccurred())
		Expect(coerced.Get(0, "date")).To(Equal(data.Value(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))))
		Expect(coerced.Get(0, "close")).To(Equal(data.Value(24.0)))
		Expect(coerced.Get(0, "volume")).To(Equal(data.Value(int64(1200))))
		Expect(coerced.Get(0, "adjusted")).To(Equal(data.Value(true)))
	})

	It("rejects fractions and flags in integer columns", func() {
		for _, val := range []any{"1200.5", 3.25, true} {
			tbl := data.NewTable("ticker", "volume")
			tbl.AppendRow(data.Value("ACB"), data.Value(val))

			_, err := data.Coerce(tbl, priceSchema)
			Expect(err).To(MatchError(data.ErrCoerce))
		}
	})

	It("names the column that cannot be converted", func() {
		tbl := data.NewTable(priceSchema.Columns...)
		tbl.AppendRow(data.Value("ACB"), data.Value("yesterday"))

		_, err := data.Coerce(tbl, priceSchema)
		Expect(err).To(MatchError(data.ErrCoerce))
		Expect(err.Error()).To(ContainSubstring("date"))
	})

	It("does not modify its input", func() {
		tbl := data.NewTable(priceSchema.Columns...)
		tbl.AppendRow(data.Value("ACB"), data.Value("2024-01-05"))

		_, err := data.Coerce(tbl, priceSchema)
		Expect(err).NotTo(HaveOccurred())
		Expect(tbl.Get(0, "date")).To(Equal(data.Value("2024-01-05")))
	})
})

var _ = Describe("Dimensions", func() {
	It("builds five quarters", func() {
		quarters := data.Quarters()
		Expect(quarters.Len()).To(Equal(5))
		Expect(quarters.Get(4, "quarter")).To(Equal(data.Value(int64(data.AnnualQuarter))))
	})

	It("builds an inclusive range of years", func() {
		years := data.Years(2013, 2024)
		Expect(years.Len()).To(Equal(12))
		Expect(years.Get(0, "year")).To(Equal(data.Value(int64(2013))))
	})

	It("builds one row per day with its year", func() {
		dates := data.Dates(time.Date(2023, 12, 30, 15, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
		Expect(dates.Len()).To(Equal(4))
		Expect(dates.Get(0, "date")).To(Equal(data.Value(time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC))))
		Expect(dates.Get(3, "year")).To(Equal(data.Value(int64(2024))))
	})
})
