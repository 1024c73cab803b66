// Package money holds the presentation boundary for monetary values: rounding
// and human-readable formatting. Calculations elsewhere stay at full precision.
package money

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const places = 2

// Round rounds d to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// Format renders d with thousands separators and exactly two decimals, e.g. "2,612.50".
func Format(d decimal.Decimal) string {
	f, _ := Round(d).Float64()
	return humanize.FormatFloat("#,###.##", f)
}
