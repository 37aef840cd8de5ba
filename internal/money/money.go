// Package money holds the fixed-point helpers every balance computation goes through.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round rounds x to two fractional digits, half away from zero
// (10.005 -> 10.01, 10.004 -> 10.00).
func Round(x decimal.Decimal) decimal.Decimal {
	return x.Round(2)
}

// Percent returns pct percent of x, rounded.
func Percent(x, pct decimal.Decimal) decimal.Decimal {
	return Round(x.Mul(pct).Div(hundred))
}

// Format renders x with exactly two fractional digits.
func Format(x decimal.Decimal) string {
	return Round(x).StringFixed(2)
}

// IsPositive reports whether x is still above zero once rounded to cents.
func IsPositive(x decimal.Decimal) bool {
	return Round(x).IsPositive()
}
