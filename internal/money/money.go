// Package money holds the monetary rules shared by the ledger: rounding,
// tolerance, currency conversion and tax.
package money

import "github.com/shopspring/decimal"

// Epsilon is the tolerance under which two money amounts are equal and a
// balance is considered settled.
const Epsilon = 0.01

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Settled reports whether v is within Epsilon of zero.
func Settled(v float64) bool {
	return v > -Epsilon && v < Epsilon
}

// Sum adds amounts in decimal space and rounds the result to two places.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// Sub returns a-b rounded to two places.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Mul returns a*b rounded to two places.
func Mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Percent returns base*(pct/100) rounded to two places.
func Percent(base, pct float64) float64 {
	return decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// Discounted returns base*(1-pct/100) without rounding, for rates that are
// multiplied further before being stored.
func Discounted(base, pct float64) float64 {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
	return decimal.NewFromFloat(base).Mul(factor).InexactFloat64()
}
