// Package money wraps github.com/shopspring/decimal with the vocabulary
// spec.md §3 uses: Money, Price, Rate, Ratio, Notional are all arbitrary
// precision decimals. No monetary value anywhere in this module is a
// binary float; the only floats that survive are time-in-seconds and
// human-readable metric exports.
package money

import (
	"github.com/shopspring/decimal"
)

// Decimal is the one arithmetic type for anything denominated in an
// asset, a rate, or a ratio.
type Decimal = decimal.Decimal

// Zero, One and Hundred are reused constants to avoid re-allocating the
// same decimal.Decimal in hot paths.
var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
)

// SecondsPerDay expressed as a decimal, used throughout edge and
// borrow-cost annualization math (spec.md §4.6).
var SecondsPerDay = decimal.NewFromInt(86400)

// NewFromInt constructs a Decimal from an int64, e.g. for constants
// like "24" hours-per-day used in borrow-cost annualization.
func NewFromInt(i int64) Decimal { return decimal.NewFromInt(i) }

// FromFloat constructs a Decimal from a float64. Reserved for
// constructing values out of configuration defaults and test fixtures;
// never used on a value that has already passed through venue I/O.
func FromFloat(f float64) Decimal { return decimal.NewFromFloat(f) }

// FromString parses a decimal literal, returning an error rather than
// silently truncating precision — used by env.go's getEnvDecimal and by
// venue adapters parsing JSON numeric strings.
func FromString(s string) (Decimal, error) { return decimal.NewFromString(s) }

// BPS converts a basis-point count into its fractional Decimal (e.g. 50
// bps -> 0.0050).
func BPS(bps int64) Decimal {
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(10000))
}

// Abs returns the absolute value of d.
func Abs(d Decimal) Decimal { return d.Abs() }

// Max returns the greater of a, b.
func Max(a, b Decimal) Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the lesser of a, b.
func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// SafeDiv divides a by b, returning (result, ok=false) if b is zero
// instead of panicking or propagating an infinite/NaN value. Callers in
// edge, risk and margin treat ok=false as "unavailable" per spec.md §9's
// missing-data rule: skip the opportunity, never crash.
func SafeDiv(a, b Decimal) (Decimal, bool) {
	if b.IsZero() {
		return Zero, false
	}
	return a.Div(b), true
}
