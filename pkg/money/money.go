// Package money is the single conversion point between decimal major units, as
// they arrive at the HTTP edge and leave towards the gateway, and the int64 minor
// units (kopeks, cents) used everywhere else.
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// minorExponent is the number of minor-unit digits of every supported currency (RUB, USD, EUR).
const minorExponent = 2

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountTooLarge = errors.New("amount is too large")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor converts a major-unit amount to minor units as round(amount * 100),
// rounding half away from zero.
func ToMinor(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	minor := amount.Shift(minorExponent).Round(0)
	if minor.GreaterThan(maxMinor) {
		return 0, ErrAmountTooLarge
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back to a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorExponent)
}

// Format renders minor units as a fixed two-decimal major-unit string, e.g. 12345 -> "123.45".
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(minorExponent)
}

// HasMinorPrecision reports whether amount has no more fractional digits than the
// currency's minor unit allows.
func HasMinorPrecision(amount decimal.Decimal) bool {
	return amount.Shift(minorExponent).IsInteger()
}
