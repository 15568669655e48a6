// Package money converts wallet amounts between minor units and decimal major units.
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Digits after the decimal point of the wallet currency
const MinorExponent = 2

var (
	ErrTooPrecise = errors.New("amount has more fractional digits than the currency allows")
	ErrOverflow   = errors.New("amount is out of range")
)

var (
	minorScale = decimal.New(1, MinorExponent)
	maxMinor   = decimal.New(math.MaxInt64, 0)
	minMinor   = decimal.New(math.MinInt64, 0)
)

// ToMajor turns 4599 into 45.99
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorExponent)
}

// FromMajor turns 45.99 into 4599
func FromMajor(major decimal.Decimal) (int64, error) {
	minor := major.Mul(minorScale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrOverflow
	}

	return minor.IntPart(), nil
}

// Points earned for spending minor units at rate points per major unit, rounded down
func Points(minor int64, rate decimal.Decimal) int64 {
	if minor < 0 {
		minor = -minor
	}
	return ToMajor(minor).Mul(rate).Floor().IntPart()
}
