package domain

import (
	"fmt"
	"math"
)

// Money is a fixed-point monetary amount in minor currency units (cents).
// Arithmetic on Money is exact integer arithmetic; conversion to a
// two-decimal major-unit value happens only at the API boundary.
type Money int64

// MoneyFromMajor converts a major-unit amount (e.g. 40.00) to Money,
// rounding half away from zero at the second decimal.
func MoneyFromMajor(v float64) Money {
	return Money(math.Round(v * 100))
}

// Major returns the amount in major units as a float64 with two-decimal
// precision, matching the wire representation.
func (m Money) Major() float64 {
	return float64(m) / 100
}

// Mul scales the amount by an integer quantity.
func (m Money) Mul(quantity int) Money {
	return m * Money(quantity)
}

// String renders the amount as a plain two-decimal figure, e.g. "120.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
