package payment

import "math"

// ToMinorUnits converts a decimal major-unit price into integer minor units
// (cents), rounding half away from zero.
func ToMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// FromMinorUnits converts minor units back into whole major units, as used by
// gateways that bill in currencies without a minor unit.
func FromMinorUnits(amount int64) int64 {
	return int64(math.Round(float64(amount) / 100))
}
