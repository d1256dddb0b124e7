package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// ComputePay returns floor(hours * hourlyRate) in minor currency units.
// Multiplies before dividing; hours are never rounded.
func ComputePay(worked time.Duration, hourlyRate int64) int64 {
	if worked <= 0 || hourlyRate <= 0 {
		return 0
	}
	return decimal.NewFromInt(worked.Nanoseconds()).
		Mul(decimal.NewFromInt(hourlyRate)).
		Div(nanosPerHour).
		Floor().
		IntPart()
}

// HoursWorked rounds a duration to hours with two decimals.
func HoursWorked(worked time.Duration) float64 {
	if worked <= 0 {
		return 0
	}
	return decimal.NewFromInt(worked.Nanoseconds()).
		Div(nanosPerHour).
		Round(2).
		InexactFloat64()
}
