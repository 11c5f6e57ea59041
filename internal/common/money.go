package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a monetary value in minor units (cents).
type Money = int64

// ParseDecimalMinor converts a decimal amount string ("30.00", "15") into
// minor units. Used at the API boundary where clients submit decimal prices.
func ParseDecimalMinor(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return FloatToMinor(f), nil
}

// FloatToMinor converts a decimal amount to minor units, rounding half away
// from zero.
func FloatToMinor(v float64) Money {
	return Money(math.Round(v * 100))
}

// FormatMinor renders minor units as a decimal string with two places.
func FormatMinor(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

// VATOf computes VAT over a minor-unit base at the given basis-point rate,
// rounding half up. Computed once over the accumulated base, never per line,
// to avoid compounding rounding drift.
func VATOf(base Money, rateBps int) Money {
	if base <= 0 || rateBps <= 0 {
		return 0
	}
	return (base*Money(rateBps) + 5000) / 10000
}

// AbsDiff returns the absolute difference between two amounts.
func AbsDiff(a, b Money) Money {
	if a > b {
		return a - b
	}
	return b - a
}
