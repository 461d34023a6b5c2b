// Package money holds the fixed-point arithmetic used for every amount,
// tax, commission and rate-card computation. Amounts are int64 minor units
// (cents); rates are basis points (10000 = 100%). All derived amounts
// round half-up, and only through the helpers here, so the same quantity
// computed on two paths can never round differently.
package money

import "fmt"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

// ApplyBps multiplies an amount in cents by a basis-point rate,
// rounding half-up. Non-positive inputs yield zero.
func ApplyBps(amountCents, rateBps int64) int64 {
	if amountCents <= 0 || rateBps <= 0 {
		return 0
	}
	return (amountCents*rateBps + BpsDenominator/2) / BpsDenominator
}

// PerMille converts a unit count into cents at a per-thousand rate
// (CPM pricing), rounding half-up.
func PerMille(count, rateCents int64) int64 {
	if count <= 0 || rateCents <= 0 {
		return 0
	}
	return (count*rateCents + 500) / 1_000
}

// ValidBps reports whether a rate is a usable fraction in [0, 100%].
func ValidBps(rateBps int64) bool {
	return rateBps >= 0 && rateBps <= BpsDenominator
}

// Format renders cents as a decimal string with two fraction digits.
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
