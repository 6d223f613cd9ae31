package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// QuantizeAmount rounds to 2 decimal places, half away from zero. Payout amounts are
// always positive, so this is round-half-up.
func QuantizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ToMinorUnits converts a monetary amount to integer cents. Callers must check
// FitsMinorUnits first; the extractor rejects amounts that do not fit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return QuantizeAmount(amount).Mul(hundred).IntPart()
}

// FitsMinorUnits reports whether amount, once quantized, is representable as an
// int64 count of cents.
func FitsMinorUnits(amount decimal.Decimal) bool {
	return QuantizeAmount(amount).Mul(hundred).BigInt().IsInt64()
}

// FromMinorUnits converts cents back to a 2-decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// SplitForCeiling returns the leg amounts for a capped payout: the whole amount when
// it is at or below ceiling, otherwise exactly two legs (ceiling, amount-ceiling).
// The second leg is not capped again.
func SplitForCeiling(amount, ceiling decimal.Decimal) []decimal.Decimal {
	amt := QuantizeAmount(amount)
	if amt.LessThanOrEqual(ceiling) {
		return []decimal.Decimal{amt}
	}
	return []decimal.Decimal{ceiling, amt.Sub(ceiling)}
}
