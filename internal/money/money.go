package money

import (
	"github.com/shopspring/decimal"
)

// Amounts are decimal with 2-digit precision. Every intermediate result is
// rounded through Round2 before it is compared or persisted; the ledger
// invariants are defined in terms of that rounding.

// Round2 rounds to 2 decimal places, half away from zero. Ledger amounts are
// never negative, so this is round-half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Max0 clamps negative amounts to zero.
func Max0(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Share computes a proportional share of total: round2(total * percentage / 100).
func Share(total, percentage decimal.Decimal) decimal.Decimal {
	return Round2(total.Mul(percentage).Div(decimal.NewFromInt(100)))
}
