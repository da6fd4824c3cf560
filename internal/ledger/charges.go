package ledger

import (
	"github.com/shopspring/decimal"

	"condoledger/internal/money"
)

// BuildCharge derives a unit's charge for a new settlement. The fee is the
// unit's percentage share of the settlement's total expense, rounded to two
// decimals. Carried-over debt lives in older charges, so a fresh charge starts
// with a zero previous balance.
func BuildCharge(settlement *Settlement, unit *Unit) *Charge {
	fee := money.Share(settlement.TotalExpense, unit.Percentage)
	return &Charge{
		SettlementID:    settlement.ID,
		UnitID:          unit.ID,
		PreviousBalance: decimal.Zero,
		CurrentFee:      fee,
		PrincipalPaid:   decimal.Zero,
		LateFeePaid:     decimal.Zero,
		TotalToPay:      fee,
		Status:          ChargeStatusPending,
		LateFeeAmount:   decimal.Zero,
	}
}
