package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "PENDING"
	ChargeStatusPartial ChargeStatus = "PARTIAL"
	ChargeStatusPaid    ChargeStatus = "PAID"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

type MovementType string

const (
	MovementCredit MovementType = "CREDIT"
	MovementDebit  MovementType = "DEBIT"
)

// Unit is a billable unit of a building. CreditBalance is mutated only by the
// allocation engine, always inside the same transaction that appends the
// matching credit movements.
type Unit struct {
	ID            int64
	BuildingID    int64
	Code          string
	Percentage    decimal.Decimal
	CreditBalance decimal.Decimal
}

// Settlement is one billing period for a building.
type Settlement struct {
	ID           int64
	BuildingID   int64
	Month        int
	Year         int
	TotalExpense decimal.Decimal
	DueDate1     *time.Time
	DueDate2     *time.Time
	LateFeeRate  decimal.Decimal // percent per month
	CreatedAt    time.Time
}

// Charge is the per-unit obligation for a settlement. Once the second due
// date has passed and pending principal remains, the late fee is frozen:
// LateFeeFrozenAt, LateFeeMonths and LateFeeAmount are written exactly once
// and never recomputed.
type Charge struct {
	ID              int64
	SettlementID    int64
	UnitID          int64
	PreviousBalance decimal.Decimal
	CurrentFee      decimal.Decimal
	PrincipalPaid   decimal.Decimal
	LateFeePaid     decimal.Decimal
	TotalToPay      decimal.Decimal
	Status          ChargeStatus
	LateFeeFrozenAt *time.Time
	LateFeeMonths   int
	LateFeeAmount   decimal.Decimal
}

// Payment is the source of truth for cumulative principal paid on a charge.
// Amount is what was applied to the charge; LateFeeApplied is the part of
// Amount that retired late fee (zero for regular settlement payments).
type Payment struct {
	ID              int64
	SettlementID    int64
	UnitID          int64
	Amount          decimal.Decimal
	LateFeeApplied  decimal.Decimal
	ReceiptNumber   string
	PaymentDate     time.Time
	Notes           string
	Status          PaymentStatus
	DiscountApplied decimal.Decimal
	CanceledAt      *time.Time
	CreatedAt       time.Time
}

// CreditMovement is one row of the append-only credit audit trail. The signed
// sum of a unit's movements (CREDIT positive, DEBIT negative) always equals
// the unit's stored credit balance.
type CreditMovement struct {
	ID           int64
	UnitID       int64
	PaymentID    *int64
	SettlementID *int64
	ChargeID     *int64
	Reference    string
	Amount       decimal.Decimal
	Type         MovementType
	Description  string
	CreatedAt    time.Time
}

// ChargeWithSettlement joins a charge to its billing period for ordering and
// due-date checks.
type ChargeWithSettlement struct {
	Charge
	Settlement Settlement
}
