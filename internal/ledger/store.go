package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount  = errors.New("amount must be greater than zero")
	ErrMissingReceipt     = errors.New("receipt reference is required")
	ErrUnitNotFound       = errors.New("unit not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrChargeNotFound     = errors.New("charge not found for unit and settlement")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyCancelled   = errors.New("payment already cancelled")
	ErrBuildingMismatch   = errors.New("unit and settlement belong to different buildings")
)

// Store is the transactional persistence boundary the engine runs against.
// Implementations must scope every call to a single atomic unit of work: the
// postgres store wraps one pgx.Tx, the memory store is used by tests. Reads
// used for mutation must observe a consistent snapshot (the postgres store
// uses SELECT ... FOR UPDATE under a serializable transaction).
type Store interface {
	UnitForUpdate(ctx context.Context, unitID int64) (*Unit, error)
	SetUnitCreditBalance(ctx context.Context, unitID int64, balance decimal.Decimal) error

	Settlement(ctx context.Context, settlementID int64) (*Settlement, error)

	ChargeForUpdate(ctx context.Context, settlementID, unitID int64) (*Charge, error)
	// OverdueCharges returns the unit's charges whose settlement second due
	// date is set and on/before reference, oldest (year, month, charge id) first.
	OverdueCharges(ctx context.Context, unitID int64, reference time.Time) ([]ChargeWithSettlement, error)
	// OpenCharges returns the unit's charges with totalToPay > 0 and status not
	// PAID, oldest (year, month, charge id) first.
	OpenCharges(ctx context.Context, unitID int64) ([]ChargeWithSettlement, error)
	FreezeChargeLateFee(ctx context.Context, chargeID int64, frozenAt time.Time, monthsLate int, amount decimal.Decimal) error
	UpdateChargeTotals(ctx context.Context, chargeID int64, principalPaid, lateFeePaid, totalToPay decimal.Decimal, status ChargeStatus) error

	InsertPayment(ctx context.Context, p *Payment) error
	PaymentForUpdate(ctx context.Context, paymentID int64) (*Payment, error)
	MarkPaymentCancelled(ctx context.Context, paymentID int64, at time.Time) error
	// DiscountUsed is the sum of discountApplied over COMPLETED payments for
	// the (settlement, unit) pair.
	DiscountUsed(ctx context.Context, settlementID, unitID int64) (decimal.Decimal, error)

	InsertCreditMovement(ctx context.Context, m *CreditMovement) error
	PaymentCreditMovements(ctx context.Context, paymentID int64) ([]CreditMovement, error)
}
