package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/billing"
	"condoledger/internal/money"
)

// AllocateInput is a payment targeted at one settlement charge.
type AllocateInput struct {
	UnitID        int64
	SettlementID  int64
	Amount        decimal.Decimal
	ReceiptNumber string
	PaymentDate   time.Time
	Notes         string
}

// AllocationSummary reports how a payment was waterfalled.
type AllocationSummary struct {
	PaymentID           int64               `json:"paymentId"`
	AppliedToPrevious   decimal.Decimal     `json:"appliedToPrevious"`
	AppliedToCurrent    decimal.Decimal     `json:"appliedToCurrent"`
	DiscountApplied     decimal.Decimal     `json:"discountApplied"`
	Excess              decimal.Decimal     `json:"excess"`
	AppliedToArrears    decimal.Decimal     `json:"appliedToArrears"`
	ArrearsAllocations  []ArrearsAllocation `json:"arrearsAllocations"`
	AppliedToUpcoming   decimal.Decimal     `json:"appliedToUpcoming"`
	UpcomingAllocations []ForwardAllocation `json:"upcomingAllocations"`
	ArrearsBefore       decimal.Decimal     `json:"arrearsBefore"`
	ArrearsAfter        decimal.Decimal     `json:"arrearsAfter"`
	CreditBalance       decimal.Decimal     `json:"creditBalance"`
	Charge              Charge              `json:"charge"`
}

// AllocatePayment runs the full waterfall for a payment against its targeted
// charge, in strict order: previous-period debt, current-period debt (with
// the early-payment discount), then the excess joins the unit's credit and
// flows through arrears (oldest first, principal before late fee) and
// forward to not-yet-due charges; the residual is stored as credit.
//
// Must run inside a single serializable transaction; on error nothing is
// persisted.
func AllocatePayment(ctx context.Context, s Store, in AllocateInput) (*AllocationSummary, error) {
	amount := money.Round2(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if in.ReceiptNumber == "" {
		return nil, ErrMissingReceipt
	}

	unit, err := s.UnitForUpdate(ctx, in.UnitID)
	if err != nil {
		return nil, err
	}
	settlement, err := s.Settlement(ctx, in.SettlementID)
	if err != nil {
		return nil, err
	}
	if unit.BuildingID != settlement.BuildingID {
		return nil, ErrBuildingMismatch
	}

	// Snapshot arrears first: this also freezes late fees lazily, so the
	// targeted charge is loaded after the freeze.
	before, err := UnitArrears(ctx, s, in.UnitID, in.PaymentDate)
	if err != nil {
		return nil, err
	}

	charge, err := s.ChargeForUpdate(ctx, in.SettlementID, in.UnitID)
	if err != nil {
		return nil, err
	}
	discountUsed, err := s.DiscountUsed(ctx, in.SettlementID, in.UnitID)
	if err != nil {
		return nil, err
	}

	portions := billing.ChargePortions(charge.PreviousBalance, charge.CurrentFee, charge.PrincipalPaid, discountUsed)
	appliedToPrevious := money.Min(amount, portions.PreviousOutstanding)
	remainder := money.Round2(amount.Sub(appliedToPrevious))

	discountStats := billing.DiscountState(charge.CurrentFee, discountUsed)
	discountNow := billing.EarlyPaymentDiscount(remainder, in.PaymentDate, settlement.DueDate1, portions.CurrentOutstandingNominal, discountStats.Remaining)
	appliedToCurrent := money.Min(remainder, money.Max0(money.Round2(portions.CurrentOutstandingNominal.Sub(discountNow))))
	excess := money.Round2(remainder.Sub(appliedToCurrent))

	appliedToCharge := money.Round2(appliedToPrevious.Add(appliedToCurrent))
	newPrincipalPaid := money.Round2(charge.PrincipalPaid.Add(appliedToCharge))
	totalDiscount := money.Round2(discountUsed.Add(discountNow))
	baseDebt := money.Round2(charge.PreviousBalance.Add(charge.CurrentFee))
	effectiveTotal := money.Max0(money.Round2(baseDebt.Sub(totalDiscount)))
	totalToPay := money.Max0(money.Round2(effectiveTotal.Sub(newPrincipalPaid)))

	status := ChargeStatusPending
	switch {
	case !totalToPay.IsPositive():
		status = ChargeStatusPaid
	case newPrincipalPaid.IsPositive():
		status = ChargeStatusPartial
	}

	payment := &Payment{
		SettlementID:    in.SettlementID,
		UnitID:          in.UnitID,
		Amount:          amount,
		LateFeeApplied:  decimal.Zero,
		ReceiptNumber:   in.ReceiptNumber,
		PaymentDate:     in.PaymentDate,
		Notes:           in.Notes,
		Status:          PaymentStatusCompleted,
		DiscountApplied: discountNow,
	}
	if err := s.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.UpdateChargeTotals(ctx, charge.ID, newPrincipalPaid, charge.LateFeePaid, totalToPay, status); err != nil {
		return nil, err
	}

	// The excess becomes credit, pooled with whatever the unit already had.
	pool := money.Round2(unit.CreditBalance)
	if excess.IsPositive() {
		settlementID := in.SettlementID
		desc := fmt.Sprintf("Overpayment - receipt %s", in.ReceiptNumber)
		if err := s.InsertCreditMovement(ctx, newMovement(in.UnitID, &payment.ID, &settlementID, nil, excess, MovementCredit, desc)); err != nil {
			return nil, err
		}
		pool = money.Round2(pool.Add(excess))
	}

	app, err := applyFundsToArrears(ctx, s, in.UnitID, in.PaymentDate, decimal.Zero, pool, in.PaymentDate, "", "", &payment.ID)
	if err != nil {
		return nil, err
	}

	fw, err := applyCreditForward(ctx, s, in.UnitID, in.PaymentDate, app.RemainingFromCredit, &payment.ID)
	if err != nil {
		return nil, err
	}

	if err := s.SetUnitCreditBalance(ctx, in.UnitID, fw.Remaining); err != nil {
		return nil, err
	}

	after, err := UnitArrears(ctx, s, in.UnitID, in.PaymentDate)
	if err != nil {
		return nil, err
	}
	updated, err := s.ChargeForUpdate(ctx, in.SettlementID, in.UnitID)
	if err != nil {
		return nil, err
	}

	return &AllocationSummary{
		PaymentID:           payment.ID,
		AppliedToPrevious:   appliedToPrevious,
		AppliedToCurrent:    appliedToCurrent,
		DiscountApplied:     discountNow,
		Excess:              excess,
		AppliedToArrears:    app.TotalApplied,
		ArrearsAllocations:  app.Allocations,
		AppliedToUpcoming:   fw.TotalApplied,
		UpcomingAllocations: fw.Allocations,
		ArrearsBefore:       before.Total,
		ArrearsAfter:        after.Total,
		CreditBalance:       fw.Remaining,
		Charge:              *updated,
	}, nil
}
