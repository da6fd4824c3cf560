package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/money"
)

// CancellationResult is the reversed state after a payment cancellation.
type CancellationResult struct {
	Payment        Payment         `json:"payment"`
	Charge         Charge          `json:"charge"`
	CreditRestored decimal.Decimal `json:"creditRestored"`
	CreditReversed decimal.Decimal `json:"creditReversed"`
	CreditBalance  decimal.Decimal `json:"creditBalance"`
}

// CancelPayment reverses a completed payment: the charge is recomputed from
// scratch with the payment's principal, late-fee and discount contributions
// removed, credit the payment consumed is restored and credit it created is
// reversed. The movement log stays append-only: reversals are compensating
// rows keyed to the payment, so the signed movement sum still equals the
// stored balance at every step.
func CancelPayment(ctx context.Context, s Store, paymentID int64, at time.Time) (*CancellationResult, error) {
	payment, err := s.PaymentForUpdate(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == PaymentStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	charge, err := s.ChargeForUpdate(ctx, payment.SettlementID, payment.UnitID)
	if err != nil {
		return nil, err
	}
	unit, err := s.UnitForUpdate(ctx, payment.UnitID)
	if err != nil {
		return nil, err
	}

	if err := s.MarkPaymentCancelled(ctx, paymentID, at); err != nil {
		return nil, err
	}

	movements, err := s.PaymentCreditMovements(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	creditConsumed := decimal.Zero
	creditCreated := decimal.Zero
	for _, m := range movements {
		switch m.Type {
		case MovementDebit:
			creditConsumed = money.Round2(creditConsumed.Add(m.Amount))
		case MovementCredit:
			creditCreated = money.Round2(creditCreated.Add(m.Amount))
		}
	}

	// The payment's principal contribution to its charge is its cash amount
	// minus the late-fee part and minus what flowed to credit as overpayment.
	principalContribution := money.Max0(money.Round2(payment.Amount.Sub(payment.LateFeeApplied).Sub(creditCreated)))
	newPrincipalPaid := money.Max0(money.Round2(charge.PrincipalPaid.Sub(principalContribution)))
	newLatePaid := money.Max0(money.Round2(charge.LateFeePaid.Sub(payment.LateFeeApplied)))

	// DiscountUsed only counts COMPLETED payments, so after the cancellation
	// mark it already excludes this payment's discount.
	discountAfter, err := s.DiscountUsed(ctx, payment.SettlementID, payment.UnitID)
	if err != nil {
		return nil, err
	}

	baseDebt := money.Round2(charge.PreviousBalance.Add(charge.CurrentFee))
	effectiveTotal := money.Max0(money.Round2(baseDebt.Sub(discountAfter)))
	totalToPay := money.Max0(money.Round2(effectiveTotal.Sub(newPrincipalPaid)))
	lateRemaining := money.Max0(money.Round2(charge.LateFeeAmount.Sub(newLatePaid)))

	status := ChargeStatusPending
	switch {
	case !totalToPay.IsPositive() && !lateRemaining.IsPositive():
		status = ChargeStatusPaid
	case newPrincipalPaid.IsPositive():
		status = ChargeStatusPartial
	}

	if err := s.UpdateChargeTotals(ctx, charge.ID, newPrincipalPaid, newLatePaid, totalToPay, status); err != nil {
		return nil, err
	}

	balance := money.Round2(unit.CreditBalance)
	if creditConsumed.IsPositive() {
		settlementID := payment.SettlementID
		desc := fmt.Sprintf("Credit restored for cancelled payment %s", payment.ReceiptNumber)
		if err := s.InsertCreditMovement(ctx, newMovement(payment.UnitID, &payment.ID, &settlementID, nil, creditConsumed, MovementCredit, desc)); err != nil {
			return nil, err
		}
		balance = money.Round2(balance.Add(creditConsumed))
	}

	// Credit the payment created can only be reversed up to what is still in
	// the balance; if a later allocation already spent it, that part stands.
	creditReversed := money.Min(creditCreated, balance)
	if creditReversed.IsPositive() {
		settlementID := payment.SettlementID
		desc := fmt.Sprintf("Overpayment credit reversed for cancelled payment %s", payment.ReceiptNumber)
		if err := s.InsertCreditMovement(ctx, newMovement(payment.UnitID, &payment.ID, &settlementID, nil, creditReversed, MovementDebit, desc)); err != nil {
			return nil, err
		}
		balance = money.Round2(balance.Sub(creditReversed))
	}

	if err := s.SetUnitCreditBalance(ctx, payment.UnitID, balance); err != nil {
		return nil, err
	}

	cancelled, err := s.PaymentForUpdate(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	updated, err := s.ChargeForUpdate(ctx, payment.SettlementID, payment.UnitID)
	if err != nil {
		return nil, err
	}

	return &CancellationResult{
		Payment:        *cancelled,
		Charge:         *updated,
		CreditRestored: creditConsumed,
		CreditReversed: creditReversed,
		CreditBalance:  balance,
	}, nil
}
