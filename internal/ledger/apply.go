package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"condoledger/internal/money"
)

// ArrearsAllocation records how much of one overdue period was retired and by
// which funding source.
type ArrearsAllocation struct {
	ChargeID             int64           `json:"chargeId"`
	SettlementID         int64           `json:"settlementId"`
	Month                int             `json:"month"`
	Year                 int             `json:"year"`
	PrincipalFromPayment decimal.Decimal `json:"principalFromPayment"`
	PrincipalFromCredit  decimal.Decimal `json:"principalFromCredit"`
	LateFromPayment      decimal.Decimal `json:"lateFromPayment"`
	LateFromCredit       decimal.Decimal `json:"lateFromCredit"`
	Total                decimal.Decimal `json:"total"`
}

// ForwardAllocation records credit applied to a not-yet-due charge.
type ForwardAllocation struct {
	ChargeID         int64           `json:"chargeId"`
	SettlementID     int64           `json:"settlementId"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	Applied          decimal.Decimal `json:"applied"`
	TotalToPayBefore decimal.Decimal `json:"totalToPayBefore"`
	TotalToPayAfter  decimal.Decimal `json:"totalToPayAfter"`
}

type arrearsApplication struct {
	TotalApplied         decimal.Decimal
	FromPayment          decimal.Decimal
	FromCredit           decimal.Decimal
	RemainingFromPayment decimal.Decimal
	RemainingFromCredit  decimal.Decimal
	Allocations          []ArrearsAllocation
}

type forwardApplication struct {
	TotalApplied decimal.Decimal
	Remaining    decimal.Decimal
	Allocations  []ForwardAllocation
}

func newMovement(unitID int64, paymentID, settlementID, chargeID *int64, amount decimal.Decimal, typ MovementType, description string) *CreditMovement {
	return &CreditMovement{
		UnitID:       unitID,
		PaymentID:    paymentID,
		SettlementID: settlementID,
		ChargeID:     chargeID,
		Reference:    uuid.NewString(),
		Amount:       amount,
		Type:         typ,
		Description:  description,
	}
}

// applyFundsToArrears waterfalls two funding sources across the unit's
// overdue periods, oldest first, principal before late fee within each
// period. Payment funds are drawn before credit funds. Payment-funded
// applications create a synthetic payment row for audit (when a receipt is
// given); credit-funded applications append a DEBIT movement, keyed to
// movementPaymentID when the application belongs to a recorded payment.
func applyFundsToArrears(ctx context.Context, s Store, unitID int64, reference time.Time, fromPayment, fromCredit decimal.Decimal, paymentDate time.Time, receipt, notes string, movementPaymentID *int64) (*arrearsApplication, error) {
	res := &arrearsApplication{
		TotalApplied:         decimal.Zero,
		FromPayment:          decimal.Zero,
		FromCredit:           decimal.Zero,
		RemainingFromPayment: money.Round2(money.Max0(fromPayment)),
		RemainingFromCredit:  money.Round2(money.Max0(fromCredit)),
	}

	items, err := arrearsCharges(ctx, s, unitID, reference)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if !res.RemainingFromPayment.IsPositive() && !res.RemainingFromCredit.IsPositive() {
			break
		}
		pendingPrincipal := item.pendingPrincipal
		pendingLate := item.pendingLate
		pendingTotal := pendingPrincipal.Add(pendingLate)
		if !pendingTotal.IsPositive() {
			continue
		}

		takeFromPayment := money.Min(res.RemainingFromPayment, pendingTotal)
		res.RemainingFromPayment = money.Round2(res.RemainingFromPayment.Sub(takeFromPayment))

		takeFromCredit := money.Min(res.RemainingFromCredit, pendingTotal.Sub(takeFromPayment))
		res.RemainingFromCredit = money.Round2(res.RemainingFromCredit.Sub(takeFromCredit))

		principalFromPayment := money.Min(takeFromPayment, pendingPrincipal)
		pendingPrincipal = money.Round2(pendingPrincipal.Sub(principalFromPayment))
		lateFromPayment := money.Min(takeFromPayment.Sub(principalFromPayment), pendingLate)
		pendingLate = money.Round2(pendingLate.Sub(lateFromPayment))

		principalFromCredit := money.Min(takeFromCredit, pendingPrincipal)
		pendingPrincipal = money.Round2(pendingPrincipal.Sub(principalFromCredit))
		lateFromCredit := money.Min(takeFromCredit.Sub(principalFromCredit), pendingLate)
		pendingLate = money.Round2(pendingLate.Sub(lateFromCredit))

		principalApplied := money.Round2(principalFromPayment.Add(principalFromCredit))
		lateApplied := money.Round2(lateFromPayment.Add(lateFromCredit))
		appliedTotal := money.Round2(principalApplied.Add(lateApplied))
		if !appliedTotal.IsPositive() {
			continue
		}

		charge := item.cws.Charge
		newPrincipalPaid := money.Round2(charge.PrincipalPaid.Add(principalApplied))
		newLatePaid := money.Round2(charge.LateFeePaid.Add(lateApplied))
		effectiveTotal := money.Max0(money.Round2(item.baseDebt.Sub(item.discountUsed)))
		totalToPay := money.Max0(money.Round2(effectiveTotal.Sub(newPrincipalPaid)))
		lateRemaining := money.Max0(money.Round2(charge.LateFeeAmount.Sub(newLatePaid)))

		status := charge.Status
		switch {
		case !totalToPay.IsPositive() && !lateRemaining.IsPositive():
			status = ChargeStatusPaid
		case totalToPay.LessThan(effectiveTotal) || newPrincipalPaid.IsPositive():
			status = ChargeStatusPartial
		}

		if err := s.UpdateChargeTotals(ctx, charge.ID, newPrincipalPaid, newLatePaid, totalToPay, status); err != nil {
			return nil, err
		}

		paidFromPayment := money.Round2(principalFromPayment.Add(lateFromPayment))
		if paidFromPayment.IsPositive() && receipt != "" {
			p := &Payment{
				SettlementID:    charge.SettlementID,
				UnitID:          unitID,
				Amount:          paidFromPayment,
				LateFeeApplied:  lateFromPayment,
				ReceiptNumber:   receipt,
				PaymentDate:     paymentDate,
				Notes:           notes,
				Status:          PaymentStatusCompleted,
				DiscountApplied: decimal.Zero,
			}
			if err := s.InsertPayment(ctx, p); err != nil {
				return nil, err
			}
		}

		usedFromCredit := money.Round2(principalFromCredit.Add(lateFromCredit))
		if usedFromCredit.IsPositive() {
			settlementID := charge.SettlementID
			chargeID := charge.ID
			desc := fmt.Sprintf("Applied to arrears %d/%d", item.cws.Settlement.Month, item.cws.Settlement.Year)
			if err := s.InsertCreditMovement(ctx, newMovement(unitID, movementPaymentID, &settlementID, &chargeID, usedFromCredit, MovementDebit, desc)); err != nil {
				return nil, err
			}
		}

		res.Allocations = append(res.Allocations, ArrearsAllocation{
			ChargeID:             charge.ID,
			SettlementID:         charge.SettlementID,
			Month:                item.cws.Settlement.Month,
			Year:                 item.cws.Settlement.Year,
			PrincipalFromPayment: principalFromPayment,
			PrincipalFromCredit:  principalFromCredit,
			LateFromPayment:      lateFromPayment,
			LateFromCredit:       lateFromCredit,
			Total:                appliedTotal,
		})
		res.TotalApplied = money.Round2(res.TotalApplied.Add(appliedTotal))
		res.FromPayment = money.Round2(res.FromPayment.Add(paidFromPayment))
		res.FromCredit = money.Round2(res.FromCredit.Add(usedFromCredit))
	}

	return res, nil
}

// upcoming reports whether a charge is not yet overdue at reference: its
// second due date is on/after reference, or, without due dates, its period is
// the reference month or later.
func upcoming(cws ChargeWithSettlement, reference time.Time) bool {
	if cws.Settlement.DueDate2 != nil {
		return !cws.Settlement.DueDate2.Before(reference)
	}
	periodStart := time.Date(cws.Settlement.Year, time.Month(cws.Settlement.Month), 1, 0, 0, 0, 0, time.UTC)
	referenceMonth := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, time.UTC)
	return !periodStart.Before(referenceMonth)
}

// applyCreditForward spends remaining credit against not-yet-due charges,
// oldest first, appending a DEBIT movement per application.
func applyCreditForward(ctx context.Context, s Store, unitID int64, reference time.Time, available decimal.Decimal, movementPaymentID *int64) (*forwardApplication, error) {
	res := &forwardApplication{
		TotalApplied: decimal.Zero,
		Remaining:    money.Round2(money.Max0(available)),
	}
	if !res.Remaining.IsPositive() {
		return res, nil
	}

	charges, err := s.OpenCharges(ctx, unitID)
	if err != nil {
		return nil, err
	}

	for _, cws := range charges {
		if !res.Remaining.IsPositive() {
			break
		}
		if !upcoming(cws, reference) {
			continue
		}
		pending := money.Round2(cws.TotalToPay)
		if !pending.IsPositive() {
			continue
		}
		applied := money.Min(res.Remaining, pending)
		newPrincipalPaid := money.Round2(cws.PrincipalPaid.Add(applied))
		newTotal := money.Round2(pending.Sub(applied))
		status := ChargeStatusPartial
		if !newTotal.IsPositive() {
			status = ChargeStatusPaid
		}
		if err := s.UpdateChargeTotals(ctx, cws.ID, newPrincipalPaid, cws.LateFeePaid, newTotal, status); err != nil {
			return nil, err
		}

		settlementID := cws.SettlementID
		chargeID := cws.ID
		desc := fmt.Sprintf("Applied to settlement %d/%d", cws.Settlement.Month, cws.Settlement.Year)
		if err := s.InsertCreditMovement(ctx, newMovement(unitID, movementPaymentID, &settlementID, &chargeID, applied, MovementDebit, desc)); err != nil {
			return nil, err
		}

		res.Allocations = append(res.Allocations, ForwardAllocation{
			ChargeID:         cws.ID,
			SettlementID:     cws.SettlementID,
			Month:            cws.Settlement.Month,
			Year:             cws.Settlement.Year,
			Applied:          applied,
			TotalToPayBefore: pending,
			TotalToPayAfter:  newTotal,
		})
		res.TotalApplied = money.Round2(res.TotalApplied.Add(applied))
		res.Remaining = money.Round2(res.Remaining.Sub(applied))
	}

	return res, nil
}

// CreditSyncResult summarizes an apply-available-credit run.
type CreditSyncResult struct {
	AppliedToArrears    decimal.Decimal     `json:"appliedToArrears"`
	ArrearsAllocations  []ArrearsAllocation `json:"arrearsAllocations"`
	AppliedToUpcoming   decimal.Decimal     `json:"appliedToUpcoming"`
	UpcomingAllocations []ForwardAllocation `json:"upcomingAllocations"`
	CreditBalance       decimal.Decimal     `json:"creditBalance"`
}

// ApplyAvailableCredit spends the unit's stored credit balance across arrears
// (oldest first, principal before late fee) and then forward across upcoming
// charges, writing the residual back as the new balance.
func ApplyAvailableCredit(ctx context.Context, s Store, unitID int64, reference time.Time) (*CreditSyncResult, error) {
	unit, err := s.UnitForUpdate(ctx, unitID)
	if err != nil {
		return nil, err
	}

	balance := money.Round2(unit.CreditBalance)
	if !balance.IsPositive() {
		return &CreditSyncResult{
			AppliedToArrears:  decimal.Zero,
			AppliedToUpcoming: decimal.Zero,
			CreditBalance:     balance,
		}, nil
	}

	app, err := applyFundsToArrears(ctx, s, unitID, reference, decimal.Zero, balance, reference, "", "", nil)
	if err != nil {
		return nil, err
	}

	fw, err := applyCreditForward(ctx, s, unitID, reference, app.RemainingFromCredit, nil)
	if err != nil {
		return nil, err
	}

	if err := s.SetUnitCreditBalance(ctx, unitID, fw.Remaining); err != nil {
		return nil, err
	}

	return &CreditSyncResult{
		AppliedToArrears:    app.TotalApplied,
		ArrearsAllocations:  app.Allocations,
		AppliedToUpcoming:   fw.TotalApplied,
		UpcomingAllocations: fw.Allocations,
		CreditBalance:       fw.Remaining,
	}, nil
}

// DebtorFundsInput is a payment taken directly against a unit's arrears, with
// the unit's stored credit drawn in parallel.
type DebtorFundsInput struct {
	UnitID        int64
	Amount        decimal.Decimal
	ReceiptNumber string
	PaymentDate   time.Time
	Notes         string
}

type DebtorFundsResult struct {
	Amount              decimal.Decimal     `json:"amount"`
	ArrearsBefore       decimal.Decimal     `json:"arrearsBefore"`
	ArrearsAfter        decimal.Decimal     `json:"arrearsAfter"`
	AppliedToArrears    decimal.Decimal     `json:"appliedToArrears"`
	AppliedFromPayment  decimal.Decimal     `json:"appliedFromPayment"`
	AppliedFromCredit   decimal.Decimal     `json:"appliedFromCredit"`
	ArrearsAllocations  []ArrearsAllocation `json:"arrearsAllocations"`
	AppliedToUpcoming   decimal.Decimal     `json:"appliedToUpcoming"`
	UpcomingAllocations []ForwardAllocation `json:"upcomingAllocations"`
	CreditBalance       decimal.Decimal     `json:"creditBalance"`
}

// ApplyDebtorFunds runs the debtor-payment entry point: arrears oldest first
// funded by the fresh payment and the stored credit in parallel, surplus
// converted to credit, then the forward pass.
func ApplyDebtorFunds(ctx context.Context, s Store, in DebtorFundsInput) (*DebtorFundsResult, error) {
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

	before, err := UnitArrears(ctx, s, in.UnitID, in.PaymentDate)
	if err != nil {
		return nil, err
	}

	app, err := applyFundsToArrears(ctx, s, in.UnitID, in.PaymentDate, amount, money.Round2(unit.CreditBalance), in.PaymentDate, in.ReceiptNumber, in.Notes, nil)
	if err != nil {
		return nil, err
	}

	pool := app.RemainingFromCredit
	if app.RemainingFromPayment.IsPositive() {
		desc := fmt.Sprintf("Surplus from debtor payment - receipt %s", in.ReceiptNumber)
		if err := s.InsertCreditMovement(ctx, newMovement(in.UnitID, nil, nil, nil, app.RemainingFromPayment, MovementCredit, desc)); err != nil {
			return nil, err
		}
		pool = money.Round2(pool.Add(app.RemainingFromPayment))
	}

	fw, err := applyCreditForward(ctx, s, in.UnitID, in.PaymentDate, pool, nil)
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

	return &DebtorFundsResult{
		Amount:              amount,
		ArrearsBefore:       before.Total,
		ArrearsAfter:        after.Total,
		AppliedToArrears:    app.TotalApplied,
		AppliedFromPayment:  app.FromPayment,
		AppliedFromCredit:   app.FromCredit,
		ArrearsAllocations:  app.Allocations,
		AppliedToUpcoming:   fw.TotalApplied,
		UpcomingAllocations: fw.Allocations,
		CreditBalance:       fw.Remaining,
	}, nil
}
