package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/billing"
	"condoledger/internal/money"
)

// ArrearsPeriod is one overdue billing period in a unit's arrears detail.
type ArrearsPeriod struct {
	ChargeID         int64           `json:"chargeId"`
	SettlementID     int64           `json:"settlementId"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	DueDate2         *time.Time      `json:"dueDate2,omitempty"`
	PreviousBalance  decimal.Decimal `json:"previousBalance"`
	CurrentFee       decimal.Decimal `json:"currentFee"`
	OriginalDebt     decimal.Decimal `json:"originalDebt"`
	DiscountApplied  decimal.Decimal `json:"discountApplied"`
	PrincipalPaid    decimal.Decimal `json:"principalPaid"`
	PendingPrincipal decimal.Decimal `json:"pendingPrincipal"`
	LateFeeRate      decimal.Decimal `json:"lateFeeRate"`
	MonthsLate       int             `json:"monthsLate"`
	LateFeeTotal     decimal.Decimal `json:"lateFeeTotal"`
	LateFeePending   decimal.Decimal `json:"lateFeePending"`
	TotalPending     decimal.Decimal `json:"totalPending"`
}

// ArrearsSummary aggregates a unit's overdue periods at a reference date.
type ArrearsSummary struct {
	UnitID  int64           `json:"unitId"`
	Total   decimal.Decimal `json:"total"`
	Periods []ArrearsPeriod `json:"periods"`
}

type arrearsItem struct {
	cws              ChargeWithSettlement
	discountUsed     decimal.Decimal
	baseDebt         decimal.Decimal
	pendingPrincipal decimal.Decimal
	pendingLate      decimal.Decimal
}

// arrearsCharges selects every overdue charge with something pending, freezing
// late fees lazily on first read past the second due date. The freeze is a
// one-shot transition: a charge with LateFeeFrozenAt set is never recomputed,
// so repeated calls at the same or later reference dates are stable.
func arrearsCharges(ctx context.Context, s Store, unitID int64, reference time.Time) ([]arrearsItem, error) {
	charges, err := s.OverdueCharges(ctx, unitID, reference)
	if err != nil {
		return nil, err
	}

	var out []arrearsItem
	for _, cws := range charges {
		discountUsed, err := s.DiscountUsed(ctx, cws.SettlementID, cws.UnitID)
		if err != nil {
			return nil, err
		}

		baseDebt := money.Round2(cws.PreviousBalance.Add(cws.CurrentFee))
		pendingPrincipal := money.Max0(money.Round2(baseDebt.Sub(discountUsed).Sub(cws.PrincipalPaid)))

		if pendingPrincipal.IsPositive() && cws.LateFeeFrozenAt == nil && cws.Settlement.DueDate2 != nil && !reference.Before(*cws.Settlement.DueDate2) {
			fee := billing.CalculateLateFee(pendingPrincipal, cws.Settlement.DueDate2, reference, cws.Settlement.LateFeeRate)
			if err := s.FreezeChargeLateFee(ctx, cws.ID, reference, fee.MonthsLate, fee.Amount); err != nil {
				return nil, err
			}
			frozenAt := reference
			cws.LateFeeFrozenAt = &frozenAt
			cws.LateFeeMonths = fee.MonthsLate
			cws.LateFeeAmount = fee.Amount
		}

		pendingLate := money.Max0(money.Round2(cws.LateFeeAmount.Sub(cws.LateFeePaid)))
		if !pendingPrincipal.IsPositive() && cws.Status == ChargeStatusPaid {
			// A settled charge does not keep chasing residual late fee.
			pendingLate = decimal.Zero
		}
		if !pendingPrincipal.IsPositive() && !pendingLate.IsPositive() {
			continue
		}

		out = append(out, arrearsItem{
			cws:              cws,
			discountUsed:     discountUsed,
			baseDebt:         baseDebt,
			pendingPrincipal: pendingPrincipal,
			pendingLate:      pendingLate,
		})
	}
	return out, nil
}

// UnitArrears returns the unit's per-period arrears detail at reference.
// Safe to call repeatedly: apart from the one-shot late-fee freeze it mutates
// nothing.
func UnitArrears(ctx context.Context, s Store, unitID int64, reference time.Time) (*ArrearsSummary, error) {
	items, err := arrearsCharges(ctx, s, unitID, reference)
	if err != nil {
		return nil, err
	}

	summary := &ArrearsSummary{UnitID: unitID, Total: decimal.Zero}
	for _, item := range items {
		totalPending := money.Round2(item.pendingPrincipal.Add(item.pendingLate))
		principalPaid := money.Round2(money.Max0(money.Min(
			item.cws.PrincipalPaid,
			money.Round2(item.baseDebt.Sub(item.discountUsed)),
		)))
		summary.Periods = append(summary.Periods, ArrearsPeriod{
			ChargeID:         item.cws.ID,
			SettlementID:     item.cws.SettlementID,
			Month:            item.cws.Settlement.Month,
			Year:             item.cws.Settlement.Year,
			DueDate2:         item.cws.Settlement.DueDate2,
			PreviousBalance:  item.cws.PreviousBalance,
			CurrentFee:       item.cws.CurrentFee,
			OriginalDebt:     item.baseDebt,
			DiscountApplied:  item.discountUsed,
			PrincipalPaid:    principalPaid,
			PendingPrincipal: item.pendingPrincipal,
			LateFeeRate:      item.cws.Settlement.LateFeeRate,
			MonthsLate:       item.cws.LateFeeMonths,
			LateFeeTotal:     item.cws.LateFeeAmount,
			LateFeePending:   item.pendingLate,
			TotalPending:     totalPending,
		})
		summary.Total = money.Round2(summary.Total.Add(totalPending))
	}
	return summary, nil
}
