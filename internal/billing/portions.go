package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/money"
)

// EarlyPaymentDiscountRate is the share of the current-period fee that can be
// waived when the current portion is paid on or before the first due date.
var EarlyPaymentDiscountRate = decimal.RequireFromString("0.10")

// Portions splits a charge's state into derived outstanding amounts.
// Principal payments retire the carried-over balance first; only the excess
// counts against the current-period fee.
type Portions struct {
	PreviousOutstanding       decimal.Decimal
	CurrentPaid               decimal.Decimal
	CurrentOutstandingNominal decimal.Decimal
}

func ChargePortions(previousBalance, currentFee, principalPaid, discountApplied decimal.Decimal) Portions {
	prev := money.Max0(previousBalance)
	fee := money.Max0(currentFee)
	paid := money.Max0(principalPaid)
	discount := money.Max0(discountApplied)

	previousOutstanding := money.Max0(money.Round2(prev.Sub(paid)))
	currentPaid := money.Max0(money.Round2(paid.Sub(prev)))
	currentOutstanding := money.Max0(money.Round2(fee.Sub(currentPaid).Sub(discount)))

	return Portions{
		PreviousOutstanding:       previousOutstanding,
		CurrentPaid:               currentPaid,
		CurrentOutstandingNominal: currentOutstanding,
	}
}

// DiscountCap is the cumulative early-payment discount limit for a charge.
func DiscountCap(currentFee decimal.Decimal) decimal.Decimal {
	return money.Round2(money.Max0(currentFee).Mul(EarlyPaymentDiscountRate))
}

type DiscountStats struct {
	Cap       decimal.Decimal
	Used      decimal.Decimal
	Remaining decimal.Decimal
}

func DiscountState(currentFee, discountUsed decimal.Decimal) DiscountStats {
	cap := DiscountCap(currentFee)
	used := money.Min(cap, money.Max0(money.Round2(discountUsed)))
	return DiscountStats{
		Cap:       cap,
		Used:      used,
		Remaining: money.Max0(money.Round2(cap.Sub(used))),
	}
}

// EarlyPaymentDiscount returns the discount earned by a payment whose
// current-period portion is amountForCurrent. Zero unless the payment date is
// on or before the first due date, something is being paid toward the current
// period, and discount allowance remains.
func EarlyPaymentDiscount(amountForCurrent decimal.Decimal, paymentDate time.Time, firstDue *time.Time, currentOutstandingNominal, discountRemaining decimal.Decimal) decimal.Decimal {
	if firstDue == nil ||
		paymentDate.After(*firstDue) ||
		!amountForCurrent.IsPositive() ||
		!currentOutstandingNominal.IsPositive() ||
		!discountRemaining.IsPositive() {
		return decimal.Zero
	}
	return money.Min(discountRemaining, currentOutstandingNominal)
}
