package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/money"
)

// LateFee is the accrual computed for an overdue principal at a reference date.
type LateFee struct {
	MonthsLate    int
	Amount        decimal.Decimal
	TotalWithLate decimal.Decimal
}

// CalculateLateFee computes the late fee for principal given the settlement's
// second due date, a reference date and a monthly rate in percent.
//
// The months-late count is the whole calendar-month difference between the
// month of secondDue and the month of reference, floored at 0. Day-of-month is
// ignored on purpose: a due date on the 28th with a reference on the 1st of
// the next month already counts one month late. Accrual is linear, not
// compounding. A nil secondDue means no late fee accrues.
func CalculateLateFee(principal decimal.Decimal, secondDue *time.Time, reference time.Time, ratePercent decimal.Decimal) LateFee {
	if secondDue == nil {
		return LateFee{MonthsLate: 0, Amount: decimal.Zero, TotalWithLate: money.Round2(principal)}
	}

	monthsLate := monthsBetween(*secondDue, reference)
	rate := money.Max0(ratePercent).Div(decimal.NewFromInt(100))
	amount := money.Round2(principal.Mul(rate).Mul(decimal.NewFromInt(int64(monthsLate))))
	return LateFee{
		MonthsLate:    monthsLate,
		Amount:        amount,
		TotalWithLate: money.Round2(principal.Add(amount)),
	}
}

func monthsBetween(from, to time.Time) int {
	fy, fm, _ := from.UTC().Date()
	ty, tm, _ := to.UTC().Date()
	n := (ty-fy)*12 + int(tm) - int(fm)
	if n < 0 {
		return 0
	}
	return n
}
