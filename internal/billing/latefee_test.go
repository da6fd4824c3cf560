package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateLateFee_ThreeMonths(t *testing.T) {
	due := date(2025, time.March, 10)
	got := CalculateLateFee(
		decimal.RequireFromString("1000.00"),
		&due,
		date(2025, time.June, 10),
		decimal.RequireFromString("10"),
	)
	if got.MonthsLate != 3 {
		t.Fatalf("monthsLate = %d, want 3", got.MonthsLate)
	}
	if !got.Amount.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("amount = %s, want 300.00", got.Amount)
	}
	if !got.TotalWithLate.Equal(decimal.RequireFromString("1300.00")) {
		t.Fatalf("totalWithLate = %s, want 1300.00", got.TotalWithLate)
	}
}

func TestCalculateLateFee_DayOfMonthIgnored(t *testing.T) {
	// Due the 28th, reference the 1st of the following month: one full month.
	due := date(2025, time.January, 28)
	got := CalculateLateFee(decimal.RequireFromString("500.00"), &due, date(2025, time.February, 1), decimal.RequireFromString("10"))
	if got.MonthsLate != 1 {
		t.Fatalf("monthsLate = %d, want 1", got.MonthsLate)
	}
	if !got.Amount.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("amount = %s, want 50.00", got.Amount)
	}
}

func TestCalculateLateFee_WithinDueMonth(t *testing.T) {
	due := date(2025, time.May, 10)
	got := CalculateLateFee(decimal.RequireFromString("500.00"), &due, date(2025, time.May, 31), decimal.RequireFromString("10"))
	if got.MonthsLate != 0 || !got.Amount.IsZero() {
		t.Fatalf("expected no accrual inside the due month, got %d / %s", got.MonthsLate, got.Amount)
	}
}

func TestCalculateLateFee_ReferenceBeforeDue(t *testing.T) {
	due := date(2025, time.August, 10)
	got := CalculateLateFee(decimal.RequireFromString("500.00"), &due, date(2025, time.March, 1), decimal.RequireFromString("10"))
	if got.MonthsLate != 0 || !got.Amount.IsZero() {
		t.Fatalf("expected zero accrual before the due month, got %d / %s", got.MonthsLate, got.Amount)
	}
}

func TestCalculateLateFee_NoSecondDueDate(t *testing.T) {
	got := CalculateLateFee(decimal.RequireFromString("750.00"), nil, date(2025, time.December, 1), decimal.RequireFromString("10"))
	if got.MonthsLate != 0 || !got.Amount.IsZero() {
		t.Fatalf("expected no accrual without a second due date")
	}
	if !got.TotalWithLate.Equal(decimal.RequireFromString("750.00")) {
		t.Fatalf("totalWithLate = %s, want 750.00", got.TotalWithLate)
	}
}

func TestCalculateLateFee_NegativeRateClamped(t *testing.T) {
	due := date(2025, time.January, 10)
	got := CalculateLateFee(decimal.RequireFromString("100.00"), &due, date(2025, time.April, 10), decimal.RequireFromString("-5"))
	if !got.Amount.IsZero() {
		t.Fatalf("negative rate must accrue nothing, got %s", got.Amount)
	}
}

func TestCalculateLateFee_Rounding(t *testing.T) {
	due := date(2025, time.January, 10)
	// 333.33 * 3% * 1 = 9.9999 -> 10.00
	got := CalculateLateFee(decimal.RequireFromString("333.33"), &due, date(2025, time.February, 10), decimal.RequireFromString("3"))
	if !got.Amount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("amount = %s, want 10.00", got.Amount)
	}
}
