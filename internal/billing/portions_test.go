package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChargePortions_OldestDebtFirst(t *testing.T) {
	// previousBalance=500, currentFee=1000, paid 300: previous drops to 200,
	// current fee untouched.
	p := ChargePortions(dec("500"), dec("1000"), dec("300"), decimal.Zero)
	if !p.PreviousOutstanding.Equal(dec("200")) {
		t.Fatalf("previousOutstanding = %s, want 200", p.PreviousOutstanding)
	}
	if !p.CurrentPaid.IsZero() {
		t.Fatalf("currentPaid = %s, want 0", p.CurrentPaid)
	}
	if !p.CurrentOutstandingNominal.Equal(dec("1000")) {
		t.Fatalf("currentOutstandingNominal = %s, want 1000", p.CurrentOutstandingNominal)
	}
}

func TestChargePortions_ExcessFlowsToCurrent(t *testing.T) {
	p := ChargePortions(dec("500"), dec("1000"), dec("800"), dec("50"))
	if !p.PreviousOutstanding.IsZero() {
		t.Fatalf("previousOutstanding = %s, want 0", p.PreviousOutstanding)
	}
	if !p.CurrentPaid.Equal(dec("300")) {
		t.Fatalf("currentPaid = %s, want 300", p.CurrentPaid)
	}
	if !p.CurrentOutstandingNominal.Equal(dec("650")) {
		t.Fatalf("currentOutstandingNominal = %s, want 650", p.CurrentOutstandingNominal)
	}
}

func TestChargePortions_NeverNegative(t *testing.T) {
	p := ChargePortions(dec("100"), dec("200"), dec("1000"), dec("500"))
	if p.PreviousOutstanding.IsNegative() || p.CurrentOutstandingNominal.IsNegative() {
		t.Fatalf("portions must be clamped at zero: %+v", p)
	}
}

func TestDiscountState_Cap(t *testing.T) {
	s := DiscountState(dec("1000"), dec("40"))
	if !s.Cap.Equal(dec("100")) {
		t.Fatalf("cap = %s, want 100", s.Cap)
	}
	if !s.Remaining.Equal(dec("60")) {
		t.Fatalf("remaining = %s, want 60", s.Remaining)
	}

	// Used beyond cap is clamped, never negative remaining.
	s = DiscountState(dec("1000"), dec("150"))
	if !s.Used.Equal(dec("100")) || !s.Remaining.IsZero() {
		t.Fatalf("used/remaining = %s/%s, want 100/0", s.Used, s.Remaining)
	}
}

func TestEarlyPaymentDiscount(t *testing.T) {
	firstDue := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)

	got := EarlyPaymentDiscount(dec("1000"), firstDue, &firstDue, dec("1000"), dec("100"))
	if !got.Equal(dec("100")) {
		t.Fatalf("on the due date = %s, want 100", got)
	}

	after := firstDue.AddDate(0, 0, 1)
	if !EarlyPaymentDiscount(dec("1000"), after, &firstDue, dec("1000"), dec("100")).IsZero() {
		t.Fatalf("expected no discount after the first due date")
	}

	if !EarlyPaymentDiscount(decimal.Zero, firstDue, &firstDue, dec("1000"), dec("100")).IsZero() {
		t.Fatalf("expected no discount without a current-period portion")
	}

	if !EarlyPaymentDiscount(dec("500"), firstDue, nil, dec("1000"), dec("100")).IsZero() {
		t.Fatalf("expected no discount without a first due date")
	}

	// Capped by the outstanding nominal.
	got = EarlyPaymentDiscount(dec("500"), firstDue, &firstDue, dec("80"), dec("100"))
	if !got.Equal(dec("80")) {
		t.Fatalf("capped discount = %s, want 80", got)
	}
}
