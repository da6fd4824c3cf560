package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound2_HalfUp(t *testing.T) {
	cases := []struct{ in, want string }{
		{"10.005", "10.01"},
		{"10.004", "10.00"},
		{"0.125", "0.13"},
		{"99.999", "100.00"},
		{"3", "3.00"},
	}
	for _, c := range cases {
		got := Round2(decimal.RequireFromString(c.in))
		if got.String() != decimal.RequireFromString(c.want).String() {
			t.Fatalf("Round2(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestMax0(t *testing.T) {
	if !Max0(decimal.RequireFromString("-3.50")).IsZero() {
		t.Fatalf("expected negative clamped to zero")
	}
	v := decimal.RequireFromString("1.25")
	if !Max0(v).Equal(v) {
		t.Fatalf("expected positive passed through")
	}
}

func TestShare(t *testing.T) {
	// 12.5% of 1000.00
	got := Share(decimal.RequireFromString("1000.00"), decimal.RequireFromString("12.5"))
	if !got.Equal(decimal.RequireFromString("125.00")) {
		t.Fatalf("Share = %s, want 125.00", got)
	}
	// Rounding: 33.33% of 100 -> 33.33
	got = Share(decimal.RequireFromString("100"), decimal.RequireFromString("33.33"))
	if !got.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("Share = %s, want 33.33", got)
	}
}
