package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condoledger/internal/ledger"
	"condoledger/internal/ledger/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// movementSum is the signed sum of a unit's movements, CREDIT positive and
// DEBIT negative. It must always equal the unit's stored balance.
func movementSum(s *memory.Store, unitID int64) decimal.Decimal {
	total := decimal.Zero
	for _, m := range s.UnitMovements(unitID) {
		if m.Type == ledger.MovementCredit {
			total = total.Add(m.Amount)
		} else {
			total = total.Sub(m.Amount)
		}
	}
	return total
}

func assertBalanceConsistent(t *testing.T, s *memory.Store, unitID int64) {
	t.Helper()
	unit, err := s.UnitForUpdate(context.Background(), unitID)
	require.NoError(t, err)
	assert.True(t, movementSum(s, unitID).Equal(unit.CreditBalance),
		"movement sum %s != stored balance %s", movementSum(s, unitID), unit.CreditBalance)
}

func seedUnitWithCredit(t *testing.T, s *memory.Store, buildingID int64, balance string) int64 {
	t.Helper()
	unitID := s.AddUnit(ledger.Unit{BuildingID: buildingID, Code: "A-1", Percentage: dec("10"), CreditBalance: dec(balance)})
	if b := dec(balance); b.IsPositive() {
		err := s.InsertCreditMovement(context.Background(), &ledger.CreditMovement{
			UnitID:      unitID,
			Reference:   "seed",
			Amount:      b,
			Type:        ledger.MovementCredit,
			Description: "Opening balance",
		})
		require.NoError(t, err)
	}
	return unitID
}

func TestAllocatePaymentEarlyPaymentSettlesWithDiscount(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})

	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("1000"), ReceiptNumber: "R-001",
		PaymentDate: date(2025, time.March, 10),
	})
	require.NoError(t, err)

	assert.True(t, sum.DiscountApplied.Equal(dec("100")), "discount: %s", sum.DiscountApplied)
	assert.True(t, sum.AppliedToCurrent.Equal(dec("900")))
	assert.True(t, sum.Excess.Equal(dec("100")))
	assert.True(t, sum.Charge.TotalToPay.IsZero())
	assert.Equal(t, ledger.ChargeStatusPaid, sum.Charge.Status)
	assert.True(t, sum.CreditBalance.Equal(dec("100")))
	assertBalanceConsistent(t, s, unitID)
}

func TestAllocatePaymentPartialRetiresCarriedBalanceFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("500"), CurrentFee: dec("1000"),
		TotalToPay: dec("1500"), Status: ledger.ChargeStatusPending,
	})

	// Paid after the first due date, so no discount is in play.
	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("300"), ReceiptNumber: "R-002",
		PaymentDate: date(2025, time.March, 15),
	})
	require.NoError(t, err)

	assert.True(t, sum.AppliedToPrevious.Equal(dec("300")))
	assert.True(t, sum.AppliedToCurrent.IsZero())
	assert.True(t, sum.DiscountApplied.IsZero())
	assert.True(t, sum.Excess.IsZero())
	assert.True(t, sum.Charge.TotalToPay.Equal(dec("1200")), "totalToPay: %s", sum.Charge.TotalToPay)
	assert.Equal(t, ledger.ChargeStatusPartial, sum.Charge.Status)
	assertBalanceConsistent(t, s, unitID)
}

func TestAllocatePaymentDiscountCapAcrossPayments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})

	first, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("500"), ReceiptNumber: "R-010",
		PaymentDate: date(2025, time.March, 5),
	})
	require.NoError(t, err)
	assert.True(t, first.DiscountApplied.Equal(dec("100")))
	assert.True(t, first.Charge.TotalToPay.Equal(dec("400")))

	second, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("400"), ReceiptNumber: "R-011",
		PaymentDate: date(2025, time.March, 6),
	})
	require.NoError(t, err)
	assert.True(t, second.DiscountApplied.IsZero(), "cap already consumed")
	assert.True(t, second.Charge.TotalToPay.IsZero())
	assert.Equal(t, ledger.ChargeStatusPaid, second.Charge.Status)
	assertBalanceConsistent(t, s, unitID)
}

func TestAllocatePaymentRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025, TotalExpense: dec("10000"),
	})
	otherSettlement := s.AddSettlement(ledger.Settlement{
		BuildingID: 2, Month: 3, Year: 2025, TotalExpense: dec("5000"),
	})

	_, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("0"), ReceiptNumber: "R-1", PaymentDate: date(2025, time.March, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)

	_, err = ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("100"), PaymentDate: date(2025, time.March, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrMissingReceipt)

	_, err = ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: otherSettlement,
		Amount: dec("100"), ReceiptNumber: "R-1", PaymentDate: date(2025, time.March, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrBuildingMismatch)

	_, err = ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("100"), ReceiptNumber: "R-1", PaymentDate: date(2025, time.March, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrChargeNotFound)
}

func TestUnitArrearsFreezesOnceAndStaysStable(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 1, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.January, 5),
		DueDate2:     datePtr(2025, time.January, 15),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})

	first, err := ledger.UnitArrears(ctx, s, unitID, date(2025, time.April, 20))
	require.NoError(t, err)
	require.Len(t, first.Periods, 1)
	assert.Equal(t, 3, first.Periods[0].MonthsLate)
	assert.True(t, first.Periods[0].LateFeeTotal.Equal(dec("300")))
	assert.True(t, first.Total.Equal(dec("1300")))

	// A later read must not recompute the frozen snapshot.
	second, err := ledger.UnitArrears(ctx, s, unitID, date(2025, time.June, 1))
	require.NoError(t, err)
	require.Len(t, second.Periods, 1)
	assert.Equal(t, 3, second.Periods[0].MonthsLate)
	assert.True(t, second.Periods[0].LateFeeTotal.Equal(dec("300")))
	assert.True(t, second.Total.Equal(dec("1300")))
}

func TestApplyAvailableCreditRetiresArrearsThenKeepsResidual(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "150")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 2, Year: 2025,
		TotalExpense: dec("1000"),
		DueDate1:     datePtr(2025, time.February, 5),
		DueDate2:     datePtr(2025, time.February, 10),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("100"),
		TotalToPay: dec("100"), Status: ledger.ChargeStatusPending,
	})

	// Two calendar months past the second due date: late fee 100 * 10% * 2 = 20.
	res, err := ledger.ApplyAvailableCredit(ctx, s, unitID, date(2025, time.April, 5))
	require.NoError(t, err)

	assert.True(t, res.AppliedToArrears.Equal(dec("120")), "applied: %s", res.AppliedToArrears)
	assert.True(t, res.CreditBalance.Equal(dec("30")))

	charge, err := s.ChargeForUpdate(ctx, settlementID, unitID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ChargeStatusPaid, charge.Status)
	assert.True(t, charge.PrincipalPaid.Equal(dec("100")))
	assert.True(t, charge.LateFeePaid.Equal(dec("20")))
	assert.True(t, charge.TotalToPay.IsZero())
	assertBalanceConsistent(t, s, unitID)
}

func TestApplyDebtorFundsSurplusBecomesCredit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 2, Year: 2025,
		TotalExpense: dec("1000"),
		DueDate1:     datePtr(2025, time.February, 5),
		DueDate2:     datePtr(2025, time.February, 10),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("100"),
		TotalToPay: dec("100"), Status: ledger.ChargeStatusPending,
	})

	res, err := ledger.ApplyDebtorFunds(ctx, s, ledger.DebtorFundsInput{
		UnitID: unitID, Amount: dec("200"),
		ReceiptNumber: "R-020", PaymentDate: date(2025, time.April, 5),
	})
	require.NoError(t, err)

	assert.True(t, res.AppliedToArrears.Equal(dec("120")))
	assert.True(t, res.AppliedFromPayment.Equal(dec("120")))
	assert.True(t, res.AppliedFromCredit.IsZero())
	assert.True(t, res.ArrearsAfter.IsZero())
	assert.True(t, res.CreditBalance.Equal(dec("80")))

	payments := s.Payments()
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(dec("120")))
	assert.True(t, payments[0].LateFeeApplied.Equal(dec("20")))
	assertBalanceConsistent(t, s, unitID)
}

func TestAllocatePaymentExcessFlowsToUpcomingCharge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	marchID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	aprilID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 4, Year: 2025,
		TotalExpense: dec("8000"),
		DueDate1:     datePtr(2025, time.April, 10),
		DueDate2:     datePtr(2025, time.April, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: marchID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})
	s.AddCharge(ledger.Charge{
		SettlementID: aprilID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("800"),
		TotalToPay: dec("800"), Status: ledger.ChargeStatusPending,
	})

	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: marchID,
		Amount: dec("1500"), ReceiptNumber: "R-030",
		PaymentDate: date(2025, time.March, 15),
	})
	require.NoError(t, err)

	assert.True(t, sum.AppliedToCurrent.Equal(dec("1000")))
	assert.True(t, sum.Excess.Equal(dec("500")))
	assert.True(t, sum.AppliedToUpcoming.Equal(dec("500")))
	require.Len(t, sum.UpcomingAllocations, 1)
	assert.Equal(t, int64(aprilID), sum.UpcomingAllocations[0].SettlementID)
	assert.True(t, sum.CreditBalance.IsZero())

	april, err := s.ChargeForUpdate(ctx, aprilID, unitID)
	require.NoError(t, err)
	assert.True(t, april.TotalToPay.Equal(dec("300")))
	assert.Equal(t, ledger.ChargeStatusPartial, april.Status)
	assertBalanceConsistent(t, s, unitID)
}

func TestCancelPaymentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})

	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("1000"), ReceiptNumber: "R-040",
		PaymentDate: date(2025, time.March, 10),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.ChargeStatusPaid, sum.Charge.Status)

	res, err := ledger.CancelPayment(ctx, s, sum.PaymentID, date(2025, time.March, 12))
	require.NoError(t, err)

	assert.Equal(t, ledger.PaymentStatusCancelled, res.Payment.Status)
	require.NotNil(t, res.Payment.CanceledAt)
	assert.True(t, res.Charge.PrincipalPaid.IsZero())
	assert.True(t, res.Charge.LateFeePaid.IsZero())
	assert.True(t, res.Charge.TotalToPay.Equal(dec("1000")))
	assert.Equal(t, ledger.ChargeStatusPending, res.Charge.Status)
	assert.True(t, res.CreditBalance.IsZero())

	discount, err := s.DiscountUsed(ctx, settlementID, unitID)
	require.NoError(t, err)
	assert.True(t, discount.IsZero())
	assertBalanceConsistent(t, s, unitID)
}

func TestCancelPaymentRestoresConsumedCredit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "50")
	februaryID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 2, Year: 2025,
		TotalExpense: dec("400"),
		DueDate1:     datePtr(2025, time.February, 5),
		DueDate2:     datePtr(2025, time.February, 10),
		LateFeeRate:  dec("0"),
	})
	marchID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("1000"),
		DueDate1:     datePtr(2025, time.March, 10),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: februaryID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("40"),
		TotalToPay: dec("40"), Status: ledger.ChargeStatusPending,
	})
	s.AddCharge(ledger.Charge{
		SettlementID: marchID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("100"),
		TotalToPay: dec("100"), Status: ledger.ChargeStatusPending,
	})

	// The payment settles March; the stored credit gets pulled into the
	// February arrears during the same allocation.
	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: marchID,
		Amount: dec("100"), ReceiptNumber: "R-060",
		PaymentDate: date(2025, time.March, 15),
	})
	require.NoError(t, err)
	assert.True(t, sum.AppliedToArrears.Equal(dec("40")))
	assert.True(t, sum.CreditBalance.Equal(dec("10")))

	res, err := ledger.CancelPayment(ctx, s, sum.PaymentID, date(2025, time.March, 16))
	require.NoError(t, err)

	assert.True(t, res.CreditRestored.Equal(dec("40")))
	assert.True(t, res.CreditReversed.IsZero())
	assert.True(t, res.CreditBalance.Equal(dec("50")))
	assert.True(t, res.Charge.PrincipalPaid.IsZero())
	assert.True(t, res.Charge.TotalToPay.Equal(dec("100")))
	assertBalanceConsistent(t, s, unitID)
}

func TestCancelPaymentTwiceRejected(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	unitID := seedUnitWithCredit(t, s, 1, "0")
	settlementID := s.AddSettlement(ledger.Settlement{
		BuildingID: 1, Month: 3, Year: 2025,
		TotalExpense: dec("10000"),
		DueDate2:     datePtr(2025, time.March, 20),
		LateFeeRate:  dec("10"),
	})
	s.AddCharge(ledger.Charge{
		SettlementID: settlementID, UnitID: unitID,
		PreviousBalance: dec("0"), CurrentFee: dec("1000"),
		TotalToPay: dec("1000"), Status: ledger.ChargeStatusPending,
	})

	sum, err := ledger.AllocatePayment(ctx, s, ledger.AllocateInput{
		UnitID: unitID, SettlementID: settlementID,
		Amount: dec("400"), ReceiptNumber: "R-050",
		PaymentDate: date(2025, time.March, 12),
	})
	require.NoError(t, err)

	_, err = ledger.CancelPayment(ctx, s, sum.PaymentID, date(2025, time.March, 13))
	require.NoError(t, err)

	_, err = ledger.CancelPayment(ctx, s, sum.PaymentID, date(2025, time.March, 14))
	assert.ErrorIs(t, err, ledger.ErrAlreadyCancelled)
}

func TestBuildChargeSharesExpenseByPercentage(t *testing.T) {
	settlement := &ledger.Settlement{ID: 7, TotalExpense: dec("12345.67")}
	unit := &ledger.Unit{ID: 3, Percentage: dec("12.5")}

	charge := ledger.BuildCharge(settlement, unit)

	assert.Equal(t, int64(7), charge.SettlementID)
	assert.Equal(t, int64(3), charge.UnitID)
	assert.True(t, charge.CurrentFee.Equal(dec("1543.21")), "fee: %s", charge.CurrentFee)
	assert.True(t, charge.TotalToPay.Equal(charge.CurrentFee))
	assert.Equal(t, ledger.ChargeStatusPending, charge.Status)
}
