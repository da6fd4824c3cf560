// Package postgres implements ledger.Store on top of a single pgx transaction.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"condoledger/internal/ledger"
)

// Store scopes every call to one pgx.Tx. Callers open the transaction (the
// engine entry points expect serializable isolation) and commit or roll back
// as a whole; the store never commits on its own.
type Store struct {
	tx pgx.Tx
}

func NewStore(tx pgx.Tx) *Store {
	return &Store{tx: tx}
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (s *Store) UnitForUpdate(ctx context.Context, unitID int64) (*ledger.Unit, error) {
	const q = `
SELECT id, building_id, code, percentage::text, credit_balance::text
FROM units
WHERE id = $1
FOR UPDATE
`
	var u ledger.Unit
	var percentage, balance string
	if err := s.tx.QueryRow(ctx, q, unitID).Scan(&u.ID, &u.BuildingID, &u.Code, &percentage, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrUnitNotFound
		}
		return nil, err
	}
	var err error
	if u.Percentage, err = parseDec(percentage); err != nil {
		return nil, err
	}
	if u.CreditBalance, err = parseDec(balance); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SetUnitCreditBalance(ctx context.Context, unitID int64, balance decimal.Decimal) error {
	const q = `
UPDATE units
SET credit_balance = $2,
    updated_at = now()
WHERE id = $1
`
	tag, err := s.tx.Exec(ctx, q, unitID, balance.StringFixed(2))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrUnitNotFound
	}
	return nil
}

func scanSettlement(row pgx.Row, st *ledger.Settlement) error {
	var totalExpense, lateFeeRate string
	if err := row.Scan(
		&st.ID, &st.BuildingID, &st.Month, &st.Year,
		&totalExpense, &st.DueDate1, &st.DueDate2, &lateFeeRate, &st.CreatedAt,
	); err != nil {
		return err
	}
	var err error
	if st.TotalExpense, err = parseDec(totalExpense); err != nil {
		return err
	}
	st.LateFeeRate, err = parseDec(lateFeeRate)
	return err
}

func (s *Store) Settlement(ctx context.Context, settlementID int64) (*ledger.Settlement, error) {
	const q = `
SELECT id, building_id, month, year, total_expense::text, due_date_1, due_date_2, late_fee_rate::text, created_at
FROM settlements
WHERE id = $1
`
	var st ledger.Settlement
	if err := scanSettlement(s.tx.QueryRow(ctx, q, settlementID), &st); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrSettlementNotFound
		}
		return nil, err
	}
	return &st, nil
}

const chargeColumns = `
c.id, c.settlement_id, c.unit_id,
c.previous_balance::text, c.current_fee::text, c.principal_paid::text,
c.late_fee_paid::text, c.total_to_pay::text, c.status,
c.late_fee_frozen_at, c.late_fee_months, c.late_fee_amount::text`

func scanCharge(row pgx.Row, c *ledger.Charge) error {
	var prev, fee, principal, latePaid, total, lateAmount string
	var status string
	if err := row.Scan(
		&c.ID, &c.SettlementID, &c.UnitID,
		&prev, &fee, &principal, &latePaid, &total, &status,
		&c.LateFeeFrozenAt, &c.LateFeeMonths, &lateAmount,
	); err != nil {
		return err
	}
	c.Status = ledger.ChargeStatus(status)
	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.PreviousBalance, prev},
		{&c.CurrentFee, fee},
		{&c.PrincipalPaid, principal},
		{&c.LateFeePaid, latePaid},
		{&c.TotalToPay, total},
		{&c.LateFeeAmount, lateAmount},
	} {
		d, err := parseDec(pair.src)
		if err != nil {
			return err
		}
		*pair.dst = d
	}
	return nil
}

func (s *Store) ChargeForUpdate(ctx context.Context, settlementID, unitID int64) (*ledger.Charge, error) {
	const q = `
SELECT ` + chargeColumns + `
FROM settlement_charges c
WHERE c.settlement_id = $1 AND c.unit_id = $2
FOR UPDATE
`
	var c ledger.Charge
	if err := scanCharge(s.tx.QueryRow(ctx, q, settlementID, unitID), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrChargeNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) chargesWithSettlements(ctx context.Context, q string, args ...any) ([]ledger.ChargeWithSettlement, error) {
	rows, err := s.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ChargeWithSettlement
	for rows.Next() {
		var cws ledger.ChargeWithSettlement
		var prev, fee, principal, latePaid, total, lateAmount, status string
		var totalExpense, lateFeeRate string
		if err := rows.Scan(
			&cws.ID, &cws.SettlementID, &cws.UnitID,
			&prev, &fee, &principal, &latePaid, &total, &status,
			&cws.LateFeeFrozenAt, &cws.LateFeeMonths, &lateAmount,
			&cws.Settlement.ID, &cws.Settlement.BuildingID, &cws.Settlement.Month, &cws.Settlement.Year,
			&totalExpense, &cws.Settlement.DueDate1, &cws.Settlement.DueDate2, &lateFeeRate, &cws.Settlement.CreatedAt,
		); err != nil {
			return nil, err
		}
		cws.Status = ledger.ChargeStatus(status)
		for _, pair := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&cws.PreviousBalance, prev},
			{&cws.CurrentFee, fee},
			{&cws.PrincipalPaid, principal},
			{&cws.LateFeePaid, latePaid},
			{&cws.TotalToPay, total},
			{&cws.LateFeeAmount, lateAmount},
			{&cws.Settlement.TotalExpense, totalExpense},
			{&cws.Settlement.LateFeeRate, lateFeeRate},
		} {
			d, err := parseDec(pair.src)
			if err != nil {
				return nil, err
			}
			*pair.dst = d
		}
		out = append(out, cws)
	}
	return out, rows.Err()
}

const chargeSettlementColumns = chargeColumns + `,
s.id, s.building_id, s.month, s.year, s.total_expense::text, s.due_date_1, s.due_date_2, s.late_fee_rate::text, s.created_at`

func (s *Store) OverdueCharges(ctx context.Context, unitID int64, reference time.Time) ([]ledger.ChargeWithSettlement, error) {
	const q = `
SELECT ` + chargeSettlementColumns + `
FROM settlement_charges c
JOIN settlements s ON s.id = c.settlement_id
WHERE c.unit_id = $1
  AND s.due_date_2 IS NOT NULL
  AND s.due_date_2 <= $2
ORDER BY s.year ASC, s.month ASC, c.id ASC
FOR UPDATE OF c
`
	return s.chargesWithSettlements(ctx, q, unitID, reference)
}

func (s *Store) OpenCharges(ctx context.Context, unitID int64) ([]ledger.ChargeWithSettlement, error) {
	const q = `
SELECT ` + chargeSettlementColumns + `
FROM settlement_charges c
JOIN settlements s ON s.id = c.settlement_id
WHERE c.unit_id = $1
  AND c.total_to_pay > 0
  AND c.status <> 'PAID'
ORDER BY s.year ASC, s.month ASC, c.id ASC
FOR UPDATE OF c
`
	return s.chargesWithSettlements(ctx, q, unitID)
}

func (s *Store) FreezeChargeLateFee(ctx context.Context, chargeID int64, frozenAt time.Time, monthsLate int, amount decimal.Decimal) error {
	const q = `
UPDATE settlement_charges
SET late_fee_frozen_at = $2,
    late_fee_months = $3,
    late_fee_amount = $4,
    updated_at = now()
WHERE id = $1
  AND late_fee_frozen_at IS NULL
`
	_, err := s.tx.Exec(ctx, q, chargeID, frozenAt, monthsLate, amount.StringFixed(2))
	return err
}

func (s *Store) UpdateChargeTotals(ctx context.Context, chargeID int64, principalPaid, lateFeePaid, totalToPay decimal.Decimal, status ledger.ChargeStatus) error {
	const q = `
UPDATE settlement_charges
SET principal_paid = $2,
    late_fee_paid = $3,
    total_to_pay = $4,
    status = $5,
    updated_at = now()
WHERE id = $1
`
	tag, err := s.tx.Exec(ctx, q, chargeID, principalPaid.StringFixed(2), lateFeePaid.StringFixed(2), totalToPay.StringFixed(2), string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrChargeNotFound
	}
	return nil
}

func (s *Store) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	const q = `
INSERT INTO payments (settlement_id, unit_id, amount, late_fee_applied, receipt_number, payment_date, notes, status, discount_applied)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at
`
	return s.tx.QueryRow(ctx, q,
		p.SettlementID, p.UnitID,
		p.Amount.StringFixed(2), p.LateFeeApplied.StringFixed(2),
		p.ReceiptNumber, p.PaymentDate, p.Notes,
		string(p.Status), p.DiscountApplied.StringFixed(2),
	).Scan(&p.ID, &p.CreatedAt)
}

func (s *Store) PaymentForUpdate(ctx context.Context, paymentID int64) (*ledger.Payment, error) {
	const q = `
SELECT id, settlement_id, unit_id, amount::text, late_fee_applied::text, receipt_number, payment_date, notes, status, discount_applied::text, canceled_at, created_at
FROM payments
WHERE id = $1
FOR UPDATE
`
	var p ledger.Payment
	var amount, lateFee, discount, status string
	var notes *string
	if err := s.tx.QueryRow(ctx, q, paymentID).Scan(
		&p.ID, &p.SettlementID, &p.UnitID, &amount, &lateFee,
		&p.ReceiptNumber, &p.PaymentDate, &notes, &status, &discount,
		&p.CanceledAt, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrPaymentNotFound
		}
		return nil, err
	}
	if notes != nil {
		p.Notes = *notes
	}
	p.Status = ledger.PaymentStatus(status)
	var err error
	if p.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	if p.LateFeeApplied, err = parseDec(lateFee); err != nil {
		return nil, err
	}
	if p.DiscountApplied, err = parseDec(discount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) MarkPaymentCancelled(ctx context.Context, paymentID int64, at time.Time) error {
	const q = `
UPDATE payments
SET status = 'CANCELLED',
    canceled_at = $2
WHERE id = $1
`
	tag, err := s.tx.Exec(ctx, q, paymentID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}

func (s *Store) DiscountUsed(ctx context.Context, settlementID, unitID int64) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(discount_applied), 0)::text
FROM payments
WHERE settlement_id = $1 AND unit_id = $2 AND status = 'COMPLETED'
`
	var total string
	if err := s.tx.QueryRow(ctx, q, settlementID, unitID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return parseDec(total)
}

func (s *Store) InsertCreditMovement(ctx context.Context, m *ledger.CreditMovement) error {
	const q = `
INSERT INTO credit_movements (unit_id, payment_id, settlement_id, charge_id, reference, amount, type, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at
`
	return s.tx.QueryRow(ctx, q,
		m.UnitID, m.PaymentID, m.SettlementID, m.ChargeID,
		m.Reference, m.Amount.StringFixed(2), string(m.Type), m.Description,
	).Scan(&m.ID, &m.CreatedAt)
}

func (s *Store) PaymentCreditMovements(ctx context.Context, paymentID int64) ([]ledger.CreditMovement, error) {
	const q = `
SELECT id, unit_id, payment_id, settlement_id, charge_id, reference, amount::text, type, description, created_at
FROM credit_movements
WHERE payment_id = $1
ORDER BY id ASC
`
	rows, err := s.tx.Query(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CreditMovement
	for rows.Next() {
		var m ledger.CreditMovement
		var amount, typ string
		var description *string
		if err := rows.Scan(&m.ID, &m.UnitID, &m.PaymentID, &m.SettlementID, &m.ChargeID, &m.Reference, &amount, &typ, &description, &m.CreatedAt); err != nil {
			return nil, err
		}
		if description != nil {
			m.Description = *description
		}
		m.Type = ledger.MovementType(typ)
		if m.Amount, err = parseDec(amount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
