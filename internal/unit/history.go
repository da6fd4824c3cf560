package unit

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// AccountEntry is one line of a unit's merged account timeline: charges as
// they were levied, payments as they came in, and credit movements.
type AccountEntry struct {
	Kind         string    `json:"kind"` // CHARGE, PAYMENT, CREDIT, DEBIT
	Date         time.Time `json:"date"`
	Amount       string    `json:"amount"`
	Description  string    `json:"description"`
	SettlementID *int64    `json:"settlementId,omitempty"`
	PaymentID    *int64    `json:"paymentId,omitempty"`
}

// AccountHistory merges the unit's charges, payments and credit movements
// into one timeline, newest first.
func (r *Repository) AccountHistory(ctx context.Context, unitID int64) ([]AccountEntry, error) {
	var out []AccountEntry

	const qCharges = `
SELECT c.settlement_id, c.current_fee::text, s.month, s.year, s.created_at
FROM settlement_charges c
JOIN settlements s ON s.id = c.settlement_id
WHERE c.unit_id = $1
`
	rows, err := r.db.Query(ctx, qCharges, unitID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var settlementID int64
		var fee string
		var month, year int
		var createdAt time.Time
		if err := rows.Scan(&settlementID, &fee, &month, &year, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		sid := settlementID
		out = append(out, AccountEntry{
			Kind:         "CHARGE",
			Date:         createdAt,
			Amount:       fee,
			Description:  fmt.Sprintf("Charge %d/%d", month, year),
			SettlementID: &sid,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qPayments = `
SELECT id, settlement_id, amount::text, receipt_number, payment_date, status
FROM payments
WHERE unit_id = $1
`
	rows, err = r.db.Query(ctx, qPayments, unitID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id, settlementID int64
		var amount, receipt, status string
		var paymentDate time.Time
		if err := rows.Scan(&id, &settlementID, &amount, &receipt, &paymentDate, &status); err != nil {
			rows.Close()
			return nil, err
		}
		pid, sid := id, settlementID
		desc := fmt.Sprintf("Payment - receipt %s", receipt)
		if status == "CANCELLED" {
			desc += " (cancelled)"
		}
		out = append(out, AccountEntry{
			Kind:         "PAYMENT",
			Date:         paymentDate,
			Amount:       amount,
			Description:  desc,
			SettlementID: &sid,
			PaymentID:    &pid,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qMovements = `
SELECT id, payment_id, settlement_id, amount::text, type, COALESCE(description, ''), created_at
FROM credit_movements
WHERE unit_id = $1
`
	rows, err = r.db.Query(ctx, qMovements, unitID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id int64
		var paymentID, settlementID *int64
		var amount, typ, description string
		var createdAt time.Time
		if err := rows.Scan(&id, &paymentID, &settlementID, &amount, &typ, &description, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, AccountEntry{
			Kind:         typ,
			Date:         createdAt,
			Amount:       amount,
			Description:  description,
			SettlementID: settlementID,
			PaymentID:    paymentID,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
