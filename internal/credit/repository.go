package credit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Movement is the read model of one credit ledger row, amounts as fixed-point
// strings the way every money field leaves this API.
type Movement struct {
	ID           int64     `json:"id"`
	UnitID       int64     `json:"unitId"`
	PaymentID    *int64    `json:"paymentId,omitempty"`
	SettlementID *int64    `json:"settlementId,omitempty"`
	ChargeID     *int64    `json:"chargeId,omitempty"`
	Reference    string    `json:"reference"`
	Amount       string    `json:"amount"`
	Type         string    `json:"type"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListByUnit(ctx context.Context, unitID int64) ([]Movement, error) {
	const q = `
SELECT id, unit_id, payment_id, settlement_id, charge_id, reference, amount::text, type, COALESCE(description, ''), created_at
FROM credit_movements
WHERE unit_id = $1
ORDER BY created_at DESC, id DESC
`
	rows, err := r.db.Query(ctx, q, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.UnitID, &m.PaymentID, &m.SettlementID, &m.ChargeID, &m.Reference, &m.Amount, &m.Type, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
