package payment

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Record struct {
	ID              int64      `json:"id"`
	SettlementID    int64      `json:"settlementId"`
	UnitID          int64      `json:"unitId"`
	UnitCode        string     `json:"unitCode"`
	Month           int        `json:"month"`
	Year            int        `json:"year"`
	Amount          string     `json:"amount"`
	LateFeeApplied  string     `json:"lateFeeApplied"`
	DiscountApplied string     `json:"discountApplied"`
	ReceiptNumber   string     `json:"receiptNumber"`
	PaymentDate     time.Time  `json:"paymentDate"`
	Notes           string     `json:"notes,omitempty"`
	Status          string     `json:"status"`
	CanceledAt      *time.Time `json:"canceledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// History lists a building's payments, newest first, optionally filtered by
// settlement period.
func (r *Repository) History(ctx context.Context, buildingID int64, month, year int) ([]Record, error) {
	q := `
SELECT p.id, p.settlement_id, p.unit_id, u.code, s.month, s.year,
       p.amount::text, p.late_fee_applied::text, p.discount_applied::text,
       p.receipt_number, p.payment_date, COALESCE(p.notes, ''), p.status, p.canceled_at, p.created_at
FROM payments p
JOIN units u ON u.id = p.unit_id
JOIN settlements s ON s.id = p.settlement_id
WHERE s.building_id = $1
`
	args := []any{buildingID}
	if month > 0 {
		args = append(args, month)
		q += ` AND s.month = $` + strconv.Itoa(len(args))
	}
	if year > 0 {
		args = append(args, year)
		q += ` AND s.year = $` + strconv.Itoa(len(args))
	}
	q += `
ORDER BY p.payment_date DESC, p.id DESC
`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.SettlementID, &rec.UnitID, &rec.UnitCode, &rec.Month, &rec.Year,
			&rec.Amount, &rec.LateFeeApplied, &rec.DiscountApplied,
			&rec.ReceiptNumber, &rec.PaymentDate, &rec.Notes, &rec.Status, &rec.CanceledAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
