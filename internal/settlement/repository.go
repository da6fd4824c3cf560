package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"condoledger/internal/ledger"
)

var (
	ErrNotFound    = errors.New("settlement not found")
	ErrDuplicate   = errors.New("settlement already exists for this building and period")
	ErrHasPayments = errors.New("settlement has completed payments and cannot be deleted")
)

type Record struct {
	ID           int64          `json:"id"`
	BuildingID   int64          `json:"buildingId"`
	Month        int            `json:"month"`
	Year         int            `json:"year"`
	TotalExpense string         `json:"totalExpense"`
	DueDate1     *time.Time     `json:"dueDate1,omitempty"`
	DueDate2     *time.Time     `json:"dueDate2,omitempty"`
	LateFeeRate  string         `json:"lateFeeRate"`
	CreatedAt    time.Time      `json:"createdAt"`
	Charges      []ChargeRecord `json:"charges,omitempty"`
}

type ChargeRecord struct {
	ID            int64  `json:"id"`
	UnitID        int64  `json:"unitId"`
	UnitCode      string `json:"unitCode"`
	CurrentFee    string `json:"currentFee"`
	PrincipalPaid string `json:"principalPaid"`
	LateFeePaid   string `json:"lateFeePaid"`
	TotalToPay    string `json:"totalToPay"`
	Status        string `json:"status"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type CreateInput struct {
	BuildingID   int64
	Month        int
	Year         int
	TotalExpense decimal.Decimal
	DueDate1     *time.Time
	DueDate2     *time.Time
	LateFeeRate  decimal.Decimal
}

// Create inserts the settlement and one charge per unit of the building,
// each unit's fee being its percentage share of the total expense.
func Create(ctx context.Context, tx pgx.Tx, in CreateInput) (*Record, error) {
	const qExists = `
SELECT EXISTS (
  SELECT 1 FROM settlements WHERE building_id = $1 AND month = $2 AND year = $3
)
`
	var exists bool
	if err := tx.QueryRow(ctx, qExists, in.BuildingID, in.Month, in.Year).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	const qInsert = `
INSERT INTO settlements (building_id, month, year, total_expense, due_date_1, due_date_2, late_fee_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at
`
	rec := &Record{
		BuildingID:   in.BuildingID,
		Month:        in.Month,
		Year:         in.Year,
		TotalExpense: in.TotalExpense.StringFixed(2),
		DueDate1:     in.DueDate1,
		DueDate2:     in.DueDate2,
		LateFeeRate:  in.LateFeeRate.StringFixed(2),
	}
	if err := tx.QueryRow(ctx, qInsert,
		in.BuildingID, in.Month, in.Year, in.TotalExpense.StringFixed(2),
		in.DueDate1, in.DueDate2, in.LateFeeRate.StringFixed(2),
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return nil, err
	}

	const qUnits = `
SELECT id, code, percentage::text
FROM units
WHERE building_id = $1
ORDER BY code ASC
`
	rows, err := tx.Query(ctx, qUnits, in.BuildingID)
	if err != nil {
		return nil, err
	}
	type unitRow struct {
		id         int64
		code       string
		percentage decimal.Decimal
	}
	var units []unitRow
	for rows.Next() {
		var u unitRow
		var percentage string
		if err := rows.Scan(&u.id, &u.code, &percentage); err != nil {
			rows.Close()
			return nil, err
		}
		if u.percentage, err = decimal.NewFromString(percentage); err != nil {
			rows.Close()
			return nil, err
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qCharge = `
INSERT INTO settlement_charges (settlement_id, unit_id, previous_balance, current_fee, total_to_pay, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`
	settlement := &ledger.Settlement{ID: rec.ID, TotalExpense: in.TotalExpense}
	for _, u := range units {
		charge := ledger.BuildCharge(settlement, &ledger.Unit{ID: u.id, Percentage: u.percentage})
		cr := ChargeRecord{
			UnitID:        u.id,
			UnitCode:      u.code,
			CurrentFee:    charge.CurrentFee.StringFixed(2),
			PrincipalPaid: "0.00",
			LateFeePaid:   "0.00",
			TotalToPay:    charge.TotalToPay.StringFixed(2),
			Status:        string(charge.Status),
		}
		if err := tx.QueryRow(ctx, qCharge,
			rec.ID, u.id,
			charge.PreviousBalance.StringFixed(2), charge.CurrentFee.StringFixed(2),
			charge.TotalToPay.StringFixed(2), string(charge.Status),
		).Scan(&cr.ID); err != nil {
			return nil, err
		}
		rec.Charges = append(rec.Charges, cr)
	}
	return rec, nil
}

func (r *Repository) ListByBuilding(ctx context.Context, buildingID int64, month, year int) ([]Record, error) {
	q := `
SELECT id, building_id, month, year, total_expense::text, due_date_1, due_date_2, late_fee_rate::text, created_at
FROM settlements
WHERE building_id = $1
`
	args := []any{buildingID}
	if month > 0 {
		q += ` AND month = $2`
		args = append(args, month)
	}
	if year > 0 {
		q += ` AND year = $` + strconv.Itoa(len(args)+1)
		args = append(args, year)
	}
	q += `
ORDER BY year DESC, month DESC
`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.BuildingID, &rec.Month, &rec.Year, &rec.TotalExpense, &rec.DueDate1, &rec.DueDate2, &rec.LateFeeRate, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		charges, err := r.charges(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Charges = charges
	}
	return out, nil
}

func (r *Repository) charges(ctx context.Context, settlementID int64) ([]ChargeRecord, error) {
	const q = `
SELECT c.id, c.unit_id, u.code, c.current_fee::text, c.principal_paid::text, c.late_fee_paid::text, c.total_to_pay::text, c.status
FROM settlement_charges c
JOIN units u ON u.id = c.unit_id
WHERE c.settlement_id = $1
ORDER BY u.code ASC
`
	rows, err := r.db.Query(ctx, q, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChargeRecord
	for rows.Next() {
		var c ChargeRecord
		if err := rows.Scan(&c.ID, &c.UnitID, &c.UnitCode, &c.CurrentFee, &c.PrincipalPaid, &c.LateFeePaid, &c.TotalToPay, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a settlement and its charges. Blocked once any completed
// payment references the settlement.
func Delete(ctx context.Context, tx pgx.Tx, settlementID int64) error {
	const qExists = `SELECT EXISTS (SELECT 1 FROM settlements WHERE id = $1)`
	var exists bool
	if err := tx.QueryRow(ctx, qExists, settlementID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	const qPayments = `
SELECT EXISTS (
  SELECT 1 FROM payments WHERE settlement_id = $1 AND status = 'COMPLETED'
)
`
	var hasPayments bool
	if err := tx.QueryRow(ctx, qPayments, settlementID).Scan(&hasPayments); err != nil {
		return err
	}
	if hasPayments {
		return ErrHasPayments
	}

	// Cancelled payments still reference the settlement; they go with it.
	// Their movement and audit links null out via the schema.
	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE settlement_id = $1 AND status = 'CANCELLED'`, settlementID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM settlement_charges WHERE settlement_id = $1`, settlementID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `DELETE FROM settlements WHERE id = $1`, settlementID)
	return err
}
