package unit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("unit not found")

// Contact roles mirror how buildings are actually administered: the person
// living in the unit, the one who pays, the owner, and an optional agency.
const (
	RoleTenant             = "TENANT"
	RolePaymentResponsible = "PAYMENT_RESPONSIBLE"
	RoleOwner              = "OWNER"
	RoleAgency             = "AGENCY"
)

type Contact struct {
	ID    int64  `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Unit struct {
	ID            int64     `json:"id"`
	BuildingID    int64     `json:"buildingId"`
	Code          string    `json:"code"`
	Percentage    string    `json:"percentage"`
	CreditBalance string    `json:"creditBalance"`
	Contacts      []Contact `json:"contacts,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// PercentageSum is the total ownership share already assigned in a building.
func (r *Repository) PercentageSum(ctx context.Context, buildingID int64) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(percentage), 0)::text
FROM units
WHERE building_id = $1
`
	var total string
	if err := r.db.QueryRow(ctx, q, buildingID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

type CreateInput struct {
	BuildingID int64
	Code       string
	Percentage decimal.Decimal
	Contacts   []Contact
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, in CreateInput) (*Unit, error) {
	const q = `
INSERT INTO units (building_id, code, percentage)
VALUES ($1, $2, $3)
RETURNING id, building_id, code, percentage::text, credit_balance::text, created_at
`
	var u Unit
	if err := tx.QueryRow(ctx, q, in.BuildingID, in.Code, in.Percentage.StringFixed(2)).Scan(
		&u.ID, &u.BuildingID, &u.Code, &u.Percentage, &u.CreditBalance, &u.CreatedAt,
	); err != nil {
		return nil, err
	}

	const qc = `
INSERT INTO contacts (unit_id, role, name, email, phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`
	for _, c := range in.Contacts {
		contact := c
		if err := tx.QueryRow(ctx, qc, u.ID, contact.Role, contact.Name, contact.Email, contact.Phone).Scan(&contact.ID); err != nil {
			return nil, err
		}
		u.Contacts = append(u.Contacts, contact)
	}
	return &u, nil
}

func (r *Repository) Get(ctx context.Context, unitID int64) (*Unit, error) {
	const q = `
SELECT id, building_id, code, percentage::text, credit_balance::text, created_at
FROM units
WHERE id = $1
`
	var u Unit
	if err := r.db.QueryRow(ctx, q, unitID).Scan(&u.ID, &u.BuildingID, &u.Code, &u.Percentage, &u.CreditBalance, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	contacts, err := r.contacts(ctx, unitID)
	if err != nil {
		return nil, err
	}
	u.Contacts = contacts
	return &u, nil
}

func (r *Repository) ListByBuilding(ctx context.Context, buildingID int64) ([]Unit, error) {
	const q = `
SELECT id, building_id, code, percentage::text, credit_balance::text, created_at
FROM units
WHERE building_id = $1
ORDER BY code ASC
`
	rows, err := r.db.Query(ctx, q, buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.BuildingID, &u.Code, &u.Percentage, &u.CreditBalance, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		contacts, err := r.contacts(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Contacts = contacts
	}
	return out, nil
}

func (r *Repository) contacts(ctx context.Context, unitID int64) ([]Contact, error) {
	const q = `
SELECT id, role, name, COALESCE(email, ''), COALESCE(phone, '')
FROM contacts
WHERE unit_id = $1
ORDER BY id ASC
`
	rows, err := r.db.Query(ctx, q, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Role, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
