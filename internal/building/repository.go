package building

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("building not found")

type Building struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, name, address string) (*Building, error) {
	const q = `
INSERT INTO buildings (name, address)
VALUES ($1, $2)
RETURNING id, name, COALESCE(address, ''), created_at
`
	var b Building
	if err := r.db.QueryRow(ctx, q, name, address).Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) List(ctx context.Context) ([]Building, error) {
	const q = `
SELECT id, name, COALESCE(address, ''), created_at
FROM buildings
ORDER BY name ASC
`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Building
	for rows.Next() {
		var b Building
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (*Building, error) {
	const q = `
SELECT id, name, COALESCE(address, ''), created_at
FROM buildings
WHERE id = $1
`
	var b Building
	if err := r.db.QueryRow(ctx, q, id).Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
