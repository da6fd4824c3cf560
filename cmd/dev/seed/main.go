package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"condoledger/internal/settlement"
	"condoledger/pkg/config"
	"condoledger/pkg/db"
)

// Seeds a small demo dataset: one building, four units with contacts, and
// two settlements (last month overdue, this month current).
func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open failed: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var buildingID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO buildings (name, address) VALUES ($1, $2) RETURNING id`,
			"Edificio San Martín", "Av. Rivadavia 1234",
		).Scan(&buildingID); err != nil {
			return err
		}

		units := []struct {
			code       string
			percentage string
			tenant     string
		}{
			{"1A", "30.00", "Ana García"},
			{"1B", "25.00", "Juan Pérez"},
			{"2A", "25.00", "María López"},
			{"2B", "20.00", "Carlos Ruiz"},
		}
		for _, u := range units {
			var unitID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO units (building_id, code, percentage) VALUES ($1, $2, $3) RETURNING id`,
				buildingID, u.code, u.percentage,
			).Scan(&unitID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO contacts (unit_id, role, name) VALUES ($1, 'TENANT', $2), ($1, 'PAYMENT_RESPONSIBLE', $2)`,
				unitID, u.tenant,
			); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		previous := now.AddDate(0, -1, 0)
		for _, period := range []struct {
			month, year int
			anchor      time.Time
		}{
			{int(previous.Month()), previous.Year(), previous},
			{int(now.Month()), now.Year(), now},
		} {
			due1 := time.Date(period.anchor.Year(), period.anchor.Month(), 10, 0, 0, 0, 0, time.UTC)
			due2 := time.Date(period.anchor.Year(), period.anchor.Month(), 20, 0, 0, 0, 0, time.UTC)
			if _, err := settlement.Create(ctx, tx, settlement.CreateInput{
				BuildingID:   buildingID,
				Month:        period.month,
				Year:         period.year,
				TotalExpense: decimal.RequireFromString("100000"),
				DueDate1:     &due1,
				DueDate2:     &due2,
				LateFeeRate:  decimal.RequireFromString("5"),
			}); err != nil {
				return err
			}
		}

		fmt.Printf("seeded building %d with %d units\n", buildingID, len(units))
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}
