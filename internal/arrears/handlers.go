package arrears

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"condoledger/internal/api"
	"condoledger/internal/audit"
	"condoledger/internal/ledger"
	"condoledger/internal/ledger/postgres"
	"condoledger/pkg/db"
)

type Handlers struct {
	DB *pgxpool.Pool
}

// Debtor is one unit with outstanding arrears, with the contact who is
// responsible for paying, when one is registered.
type Debtor struct {
	UnitID             int64                  `json:"unitId"`
	UnitCode           string                 `json:"unitCode"`
	PaymentResponsible string                 `json:"paymentResponsible,omitempty"`
	Total              decimal.Decimal        `json:"total"`
	Periods            []ledger.ArrearsPeriod `json:"periods"`
}

// Debtors lists every unit of the building with arrears at the reference
// date. Late fees freeze on first read past a due date, so this runs under
// the serializable transaction like the other arrears reads.
func (h Handlers) Debtors(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid building id")
		return
	}
	reference := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		reference, err = time.Parse("2006-01-02", raw)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "date must be YYYY-MM-DD")
			return
		}
	}

	var debtors []Debtor
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		debtors = nil

		const qUnits = `
SELECT u.id, u.code, COALESCE(c.name, '')
FROM units u
LEFT JOIN contacts c ON c.unit_id = u.id AND c.role = 'PAYMENT_RESPONSIBLE'
WHERE u.building_id = $1
ORDER BY u.code ASC
`
		rows, err := tx.Query(r.Context(), qUnits, buildingID)
		if err != nil {
			return err
		}
		type unitRow struct {
			id          int64
			code        string
			responsible string
		}
		var units []unitRow
		for rows.Next() {
			var u unitRow
			if err := rows.Scan(&u.id, &u.code, &u.responsible); err != nil {
				rows.Close()
				return err
			}
			units = append(units, u)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		store := postgres.NewStore(tx)
		for _, u := range units {
			summary, err := ledger.UnitArrears(r.Context(), store, u.id, reference)
			if err != nil {
				return err
			}
			if !summary.Total.IsPositive() {
				continue
			}
			debtors = append(debtors, Debtor{
				UnitID:             u.id,
				UnitCode:           u.code,
				PaymentResponsible: u.responsible,
				Total:              summary.Total,
				Periods:            summary.Periods,
			})
		}
		return nil
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	if debtors == nil {
		debtors = []Debtor{}
	}
	api.WriteJSON(w, http.StatusOK, debtors)
}

type payRequest struct {
	UnitID        int64  `json:"unitId"`
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receiptNumber"`
	PaymentDate   string `json:"paymentDate"`
	Notes         string `json:"notes"`
}

// Pay takes a debtor payment against a unit's arrears: oldest period first,
// principal before late fee, the unit's stored credit drawn alongside the
// cash, any surplus kept as credit.
func (h Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid building id")
		return
	}
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "amount must be a decimal")
		return
	}
	paymentDate := time.Now().UTC()
	if strings.TrimSpace(req.PaymentDate) != "" {
		paymentDate, err = time.Parse("2006-01-02", strings.TrimSpace(req.PaymentDate))
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "paymentDate must be YYYY-MM-DD")
			return
		}
	}

	actor := "admin"
	if a := api.AdminFromContext(r.Context()); a != nil {
		actor = a.Username
	}

	var res *ledger.DebtorFundsResult
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		store := postgres.NewStore(tx)
		u, err := store.UnitForUpdate(r.Context(), req.UnitID)
		if err != nil {
			return err
		}
		if u.BuildingID != buildingID {
			return ledger.ErrBuildingMismatch
		}
		res, err = ledger.ApplyDebtorFunds(r.Context(), store, ledger.DebtorFundsInput{
			UnitID:        req.UnitID,
			Amount:        amount,
			ReceiptNumber: strings.TrimSpace(req.ReceiptNumber),
			PaymentDate:   paymentDate,
			Notes:         strings.TrimSpace(req.Notes),
		})
		if err != nil {
			return err
		}
		return audit.Insert(r.Context(), tx, req.UnitID, nil, "DEBTOR_PAYMENT", actor, map[string]any{
			"receiptNumber":    req.ReceiptNumber,
			"amount":           amount,
			"appliedToArrears": res.AppliedToArrears,
		})
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}
