package unit

import (
	"encoding/json"
	"errors"
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
	"condoledger/internal/billing"
	"condoledger/internal/building"
	"condoledger/internal/credit"
	"condoledger/internal/ledger"
	"condoledger/internal/ledger/postgres"
	"condoledger/pkg/db"
)

type Handlers struct {
	DB        *pgxpool.Pool
	Repo      *Repository
	Buildings *building.Repository
	Credits   *credit.Repository
}

type createRequest struct {
	BuildingID int64     `json:"buildingId"`
	Code       string    `json:"code"`
	Percentage string    `json:"percentage"`
	Contacts   []Contact `json:"contacts"`
}

var maxPercentage = decimal.NewFromInt(100)

func validRole(role string) bool {
	switch role {
	case RoleTenant, RolePaymentResponsible, RoleOwner, RoleAgency:
		return true
	}
	return false
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "code is required")
		return
	}
	percentage, err := decimal.NewFromString(strings.TrimSpace(req.Percentage))
	if err != nil || !percentage.IsPositive() {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "percentage must be a positive decimal")
		return
	}
	for _, c := range req.Contacts {
		if !validRole(c.Role) {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid contact role "+c.Role)
			return
		}
		if strings.TrimSpace(c.Name) == "" {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "contact name is required")
			return
		}
	}

	if _, err := h.Buildings.Get(r.Context(), req.BuildingID); err != nil {
		building.WriteGetError(w, err)
		return
	}

	assigned, err := h.Repo.PercentageSum(r.Context(), req.BuildingID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to check percentages")
		return
	}
	if assigned.Add(percentage).GreaterThan(maxPercentage) {
		api.WriteLedgerError(w, billing.ValidationError{
			Code:    "PERCENTAGE_EXCEEDED",
			Message: "building ownership percentages cannot exceed 100",
		})
		return
	}

	var created *Unit
	err = db.WithTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		created, err = h.Repo.Create(r.Context(), tx, CreateInput{
			BuildingID: req.BuildingID,
			Code:       req.Code,
			Percentage: percentage,
			Contacts:   req.Contacts,
		})
		return err
	})
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create unit")
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (h Handlers) ListByBuilding(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathID(r, "id")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid building id")
		return
	}
	units, err := h.Repo.ListByBuilding(r.Context(), buildingID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list units")
		return
	}
	if units == nil {
		units = []Unit{}
	}
	api.WriteJSON(w, http.StatusOK, units)
}

// Arrears serves the per-period overdue detail. Freezing late fees is a write,
// so even this read runs under the serializable transaction.
func (h Handlers) Arrears(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r, "id")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid unit id")
		return
	}
	reference, err := queryDate(r, "date")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "date must be YYYY-MM-DD")
		return
	}

	var summary *ledger.ArrearsSummary
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		summary, err = ledger.UnitArrears(r.Context(), postgres.NewStore(tx), unitID, reference)
		return err
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	if summary.Periods == nil {
		summary.Periods = []ledger.ArrearsPeriod{}
	}
	api.WriteJSON(w, http.StatusOK, summary)
}

type applyCreditRequest struct {
	Date string `json:"date"`
}

func (h Handlers) ApplyCredit(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r, "id")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid unit id")
		return
	}
	var req applyCreditRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reference := time.Now().UTC()
	if strings.TrimSpace(req.Date) != "" {
		reference, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "date must be YYYY-MM-DD")
			return
		}
	}

	actor := "admin"
	if a := api.AdminFromContext(r.Context()); a != nil {
		actor = a.Username
	}

	var res *ledger.CreditSyncResult
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		res, err = ledger.ApplyAvailableCredit(r.Context(), postgres.NewStore(tx), unitID, reference)
		if err != nil {
			return err
		}
		return audit.Insert(r.Context(), tx, unitID, nil, "CREDIT_APPLIED", actor, map[string]any{
			"appliedToArrears":  res.AppliedToArrears,
			"appliedToUpcoming": res.AppliedToUpcoming,
			"creditBalance":     res.CreditBalance,
		})
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

func (h Handlers) CreditMovements(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r, "id")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid unit id")
		return
	}
	if _, err := h.Repo.Get(r.Context(), unitID); err != nil {
		writeUnitError(w, err)
		return
	}
	movements, err := h.Credits.ListByUnit(r.Context(), unitID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list credit movements")
		return
	}
	if movements == nil {
		movements = []credit.Movement{}
	}
	api.WriteJSON(w, http.StatusOK, movements)
}

func (h Handlers) AccountHistory(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r, "id")
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid unit id")
		return
	}
	if _, err := h.Repo.Get(r.Context(), unitID); err != nil {
		writeUnitError(w, err)
		return
	}
	entries, err := h.Repo.AccountHistory(r.Context(), unitID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to build account history")
		return
	}
	if entries == nil {
		entries = []AccountEntry{}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

func writeUnitError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unit not found")
		return
	}
	api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load unit")
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
