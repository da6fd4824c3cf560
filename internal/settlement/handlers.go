package settlement

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
	"condoledger/internal/building"
	"condoledger/pkg/db"
)

type Handlers struct {
	DB        *pgxpool.Pool
	Repo      *Repository
	Buildings *building.Repository
}

type createRequest struct {
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	TotalExpense string `json:"totalExpense"`
	DueDate1     string `json:"dueDate1"`
	DueDate2     string `json:"dueDate2"`
	LateFeeRate  string `json:"lateFeeRate"`
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid building id")
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body")
		return
	}
	if req.Month < 1 || req.Month > 12 {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "month must be between 1 and 12")
		return
	}
	if req.Year < 2000 || req.Year > 2200 {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "year out of range")
		return
	}
	totalExpense, err := decimal.NewFromString(strings.TrimSpace(req.TotalExpense))
	if err != nil || !totalExpense.IsPositive() {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "totalExpense must be a positive decimal")
		return
	}
	lateFeeRate := decimal.Zero
	if strings.TrimSpace(req.LateFeeRate) != "" {
		lateFeeRate, err = decimal.NewFromString(strings.TrimSpace(req.LateFeeRate))
		if err != nil || lateFeeRate.IsNegative() {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "lateFeeRate must be a non-negative decimal")
			return
		}
	}
	dueDate1, err := optionalDate(req.DueDate1)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "dueDate1 must be YYYY-MM-DD")
		return
	}
	dueDate2, err := optionalDate(req.DueDate2)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "dueDate2 must be YYYY-MM-DD")
		return
	}
	if dueDate1 != nil && dueDate2 != nil && dueDate2.Before(*dueDate1) {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "dueDate2 cannot precede dueDate1")
		return
	}

	if _, err := h.Buildings.Get(r.Context(), buildingID); err != nil {
		building.WriteGetError(w, err)
		return
	}

	var created *Record
	err = db.WithTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		created, err = Create(r.Context(), tx, CreateInput{
			BuildingID:   buildingID,
			Month:        req.Month,
			Year:         req.Year,
			TotalExpense: totalExpense,
			DueDate1:     dueDate1,
			DueDate2:     dueDate2,
			LateFeeRate:  lateFeeRate,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			api.WriteError(w, http.StatusConflict, "DUPLICATE_SETTLEMENT", err.Error())
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create settlement")
		return
	}
	api.WriteJSON(w, http.StatusCreated, created)
}

func (h Handlers) ListByBuilding(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid building id")
		return
	}
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))

	records, err := h.Repo.ListByBuilding(r.Context(), buildingID, month, year)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list settlements")
		return
	}
	if records == nil {
		records = []Record{}
	}
	api.WriteJSON(w, http.StatusOK, records)
}

func (h Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	settlementID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid settlement id")
		return
	}

	err = db.WithTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		return Delete(r.Context(), tx, settlementID)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			api.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		case errors.Is(err, ErrHasPayments):
			api.WriteError(w, http.StatusConflict, "SETTLEMENT_HAS_PAYMENTS", err.Error())
		default:
			api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete settlement")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func optionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
