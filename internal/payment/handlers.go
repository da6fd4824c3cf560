package payment

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
	DB   *pgxpool.Pool
	Repo *Repository
}

type createRequest struct {
	UnitID        int64  `json:"unitId"`
	SettlementID  int64  `json:"settlementId"`
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receiptNumber"`
	PaymentDate   string `json:"paymentDate"`
	Notes         string `json:"notes"`
}

// Create records a payment and runs the full allocation waterfall inside one
// serializable transaction.
func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
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

	var summary *ledger.AllocationSummary
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		summary, err = ledger.AllocatePayment(r.Context(), postgres.NewStore(tx), ledger.AllocateInput{
			UnitID:        req.UnitID,
			SettlementID:  req.SettlementID,
			Amount:        amount,
			ReceiptNumber: strings.TrimSpace(req.ReceiptNumber),
			PaymentDate:   paymentDate,
			Notes:         strings.TrimSpace(req.Notes),
		})
		if err != nil {
			return err
		}
		return audit.Insert(r.Context(), tx, req.UnitID, &summary.PaymentID, "PAYMENT_REGISTERED", actor, map[string]any{
			"receiptNumber":   req.ReceiptNumber,
			"amount":          amount,
			"discountApplied": summary.DiscountApplied,
		})
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, summary)
}

// Cancel reverses a payment. The charge is recomputed and the payment's
// credit effects are compensated inside the same transaction.
func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payment id")
		return
	}

	actor := "admin"
	if a := api.AdminFromContext(r.Context()); a != nil {
		actor = a.Username
	}

	var res *ledger.CancellationResult
	err = db.WithSerializableTx(r.Context(), h.DB, func(tx pgx.Tx) error {
		res, err = ledger.CancelPayment(r.Context(), postgres.NewStore(tx), paymentID, time.Now().UTC())
		if err != nil {
			return err
		}
		return audit.Insert(r.Context(), tx, res.Payment.UnitID, &paymentID, "PAYMENT_CANCELLED", actor, map[string]any{
			"receiptNumber":  res.Payment.ReceiptNumber,
			"creditRestored": res.CreditRestored,
			"creditReversed": res.CreditReversed,
		})
	})
	if err != nil {
		api.WriteLedgerError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

func (h Handlers) History(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(r.URL.Query().Get("buildingId"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "buildingId is required")
		return
	}
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))

	records, err := h.Repo.History(r.Context(), buildingID, month, year)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list payments")
		return
	}
	if records == nil {
		records = []Record{}
	}
	api.WriteJSON(w, http.StatusOK, records)
}
