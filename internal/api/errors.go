package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"condoledger/internal/billing"
	"condoledger/internal/ledger"
	"condoledger/pkg/db"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteLedgerError maps engine and transaction errors to the HTTP taxonomy:
// validation 400, missing rows 404, conflicts 409, everything else 500.
func WriteLedgerError(w http.ResponseWriter, err error) {
	var verr billing.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.Is(err, ledger.ErrNonPositiveAmount):
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, ledger.ErrMissingReceipt):
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, ledger.ErrBuildingMismatch):
		WriteError(w, http.StatusBadRequest, "BUILDING_MISMATCH", err.Error())
	case errors.Is(err, ledger.ErrUnitNotFound),
		errors.Is(err, ledger.ErrSettlementNotFound),
		errors.Is(err, ledger.ErrChargeNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ledger.ErrAlreadyCancelled):
		WriteError(w, http.StatusConflict, "ALREADY_CANCELLED", err.Error())
	case errors.Is(err, db.ErrSerializationFailure):
		WriteError(w, http.StatusConflict, "CONFLICT_RETRY", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
