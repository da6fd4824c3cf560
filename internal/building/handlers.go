package building

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"condoledger/internal/api"
)

type Handlers struct {
	Repo *Repository
}

type createRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "name is required")
		return
	}

	b, err := h.Repo.Create(r.Context(), req.Name, strings.TrimSpace(req.Address))
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to create building")
		return
	}
	api.WriteJSON(w, http.StatusCreated, b)
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	buildings, err := h.Repo.List(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list buildings")
		return
	}
	if buildings == nil {
		buildings = []Building{}
	}
	api.WriteJSON(w, http.StatusOK, buildings)
}

// WriteGetError maps repository lookup errors for handlers in other packages
// that resolve a building first.
func WriteGetError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "building not found")
		return
	}
	api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load building")
}
