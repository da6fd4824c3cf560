package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"condoledger/internal/api"
	"condoledger/pkg/config"
)

type Handlers struct {
	Cfg config.Config
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login checks the configured admin credentials and issues an HS256 session
// token. Comparison is constant-time so the endpoint leaks nothing about how
// close a guess was.
func (h Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.Cfg.Auth.AdminPassword == "" || h.Cfg.Auth.JWTSecret == "" {
		api.WriteError(w, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "admin credentials are not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid JSON body")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.Cfg.Auth.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.Cfg.Auth.AdminPassword)) == 1
	if !userOK || !passOK {
		api.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	now := time.Now()
	expires := now.Add(time.Duration(h.Cfg.Auth.TokenTTLHours) * time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	})
	signed, err := token.SignedString([]byte(h.Cfg.Auth.JWTSecret))
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to sign token")
		return
	}

	api.WriteJSON(w, http.StatusOK, loginResponse{Token: signed, ExpiresAt: expires})
}
