package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"condoledger/pkg/config"
)

// AdminAuth guards the operator API with a bearer JWT issued by the login
// endpoint. Tokens are HS256, signed with the configured secret; the subject
// claim carries the admin username.
func AdminAuth(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(authz, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.Auth.JWTSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			subject := ""
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				subject, _ = claims.GetSubject()
			}
			if subject == "" {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), &Admin{Username: subject})))
		})
	}
}
