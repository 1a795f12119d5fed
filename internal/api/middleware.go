// Package api implements the syncbox REST API using chi.
package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator reports whether a bearer token is valid.
type TokenValidator func(token string) (bool, error)

// AuthMiddleware returns middleware that validates a Bearer token against
// the issued-token store. If enabled is false, all requests pass through
// (disabled mode, for local single-user setups).
func AuthMiddleware(enabled bool, validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			ok, err := validate(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				slog.Error("token validation failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
				return
			}
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
