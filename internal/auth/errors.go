package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingCompany indicates the request carries no company scope.
	ErrMissingCompany = errors.New("auth: missing company scope")

	ErrAPIKeyNotConfigured = errors.New("auth: automation key not configured")
	ErrMissingAPIKey       = errors.New("auth: missing api key")
	ErrInvalidAPIKey       = errors.New("auth: invalid api key")
)

// writeError renders auth failures with the same {"error": ...} body the API uses.
func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
