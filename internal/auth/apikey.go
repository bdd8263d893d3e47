package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader carries the shared secret used by automation callers.
const APIKeyHeader = "X-API-Key"

// SubjectAutomation identifies requests authenticated by the automation API key.
const SubjectAutomation = "automation"

// APIKeyMiddleware authenticates scheduled/automation callers with a shared secret.
type APIKeyMiddleware struct {
	Key []byte
}

// NewAPIKeyMiddleware constructs API key middleware.
func NewAPIKeyMiddleware(key string) *APIKeyMiddleware {
	return &APIKeyMiddleware{Key: []byte(strings.TrimSpace(key))}
}

// Wrap enforces the API key.
func (m *APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Key) == 0 {
			writeError(w, http.StatusUnauthorized, ErrAPIKeyNotConfigured)
			return
		}
		provided := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if provided == "" {
			writeError(w, http.StatusUnauthorized, ErrMissingAPIKey)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), m.Key) != 1 {
			writeError(w, http.StatusUnauthorized, ErrInvalidAPIKey)
			return
		}
		ctx := WithIdentity(r.Context(), "", RoleAdmin, SubjectAutomation)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
