package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bizledger/internal/auth"
	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, receivables.ErrInvalidAmount),
		errors.Is(err, receivables.ErrOverpayment),
		errors.Is(err, receivables.ErrNotSettleable),
		errors.Is(err, receivables.ErrEmptyCompanyID),
		errors.Is(err, application.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingCompany):
		return http.StatusForbidden
	case errors.Is(err, receivables.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, receivables.ErrAlreadySettled),
		errors.Is(err, receivables.ErrConcurrentUpdate),
		errors.Is(err, receivables.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, receivables.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		reason = "internal error"
	}
	respondJSON(w, status, errorResponse{Error: reason})
}

func respondBadRequest(w http.ResponseWriter, reason string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: reason})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
