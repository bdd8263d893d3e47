package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"bizledger/internal/audit"
	"bizledger/internal/receivables/application"
)

// AutomationHandler serves POST /api/v1/automation/reconcile for scheduled callers.
// An empty body sweeps every company; {"company_id": "..."} sweeps one.
type AutomationHandler struct {
	sweeper     *application.Sweeper
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewAutomationHandler constructs the handler.
func NewAutomationHandler(sweeper *application.Sweeper, auditLogger audit.Logger, logger *zap.Logger) (*AutomationHandler, error) {
	if sweeper == nil {
		return nil, errors.New("automation handler: nil sweeper")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationHandler{sweeper: sweeper, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP runs a sweep.
func (h *AutomationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(w, "invalid json")
		return
	}

	var (
		result application.SweepResult
		err    error
	)
	if req.CompanyID != "" {
		result, err = h.sweeper.Sweep(r.Context(), req.CompanyID)
	} else {
		result, err = h.sweeper.SweepAll(r.Context())
	}
	if err != nil && !result.Cancelled {
		respondError(w, err)
		return
	}
	h.logger.Info("automation sweep completed",
		zap.String("company_id", req.CompanyID),
		zap.Int("companies", result.Companies),
		zap.Int("updated_count", result.UpdatedCount),
		zap.Int("failed_count", result.FailedCount),
	)
	respondJSON(w, http.StatusOK, result)

	if h.auditLogger != nil {
		entry := audit.FromRequest(r, req.CompanyID, "receivables.reconcile.automation", "sweep", req.CompanyID, map[string]any{
			"companies":     result.Companies,
			"updated_count": result.UpdatedCount,
			"failed_count":  result.FailedCount,
		})
		if err := h.auditLogger.Log(r.Context(), entry); err != nil {
			h.logger.Warn("audit log failed", zap.Error(err))
		}
	}
}
