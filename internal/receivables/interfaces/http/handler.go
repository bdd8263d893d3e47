package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bizledger/internal/audit"
	"bizledger/internal/auth"
	"bizledger/internal/observability/metrics"
	"bizledger/internal/receivables/application"
	"bizledger/internal/receivables/interfaces"
)

const routePrefix = "/api/v1/receivables/"

// Services groups the application services exposed over HTTP.
type Services struct {
	Sweeper    *application.Sweeper
	Settlement *application.SettlementService
	Balance    *application.BalanceService
	Aging      *application.AgingService
	Settings   *application.SettingsService
	// AuditTrail is optional; without it GET audit answers 404.
	AuditTrail audit.Reader
}

// Handler serves company-scoped receivables routes under /api/v1/receivables/.
type Handler struct {
	services    Services
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(services Services, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if services.Sweeper == nil {
		return nil, errors.New("receivables handler: nil sweeper")
	}
	if services.Settlement == nil {
		return nil, errors.New("receivables handler: nil settlement service")
	}
	if services.Balance == nil {
		return nil, errors.New("receivables handler: nil balance service")
	}
	if services.Aging == nil {
		return nil, errors.New("receivables handler: nil aging service")
	}
	if services.Settings == nil {
		return nil, errors.New("receivables handler: nil settings service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{services: services, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP routes receivables requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID == "" {
		respondError(w, auth.ErrMissingCompany)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, routePrefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case rest == "reconcile" && r.Method == http.MethodPost:
		h.handleReconcile(w, r, companyID)
	case rest == "aging" && r.Method == http.MethodGet:
		h.handleAging(w, r, companyID)
	case rest == "audit" && r.Method == http.MethodGet:
		h.handleAuditTrail(w, r, companyID)
	case rest == "aging/export.xlsx" && r.Method == http.MethodGet:
		h.handleAgingExport(w, r, companyID)
	case rest == "settings/company":
		h.handleCompanySettings(w, r, companyID)
	case len(parts) == 3 && parts[0] == "settings" && parts[1] == "customers":
		h.handleCreditSettings(w, r, companyID, parts[2])
	case len(parts) == 3 && parts[0] == "entries" && parts[2] == "settle" && r.Method == http.MethodPost:
		h.handleSettle(w, r, companyID, parts[1])
	case len(parts) == 3 && parts[0] == "entries" && parts[2] == "history" && r.Method == http.MethodGet:
		h.handleHistory(w, r, companyID, parts[1])
	case len(parts) == 3 && parts[0] == "customers" && r.Method == http.MethodGet:
		switch parts[2] {
		case "balance":
			h.handleBalance(w, r, companyID, parts[1])
		case "statement":
			h.handleStatement(w, r, companyID, parts[1])
		case "statement.pdf":
			h.handleStatementPDF(w, r, companyID, parts[1])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request, companyID string) {
	result, err := h.services.Sweeper.Sweep(r.Context(), companyID)
	if err != nil && !result.Cancelled {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
	h.logAudit(r, companyID, "receivables.reconcile", "company", companyID, map[string]any{
		"updated_count":   result.UpdatedCount,
		"total_processed": result.TotalProcessed,
		"failed_count":    result.FailedCount,
	})
}

type settleRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request, companyID, entryID string) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	result, err := h.services.Settlement.Settle(r.Context(), application.SettleCommand{
		CompanyID:     companyID,
		EntryID:       entryID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Actor:         auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.logAudit(r, companyID, "receivables.settle", "entry", entryID, map[string]any{
		"amount":            req.Amount.String(),
		"payment_method":    req.PaymentMethod,
		"payment_entry_id":  result.PaymentEntryID,
		"settlement_amount": result.SettlementAmount.String(),
		"status":            result.Status,
	})
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, companyID, entryID string) {
	changes, err := h.services.Settings.History(r.Context(), companyID, entryID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, changes)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request, companyID, customerID string) {
	balance, err := h.services.Balance.Balance(r.Context(), companyID, customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance.Rounded())
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request, companyID, customerID string) {
	statement, err := h.services.Balance.Statement(r.Context(), companyID, customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	statement.Balance = statement.Balance.Rounded()
	respondJSON(w, http.StatusOK, statement)
}

func (h *Handler) handleStatementPDF(w http.ResponseWriter, r *http.Request, companyID, customerID string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport("pdf", result, time.Since(start))
	}()

	statement, err := h.services.Balance.Statement(r.Context(), companyID, customerID)
	if err != nil {
		result = metrics.ResultError
		respondError(w, err)
		return
	}
	data, err := interfaces.BuildCustomerStatementPDF(statement)
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("statement pdf export failed", zap.String("company_id", companyID), zap.String("customer_id", customerID), zap.Error(err))
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, companyID, "receivables.export", "customer", customerID, map[string]any{"format": "pdf"})
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request, companyID string) {
	report, err := h.services.Aging.Report(r.Context(), companyID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAgingExport(w http.ResponseWriter, r *http.Request, companyID string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport("xlsx", result, time.Since(start))
	}()

	report, err := h.services.Aging.Report(r.Context(), companyID)
	if err != nil {
		result = metrics.ResultError
		respondError(w, err)
		return
	}
	data, err := interfaces.BuildAgingXLSX(report)
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("aging xlsx export failed", zap.String("company_id", companyID), zap.Error(err))
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, companyID, "receivables.export", "aging", companyID, map[string]any{"format": "xlsx"})
}

type companySettingsRequest struct {
	GracePeriodDays     int             `json:"grace_period_days"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	CompoundingMode     string          `json:"compounding_mode"`
	MinimumFee          decimal.Decimal `json:"minimum_fee"`
}

func (h *Handler) handleCompanySettings(w http.ResponseWriter, r *http.Request, companyID string) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.services.Settings.Effective(r.Context(), companyID, "")
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req companySettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "invalid json")
			return
		}
		saved, err := h.services.Settings.UpdateCompany(r.Context(), application.CompanySettingsCommand{
			CompanyID:           companyID,
			GracePeriodDays:     req.GracePeriodDays,
			InterestRatePercent: req.InterestRatePercent,
			CompoundingMode:     req.CompoundingMode,
			MinimumFee:          req.MinimumFee,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, saved)
		h.logAudit(r, companyID, "receivables.settings.update", "company_settings", companyID, req)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type creditSettingsRequest struct {
	CreditLimit         decimal.Decimal  `json:"credit_limit"`
	GracePeriodDays     *int             `json:"grace_period_days,omitempty"`
	InterestRatePercent *decimal.Decimal `json:"interest_rate_percent,omitempty"`
}

func (h *Handler) handleCreditSettings(w http.ResponseWriter, r *http.Request, companyID, customerID string) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.services.Settings.Effective(r.Context(), companyID, customerID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req creditSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "invalid json")
			return
		}
		saved, err := h.services.Settings.UpdateCredit(r.Context(), application.CreditSettingsCommand{
			CompanyID:           companyID,
			CustomerID:          customerID,
			CreditLimit:         req.CreditLimit,
			GracePeriodDays:     req.GracePeriodDays,
			InterestRatePercent: req.InterestRatePercent,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, saved)
		h.logAudit(r, companyID, "receivables.settings.update", "credit_settings", customerID, req)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) logAudit(r *http.Request, companyID, action, resourceType, resourceID string, meta any) {
	if h.auditLogger == nil || companyID == "" {
		return
	}
	entry := audit.FromRequest(r, companyID, action, resourceType, resourceID, meta)
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request, companyID string) {
	if h.services.AuditTrail == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondBadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := h.services.AuditTrail.List(r.Context(), companyID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
