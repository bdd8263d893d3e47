package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger/internal/audit"
	"bizledger/internal/auth"
	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
	"bizledger/internal/receivables/infrastructure/memory"
)

var (
	testSecret = []byte("test-secret")
	testNow    = time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) List(_ context.Context, companyID string, limit int) ([]audit.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Entry, 0)
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if a.entries[i].CompanyID == companyID {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

type testServer struct {
	store  *memory.Store
	audit  *recordingAudit
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	clock := fixedClock{}
	resolver := application.NewSettingsResolver(receivables.DefaultDefaults())
	sink, err := application.NewStatusSink(1, nil, nil, nil)
	require.NoError(t, err)
	sweeper, err := application.NewSweeper(store, resolver, sink, application.WithSweepClock(clock))
	require.NoError(t, err)
	settlement, err := application.NewSettlementService(store, sink, application.WithSettlementClock(clock))
	require.NoError(t, err)
	balance, err := application.NewBalanceService(store, clock, nil)
	require.NoError(t, err)
	aging, err := application.NewAgingService(store, resolver, clock)
	require.NoError(t, err)
	settings, err := application.NewSettingsService(store, resolver, clock, nil)
	require.NoError(t, err)

	recorder := &recordingAudit{}
	handler, err := NewHandler(Services{
		Sweeper:    sweeper,
		Settlement: settlement,
		Balance:    balance,
		Aging:      aging,
		Settings:   settings,
		AuditTrail: recorder,
	}, recorder, nil)
	require.NoError(t, err)
	automation, err := NewAutomationHandler(sweeper, recorder, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/receivables/", handler)
	mux.Handle("/api/v1/automation/reconcile", auth.NewAPIKeyMiddleware("automation-key").Wrap(automation))
	policy := auth.NewDefaultPolicy(nil, []string{"/api/v1/automation/"})
	server := httptest.NewServer(auth.NewMiddleware(testSecret, policy).Wrap(mux))
	t.Cleanup(server.Close)
	return &testServer{store: store, audit: recorder, server: server}
}

func (s *testServer) addSell(t *testing.T, companyID, customerID, id, amount string, daysAgo int) {
	t.Helper()
	require.NoError(t, s.store.SaveEntry(context.Background(), &receivables.Entry{
		ID:         id,
		CompanyID:  companyID,
		CustomerID: customerID,
		Type:       receivables.EntryTypeSell,
		Amount:     decimal.RequireFromString(amount),
		Date:       testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Status:     receivables.StatusUnpaid,
	}))
}

func (s *testServer) do(t *testing.T, method, path, companyID, role, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if companyID != "" {
		req.Header.Set("Authorization", "Bearer "+mustToken(t, companyID, role))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestReconcileThenSettleFlow(t *testing.T) {
	s := newTestServer(t)
	s.addSell(t, "co-1", "cust-1", "inv-1", "12000", 70)
	require.NoError(t, s.store.UpsertCreditSettings(context.Background(), &receivables.CreditSettings{
		CompanyID:           "co-1",
		CustomerID:          "cust-1",
		CreditLimit:         decimal.NewFromInt(10000),
		OriginalCreditLimit: decimal.NewFromInt(10000),
		GracePeriodDays:     30,
		InterestRatePercent: decimal.NewFromInt(18),
	}))

	resp := s.do(t, http.MethodPost, "/api/v1/receivables/reconcile", "co-1", "admin", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sweep application.SweepResult
	decode(t, resp, &sweep)
	assert.Equal(t, 1, sweep.UpdatedCount)
	require.Len(t, sweep.Transitions, 1)
	assert.Equal(t, receivables.StatusOverdue, sweep.Transitions[0].To)

	resp = s.do(t, http.MethodPost, "/api/v1/receivables/entries/inv-1/settle", "co-1", "operator", `{"amount":"5000","payment_method":"bank_transfer"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settled application.SettleResult
	decode(t, resp, &settled)
	assert.Equal(t, receivables.StatusPartiallyPaid, settled.Status)
	assert.Equal(t, "7000", settled.RemainingAmount.String())
	require.NotNil(t, settled.NewCreditLimit)
	assert.Equal(t, "10100", settled.NewCreditLimit.String())

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/customers/cust-1/balance", "co-1", "viewer", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance struct {
		Balance         string `json:"balance"`
		AvailableCredit string `json:"available_credit"`
	}
	decode(t, resp, &balance)
	assert.Equal(t, "7000", balance.Balance)
	assert.Equal(t, "3100", balance.AvailableCredit)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/entries/inv-1/history", "co-1", "viewer", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []receivables.StatusChange
	decode(t, resp, &history)
	require.Len(t, history, 2)
	assert.Equal(t, receivables.StatusOverdue, history[0].NewStatus)
	assert.Equal(t, receivables.StatusPartiallyPaid, history[1].NewStatus)
	assert.Equal(t, "user-1", history[1].Actor)

	assert.Equal(t, []string{"receivables.reconcile", "receivables.settle"}, s.audit.actions())
}

func TestSettleErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.addSell(t, "co-1", "cust-1", "inv-1", "1000", 5)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "invalid json", path: "/api/v1/receivables/entries/inv-1/settle", body: "{", want: http.StatusBadRequest},
		{name: "zero amount", path: "/api/v1/receivables/entries/inv-1/settle", body: `{"amount":0}`, want: http.StatusBadRequest},
		{name: "unknown entry", path: "/api/v1/receivables/entries/missing/settle", body: `{"amount":10}`, want: http.StatusNotFound},
		{name: "full payment", path: "/api/v1/receivables/entries/inv-1/settle", body: `{"amount":1000}`, want: http.StatusOK},
		{name: "already settled", path: "/api/v1/receivables/entries/inv-1/settle", body: `{"amount":10}`, want: http.StatusConflict},
	}
	for _, tc := range cases {
		resp := s.do(t, http.MethodPost, tc.path, "co-1", "operator", tc.body)
		assert.Equal(t, tc.want, resp.StatusCode, tc.name)
		if tc.want != http.StatusOK {
			var body errorResponse
			decode(t, resp, &body)
			assert.NotEmpty(t, body.Error, tc.name)
		}
	}
}

func TestCompanyScopeIsolation(t *testing.T) {
	s := newTestServer(t)
	s.addSell(t, "co-1", "cust-1", "inv-1", "1000", 5)

	resp := s.do(t, http.MethodPost, "/api/v1/receivables/entries/inv-1/settle", "co-2", "operator", `{"amount":10}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/customers/cust-1/balance", "co-2", "viewer", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/customers/cust-1/balance", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSettingsRoutes(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/v1/receivables/settings/company", "co-1", "admin",
		`{"grace_period_days":10,"interest_rate_percent":"12","compounding_mode":"weekly","minimum_fee":"5"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/api/v1/receivables/settings/customers/cust-1", "co-1", "admin", `{"credit_limit":"2500","grace_period_days":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/settings/customers/cust-1", "co-1", "viewer", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var effective receivables.Settings
	decode(t, resp, &effective)
	assert.Equal(t, 3, effective.GracePeriodDays)
	assert.True(t, effective.InterestRatePercent.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, receivables.SettingsSourceCustomer, effective.Source)

	resp = s.do(t, http.MethodPut, "/api/v1/receivables/settings/company", "co-1", "admin", `{"grace_period_days":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/api/v1/receivables/settings/company", "co-1", "viewer", `{"grace_period_days":1}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAgingAndExports(t *testing.T) {
	s := newTestServer(t)
	s.addSell(t, "co-1", "cust-1", "inv-1", "1000", 45)
	s.addSell(t, "co-1", "cust-2", "inv-2", "400", 2)

	resp := s.do(t, http.MethodGet, "/api/v1/receivables/aging", "co-1", "viewer", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report application.AgingReport
	decode(t, resp, &report)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, "1400", report.Totals.Outstanding.String())

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/aging/export.xlsx", "co-1", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/customers/cust-1/statement.pdf", "co-1", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/customers/cust-1/statement.pdf", "co-1", "viewer", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAutomationReconcile(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.UpsertCompanySettings(context.Background(), &receivables.CompanySettings{
		CompanyID:           "co-1",
		GracePeriodDays:     30,
		InterestRatePercent: decimal.NewFromInt(18),
	}))
	require.NoError(t, s.store.UpsertCompanySettings(context.Background(), &receivables.CompanySettings{
		CompanyID:           "co-2",
		GracePeriodDays:     10,
		InterestRatePercent: decimal.NewFromInt(18),
	}))
	s.addSell(t, "co-1", "cust-1", "inv-1", "1000", 40)
	s.addSell(t, "co-2", "cust-9", "inv-9", "1000", 15)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/v1/automation/reconcile", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, s.server.URL+"/api/v1/automation/reconcile", nil)
	require.NoError(t, err)
	req.Header.Set(auth.APIKeyHeader, "automation-key")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result application.SweepResult
	decode(t, resp, &result)
	assert.Equal(t, 2, result.Companies)
	assert.Equal(t, 2, result.UpdatedCount)
	assert.Zero(t, result.FailedCount)
}

func TestAuditTrailRoute(t *testing.T) {
	s := newTestServer(t)
	s.addSell(t, "co-a", "cust-1", "inv-1", "1000", 5)

	resp := s.do(t, http.MethodPost, "/api/v1/receivables/entries/inv-1/settle", "co-a", "operator", `{"amount":"100"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/audit", "co-a", "operator", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/audit?limit=10", "co-a", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []audit.Entry
	decode(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "receivables.settle", entries[0].Action)
	assert.Equal(t, "user-1", entries[0].Actor)
	assert.Equal(t, "inv-1", entries[0].ResourceID)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/audit", "co-b", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &entries)
	assert.Empty(t, entries)

	resp = s.do(t, http.MethodGet, "/api/v1/receivables/audit?limit=abc", "co-a", "admin", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(receivables.ErrStoreUnavailable))
	assert.Equal(t, http.StatusConflict, statusFor(receivables.ErrConcurrentUpdate))
	assert.Equal(t, http.StatusBadRequest, statusFor(receivables.ErrOverpayment))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func mustToken(t *testing.T, companyID, role string) string {
	t.Helper()
	token, err := auth.IssueJWT(testSecret, companyID, auth.Role(role), "user-1", time.Hour)
	require.NoError(t, err)
	return token
}
