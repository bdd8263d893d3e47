package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bizledger/internal/receivables/application"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	alert := application.OverdueAlert{
		EntryID:          "inv-1",
		CompanyID:        "co-1",
		CustomerID:       "cust-1",
		Outstanding:      decimal.RequireFromString("12000"),
		AccruedInterest:  decimal.RequireFromString("236.7123"),
		OverdueStartDate: &start,
		DetectedAt:       start.Add(40 * 24 * time.Hour),
	}
	if err := notifier.NotifyOverdue(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected text msgtype, got %q", payload.MsgType)
		}
		for _, want := range []string{"[Receivable Overdue]", "Entry: inv-1", "Outstanding: 12000.00", "Accrued Interest: 236.71", "Overdue Since: 2026-04-01"} {
			if !strings.Contains(payload.Text.Content, want) {
				t.Fatalf("expected %q in content:\n%s", want, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not called")
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	clock := &fixedClock{now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	alert := application.OverdueAlert{EntryID: "inv-1", CompanyID: "co-1", DetectedAt: clock.now}
	for i := 0; i < 3; i++ {
		if err := notifier.NotifyOverdue(context.Background(), alert); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 webhook call, got %d", got)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if err := notifier.NotifyOverdue(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 webhook calls, got %d", got)
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for 502 response")
	}
	if _, err := NewWebhookChannel(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestWebhookChannelSignsBody(t *testing.T) {
	type captured struct {
		body      []byte
		signature string
	}
	got := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{body: body, signature: r.Header.Get(SignatureHeader)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, WithSigningSecret("s3cret"))
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := <-got
	if req.signature == "" {
		t.Fatalf("expected signature header")
	}
	if want := Sign([]byte("s3cret"), req.body); req.signature != want {
		t.Fatalf("signature mismatch: got %s want %s", req.signature, want)
	}
}

func TestWebhookChannelErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errcode":93000}`))
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	err = channel.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "93000") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if _, err := NewWebhookChannel("ftp://example.com/hook"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestTemplateOmitsOverdueLineWithoutStartDate(t *testing.T) {
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	content, err := tpl.Render(TemplateData{CompanyID: "co-1", EntryID: "inv-1", Outstanding: "10.00", AccruedInterest: "0.00"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(content, "Overdue Since") {
		t.Fatalf("unexpected overdue line:\n%s", content)
	}
	if !strings.Contains(content, "Customer: -") {
		t.Fatalf("expected placeholder customer:\n%s", content)
	}

	custom, err := NewTemplate(`{{upper .EntryID}} late {{plural .DaysOverdue "day"}}`)
	if err != nil {
		t.Fatalf("new custom template: %v", err)
	}
	content, err = custom.Render(TemplateData{EntryID: "inv-9", DaysOverdue: 1})
	if err != nil {
		t.Fatalf("render custom: %v", err)
	}
	if content != "INV-9 late 1 day" {
		t.Fatalf("unexpected custom content %q", content)
	}
	if _, err := NewTemplate("{{.Broken"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNotifierPrunesExpiredRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	clock := &fixedClock{now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	for _, id := range []string{"inv-1", "inv-2", "inv-3"} {
		if err := notifier.NotifyOverdue(context.Background(), application.OverdueAlert{EntryID: id, CompanyID: "co-1"}); err != nil {
			t.Fatalf("notify %s: %v", id, err)
		}
	}
	if got := len(notifier.sent); got != 3 {
		t.Fatalf("expected 3 dedupe records, got %d", got)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if err := notifier.NotifyOverdue(context.Background(), application.OverdueAlert{EntryID: "inv-4", CompanyID: "co-1"}); err != nil {
		t.Fatalf("notify inv-4: %v", err)
	}
	if got := len(notifier.sent); got != 1 {
		t.Fatalf("expected expired records pruned, got %d", got)
	}
	if _, ok := notifier.sent["co-1|inv-4"]; !ok {
		t.Fatalf("expected inv-4 record kept")
	}
}
