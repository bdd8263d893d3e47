package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"bizledger/internal/receivables/application"
)

// Clock provides time for deduplication.
type Clock interface {
	Now() time.Time
}

// Notifier renders overdue alerts and sends them through a channel.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	dedupeWindow time.Duration
	mu           sync.Mutex
	sent         map[string]time.Time
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithDedupeWindow suppresses repeat alerts for the same entry within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an overdue notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("overdue notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyOverdue implements application.OverdueNotifier.
func (n *Notifier) NotifyOverdue(ctx context.Context, alert application.OverdueAlert) error {
	if n == nil || n.channel == nil {
		return errors.New("overdue notifier: nil")
	}
	key := alert.CompanyID + "|" + alert.EntryID
	if !n.shouldSend(key) {
		return nil
	}
	content, err := n.template.Render(buildTemplateData(alert))
	if err != nil {
		return err
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return err
	}
	n.markSent(key)
	return nil
}

func buildTemplateData(alert application.OverdueAlert) TemplateData {
	data := TemplateData{
		CompanyID:       alert.CompanyID,
		CustomerID:      alert.CustomerID,
		EntryID:         alert.EntryID,
		Outstanding:     alert.Outstanding.StringFixed(2),
		AccruedInterest: alert.AccruedInterest.StringFixed(2),
		DetectedAt:      alert.DetectedAt.UTC().Format(time.RFC3339),
	}
	if alert.OverdueStartDate != nil {
		data.OverdueSince = alert.OverdueStartDate.UTC().Format("2006-01-02")
		if days := int(alert.DetectedAt.Sub(*alert.OverdueStartDate).Hours() / 24); days > 0 {
			data.DaysOverdue = days
		}
	}
	return data
}

func (n *Notifier) shouldSend(key string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	at, ok := n.sent[key]
	if !ok {
		return true
	}
	return n.clock.Now().UTC().Sub(at) >= n.dedupeWindow
}

// markSent records key and drops records whose window has passed.
func (n *Notifier) markSent(key string) {
	if n.dedupeWindow <= 0 {
		return
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, at := range n.sent {
		if now.Sub(at) >= n.dedupeWindow {
			delete(n.sent, k)
		}
	}
	n.sent[key] = now
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
