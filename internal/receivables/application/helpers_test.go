package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
	"bizledger/internal/receivables/infrastructure/memory"
)

var now = time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []application.StatusChanged
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, event application.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []application.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]application.StatusChanged(nil), p.events...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []application.OverdueAlert
}

func (n *recordingNotifier) NotifyOverdue(_ context.Context, alert application.OverdueAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) Alerts() []application.OverdueAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]application.OverdueAlert(nil), n.alerts...)
}

type fixture struct {
	store      *memory.Store
	publisher  *recordingPublisher
	notifier   *recordingNotifier
	sink       *application.StatusSink
	resolver   *application.SettingsResolver
	sweeper    *application.Sweeper
	settlement *application.SettlementService
	balance    *application.BalanceService
	aging      *application.AgingService
}

func newFixture(t *testing.T, opts ...application.SettlementOption) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store *memory.Store, opts ...application.SettlementOption) *fixture {
	t.Helper()
	return buildFixture(t, store, store, opts...)
}

func buildFixture(t *testing.T, store *memory.Store, backing receivables.Store, opts ...application.SettlementOption) *fixture {
	t.Helper()
	clock := fixedClock{now: now}
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}

	sink, err := application.NewStatusSink(1, publisher, notifier, nil)
	require.NoError(t, err)
	resolver := application.NewSettingsResolver(receivables.DefaultDefaults())

	sweeper, err := application.NewSweeper(backing, resolver, sink, application.WithSweepClock(clock))
	require.NoError(t, err)

	settlementOpts := append([]application.SettlementOption{application.WithSettlementClock(clock)}, opts...)
	settlement, err := application.NewSettlementService(backing, sink, settlementOpts...)
	require.NoError(t, err)

	balance, err := application.NewBalanceService(backing, clock, nil)
	require.NoError(t, err)

	aging, err := application.NewAgingService(backing, resolver, clock)
	require.NoError(t, err)

	return &fixture{
		store:      store,
		publisher:  publisher,
		notifier:   notifier,
		sink:       sink,
		resolver:   resolver,
		sweeper:    sweeper,
		settlement: settlement,
		balance:    balance,
		aging:      aging,
	}
}

func (f *fixture) addSell(t *testing.T, companyID, customerID, id, amount string, daysAgo int) {
	t.Helper()
	require.NoError(t, f.store.SaveEntry(context.Background(), &receivables.Entry{
		ID:         id,
		CompanyID:  companyID,
		CustomerID: customerID,
		Type:       receivables.EntryTypeSell,
		Amount:     decimal.RequireFromString(amount),
		Date:       now.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Status:     receivables.StatusUnpaid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func (f *fixture) addCompany(t *testing.T, companyID string, grace int, rate string) {
	t.Helper()
	require.NoError(t, f.store.UpsertCompanySettings(context.Background(), &receivables.CompanySettings{
		CompanyID:           companyID,
		GracePeriodDays:     grace,
		InterestRatePercent: decimal.RequireFromString(rate),
	}))
}

func (f *fixture) addCredit(t *testing.T, companyID, customerID, limit string, grace int, rate string) {
	t.Helper()
	require.NoError(t, f.store.UpsertCreditSettings(context.Background(), &receivables.CreditSettings{
		CompanyID:           companyID,
		CustomerID:          customerID,
		CreditLimit:         decimal.RequireFromString(limit),
		OriginalCreditLimit: decimal.RequireFromString(limit),
		GracePeriodDays:     grace,
		InterestRatePercent: decimal.RequireFromString(rate),
	}))
}

func (f *fixture) entry(t *testing.T, companyID, id string) *receivables.Entry {
	t.Helper()
	entry, err := f.store.GetEntry(context.Background(), companyID, id)
	require.NoError(t, err)
	return entry
}

// failingTxStore wraps the memory store and fails chosen transactional writes.
type failingTxStore struct {
	*memory.Store
	failInsert error
	failCredit error
}

func (s *failingTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx receivables.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx receivables.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failInsert: s.failInsert, failCredit: s.failCredit})
	})
}

type failingTx struct {
	receivables.Tx
	failInsert error
	failCredit error
}

func (t *failingTx) InsertEntry(ctx context.Context, entry *receivables.Entry) error {
	if t.failInsert != nil {
		return t.failInsert
	}
	return t.Tx.InsertEntry(ctx, entry)
}

func (t *failingTx) SaveCreditSettings(ctx context.Context, settings *receivables.CreditSettings) error {
	if t.failCredit != nil {
		return t.failCredit
	}
	return t.Tx.SaveCreditSettings(ctx, settings)
}

var errInjected = errors.New("injected failure")
