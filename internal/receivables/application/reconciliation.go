package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bizledger/internal/observability/logger"
	"bizledger/internal/observability/metrics"
	receivables "bizledger/internal/receivables/domain"
)

const (
	triggerCompany = "company"
	triggerAll     = "all"

	defaultSweepConcurrency = 4

	tracerName = "bizledger/receivables"
)

// SweepTransition summarizes one status transition made by a sweep.
type SweepTransition struct {
	EntryID         string             `json:"entry_id"`
	CompanyID       string             `json:"company_id"`
	CustomerID      string             `json:"customer_id,omitempty"`
	From            receivables.Status `json:"from"`
	To              receivables.Status `json:"to"`
	DaysOverdue     int                `json:"days_overdue"`
	AccruedInterest decimal.Decimal    `json:"accrued_interest"`
}

// SweepFailure records an entry, or a whole company when EntryID is empty, that could not
// be reconciled.
type SweepFailure struct {
	CompanyID string `json:"company_id"`
	EntryID   string `json:"entry_id,omitempty"`
	Error     string `json:"error"`
}

// SweepResult is the fold of per-entry outcomes.
type SweepResult struct {
	Companies      int               `json:"companies"`
	UpdatedCount   int               `json:"updated_count"`
	TotalProcessed int               `json:"total_processed"`
	FailedCount    int               `json:"failed_count"`
	Transitions    []SweepTransition `json:"transitions"`
	Failures       []SweepFailure    `json:"failures,omitempty"`
	Cancelled      bool              `json:"cancelled,omitempty"`
}

func (r *SweepResult) merge(other SweepResult) {
	r.Companies += other.Companies
	r.UpdatedCount += other.UpdatedCount
	r.TotalProcessed += other.TotalProcessed
	r.FailedCount += other.FailedCount
	r.Transitions = append(r.Transitions, other.Transitions...)
	r.Failures = append(r.Failures, other.Failures...)
	r.Cancelled = r.Cancelled || other.Cancelled
}

// Sweeper re-evaluates open sell entries and writes back derived fields.
type Sweeper struct {
	store       receivables.Store
	resolver    *SettingsResolver
	sink        *StatusSink
	clock       receivables.Clock
	logger      *zap.Logger
	tracer      trace.Tracer
	concurrency int
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepClock overrides the clock.
func WithSweepClock(clock receivables.Clock) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSweepLogger sets the logger.
func WithSweepLogger(log *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithSweepTracerProvider overrides the global tracer provider.
func WithSweepTracerProvider(provider trace.TracerProvider) SweeperOption {
	return func(s *Sweeper) {
		if provider != nil {
			s.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithSweepConcurrency bounds how many companies SweepAll processes at once.
func WithSweepConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store receivables.Store, resolver *SettingsResolver, sink *StatusSink, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper: nil store")
	}
	if resolver == nil {
		return nil, errors.New("sweeper: nil settings resolver")
	}
	if sink == nil {
		return nil, errors.New("sweeper: nil status sink")
	}
	s := &Sweeper{
		store:       store,
		resolver:    resolver,
		sink:        sink,
		clock:       receivables.SystemClock{},
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		concurrency: defaultSweepConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sweep reconciles every open sell entry of one company. Entries are committed one at a
// time; a failed entry is recorded and skipped. Cancellation stops the loop between entries.
func (s *Sweeper) Sweep(ctx context.Context, companyID string) (SweepResult, error) {
	start := time.Now()
	result, err := s.sweepCompany(ctx, companyID)
	metrics.ObserveSweep(triggerCompany, sweepResultLabel(err, result), time.Since(start), result.UpdatedCount, result.TotalProcessed-result.UpdatedCount-result.FailedCount, result.FailedCount)
	return result, err
}

// SweepAll reconciles every company that has overdue settings configured.
func (s *Sweeper) SweepAll(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "receivables.SweepAll")
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	companies, err := s.store.ListCompanyIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveSweep(triggerAll, metrics.ResultError, time.Since(start), 0, 0, 0)
		return SweepResult{}, fmt.Errorf("sweep all: list companies: %w", err)
	}

	var (
		mu    sync.Mutex
		total = SweepResult{Transitions: []SweepTransition{}}
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, companyID := range companies {
		companyID := companyID
		group.Go(func() error {
			result, err := s.sweepCompany(groupCtx, companyID)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				result.Failures = append(result.Failures, SweepFailure{CompanyID: companyID, Error: err.Error()})
				log.Error("company sweep failed", zap.String("company_id", companyID), zap.Error(err))
			}
			mu.Lock()
			total.merge(result)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	err = ctx.Err()
	span.SetAttributes(
		attribute.Int("companies", total.Companies),
		attribute.Int("updated", total.UpdatedCount),
		attribute.Int("failed", total.FailedCount),
	)
	metrics.ObserveSweep(triggerAll, sweepResultLabel(err, total), time.Since(start), total.UpdatedCount, total.TotalProcessed-total.UpdatedCount-total.FailedCount, total.FailedCount)
	log.Info("sweep all finished",
		zap.Int("companies", total.Companies),
		zap.Int("processed", total.TotalProcessed),
		zap.Int("updated", total.UpdatedCount),
		zap.Int("failed", total.FailedCount),
		zap.Duration("took", time.Since(start)),
	)
	return total, err
}

func (s *Sweeper) sweepCompany(ctx context.Context, companyID string) (SweepResult, error) {
	result := SweepResult{Transitions: []SweepTransition{}}
	if companyID == "" {
		return result, receivables.ErrEmptyCompanyID
	}
	ctx, span := s.tracer.Start(ctx, "receivables.Sweep", trace.WithAttributes(attribute.String("company_id", companyID)))
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	ids, err := s.store.ListOpenEntryIDs(ctx, companyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("sweep %s: list open entries: %w", companyID, err)
	}
	result.Companies = 1

	today := s.clock.Now()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			log.Warn("sweep cancelled",
				zap.String("company_id", companyID),
				zap.Int("processed", result.TotalProcessed),
				zap.Int("remaining", len(ids)-result.TotalProcessed),
			)
			return result, err
		}
		result.TotalProcessed++

		updated, transition, err := s.reconcileEntry(ctx, companyID, id, today)
		if err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, SweepFailure{CompanyID: companyID, EntryID: id, Error: err.Error()})
			log.Warn("sweep entry failed",
				zap.String("company_id", companyID),
				zap.String("entry_id", id),
				zap.Error(err),
			)
			continue
		}
		if updated {
			result.UpdatedCount++
		}
		if transition != nil {
			result.Transitions = append(result.Transitions, *transition)
		}
	}

	span.SetAttributes(
		attribute.Int("processed", result.TotalProcessed),
		attribute.Int("updated", result.UpdatedCount),
		attribute.Int("failed", result.FailedCount),
	)
	log.Debug("company sweep finished",
		zap.String("company_id", companyID),
		zap.Int("processed", result.TotalProcessed),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

// reconcileEntry runs the read-classify-write cycle for one entry in its own transaction.
func (s *Sweeper) reconcileEntry(ctx context.Context, companyID, entryID string, today time.Time) (bool, *SweepTransition, error) {
	var (
		updated    bool
		transition *SweepTransition
		pending    Pending
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx receivables.Tx) error {
		updated, transition = false, nil
		pending.Reset()

		entry, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status.IsTerminal() || !entry.Type.TracksOverdue() {
			return nil
		}
		settings, err := s.resolver.Resolve(ctx, tx, companyID, entry.CustomerID)
		if err != nil {
			return err
		}
		accrual := receivables.Accrue(entry, settings, today)
		if !accrual.Differs(entry) {
			return nil
		}
		now := s.clock.Now()
		previous, err := accrual.Apply(entry, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		updated = true
		if previous == entry.Status {
			return nil
		}
		reason := fmt.Sprintf("%d days elapsed, grace %d days, %d days overdue", accrual.DaysElapsed, accrual.GracePeriodDays, accrual.DaysOverdue)
		if err := s.sink.Record(ctx, tx, &pending, entry, previous, reason, receivables.ActorSweep, now); err != nil {
			return err
		}
		transition = &SweepTransition{
			EntryID:         entry.ID,
			CompanyID:       entry.CompanyID,
			CustomerID:      entry.CustomerID,
			From:            previous,
			To:              entry.Status,
			DaysOverdue:     accrual.DaysOverdue,
			AccruedInterest: entry.AccruedInterest,
		}
		return nil
	})
	if errors.Is(err, receivables.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	s.sink.Dispatch(ctx, &pending)
	return updated, transition, nil
}

func sweepResultLabel(err error, result SweepResult) string {
	if err != nil || result.FailedCount > 0 {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
