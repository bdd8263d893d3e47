package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"bizledger/internal/observability/metrics"
	receivables "bizledger/internal/receivables/domain"
)

// StatusSink is the append-only sink for status transitions. Changes are written in the
// caller's transaction and fanned out to publishers only after it commits.
type StatusSink struct {
	node           *snowflake.Node
	publisher      EventPublisher
	notifier       OverdueNotifier
	logger         *zap.Logger
	publishTimeout time.Duration
}

const defaultPublishTimeout = 5 * time.Second

// SinkOption configures a StatusSink.
type SinkOption func(*StatusSink)

// WithPublishTimeout bounds each publish and notify call made by Dispatch.
func WithPublishTimeout(timeout time.Duration) SinkOption {
	return func(s *StatusSink) {
		if timeout > 0 {
			s.publishTimeout = timeout
		}
	}
}

// NewStatusSink constructs a sink. publisher and notifier are optional.
func NewStatusSink(nodeID int64, publisher EventPublisher, notifier OverdueNotifier, logger *zap.Logger, opts ...SinkOption) (*StatusSink, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("status sink: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StatusSink{
		node:           node,
		publisher:      publisher,
		notifier:       notifier,
		logger:         logger,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pending holds changes recorded inside a transaction that has not committed yet.
type Pending struct {
	changes []receivables.StatusChange
	alerts  []OverdueAlert
}

// Changes returns the recorded changes.
func (p *Pending) Changes() []receivables.StatusChange {
	if p == nil {
		return nil
	}
	return p.changes
}

// Reset drops recorded changes, used when a transaction is retried or rolled back.
func (p *Pending) Reset() {
	if p == nil {
		return
	}
	p.changes = p.changes[:0]
	p.alerts = p.alerts[:0]
}

// Record appends a status change for entry within tx.
func (s *StatusSink) Record(ctx context.Context, tx receivables.Tx, pending *Pending, entry *receivables.Entry, previous receivables.Status, reason, actor string, at time.Time) error {
	if s == nil {
		return errors.New("status sink: nil")
	}
	if entry == nil {
		return receivables.ErrNilEntry
	}
	change := receivables.StatusChange{
		ID:              s.node.Generate().Int64(),
		EntryID:         entry.ID,
		CustomerID:      entry.CustomerID,
		CompanyID:       entry.CompanyID,
		OldStatus:       previous,
		NewStatus:       entry.Status,
		Reason:          reason,
		AccruedInterest: entry.AccruedInterest,
		Actor:           actor,
		CreatedAt:       at,
	}
	if err := tx.AppendStatusChange(ctx, &change); err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	if pending == nil {
		return nil
	}
	pending.changes = append(pending.changes, change)
	if entry.Status == receivables.StatusOverdue && previous != receivables.StatusOverdue {
		pending.alerts = append(pending.alerts, OverdueAlert{
			EntryID:          entry.ID,
			CompanyID:        entry.CompanyID,
			CustomerID:       entry.CustomerID,
			Outstanding:      entry.Outstanding(),
			AccruedInterest:  entry.AccruedInterest,
			OverdueStartDate: entry.OverdueStartDate,
			DetectedAt:       at,
		})
	}
	return nil
}

// Dispatch publishes committed changes. Delivery failures are logged, never returned:
// the transitions are already durable in the change log.
func (s *StatusSink) Dispatch(ctx context.Context, pending *Pending) {
	if s == nil || pending == nil {
		return
	}
	for _, change := range pending.changes {
		metrics.IncStatusTransition(change.OldStatus.String(), change.NewStatus.String())
		if s.publisher == nil {
			continue
		}
		if err := s.publish(ctx, change); err != nil {
			metrics.IncEventPublish(metrics.ResultError)
			s.logger.Warn("status change publish failed",
				zap.String("company_id", change.CompanyID),
				zap.String("entry_id", change.EntryID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncEventPublish(metrics.ResultSuccess)
	}
	if s.notifier == nil {
		return
	}
	for _, alert := range pending.alerts {
		if err := s.notify(ctx, alert); err != nil {
			s.logger.Warn("overdue notify failed",
				zap.String("company_id", alert.CompanyID),
				zap.String("entry_id", alert.EntryID),
				zap.Error(err),
			)
		}
	}
}

func (s *StatusSink) publish(ctx context.Context, change receivables.StatusChange) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	return s.publisher.PublishStatusChanged(ctx, statusChangedEvent(change))
}

func (s *StatusSink) notify(ctx context.Context, alert OverdueAlert) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	return s.notifier.NotifyOverdue(ctx, alert)
}

func snowflakeString(id int64) string {
	return snowflake.ID(id).String()
}
