package interfaces

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"bizledger/internal/receivables/application"
)

// LoggingPublisher logs status change events. Used when no broker is configured.
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishStatusChanged logs the event.
func (p *LoggingPublisher) PublishStatusChanged(ctx context.Context, event application.StatusChanged) error {
	_ = ctx
	if p == nil {
		return errors.New("status publisher: nil publisher")
	}
	p.logger.Info("entry status changed",
		zap.String("event_id", event.EventID),
		zap.String("company_id", event.CompanyID),
		zap.String("entry_id", event.EntryID),
		zap.String("old_status", event.OldStatus.String()),
		zap.String("new_status", event.NewStatus.String()),
		zap.String("reason", event.Reason),
		zap.String("accrued_interest", event.AccruedInterest.StringFixed(2)),
	)
	return nil
}
