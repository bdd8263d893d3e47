package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	receivables "bizledger/internal/receivables/domain"
)

// EventTypeStatusChanged names status change events on the wire.
const EventTypeStatusChanged = "receivables.entry_status_changed"

// StatusChanged is emitted after a status transition commits.
type StatusChanged struct {
	EventID         string             `json:"event_id"`
	EventType       string             `json:"event_type"`
	EntryID         string             `json:"entry_id"`
	CompanyID       string             `json:"company_id"`
	CustomerID      string             `json:"customer_id,omitempty"`
	OldStatus       receivables.Status `json:"old_status"`
	NewStatus       receivables.Status `json:"new_status"`
	Reason          string             `json:"reason"`
	AccruedInterest decimal.Decimal    `json:"accrued_interest"`
	Actor           string             `json:"actor"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// EventPublisher emits status change events.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
}

// OverdueAlert describes an entry that just became overdue.
type OverdueAlert struct {
	EntryID          string          `json:"entry_id"`
	CompanyID        string          `json:"company_id"`
	CustomerID       string          `json:"customer_id,omitempty"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	AccruedInterest  decimal.Decimal `json:"accrued_interest"`
	OverdueStartDate *time.Time      `json:"overdue_start_date,omitempty"`
	DetectedAt       time.Time       `json:"detected_at"`
}

// OverdueNotifier delivers overdue alerts.
type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, alert OverdueAlert) error
}

func statusChangedEvent(change receivables.StatusChange) StatusChanged {
	return StatusChanged{
		EventID:         snowflakeString(change.ID),
		EventType:       EventTypeStatusChanged,
		EntryID:         change.EntryID,
		CompanyID:       change.CompanyID,
		CustomerID:      change.CustomerID,
		OldStatus:       change.OldStatus,
		NewStatus:       change.NewStatus,
		Reason:          change.Reason,
		AccruedInterest: change.AccruedInterest,
		Actor:           change.Actor,
		OccurredAt:      change.CreatedAt,
	}
}
