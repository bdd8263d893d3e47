package receivables

import "fmt"

// Status is the payment lifecycle state of an entry.
type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusOverdue       Status = "overdue"
	StatusCancelled     Status = "cancelled"
)

// ParseStatus validates a persisted status string.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusUnpaid, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled:
		return Status(value), nil
	default:
		return "", fmt.Errorf("receivables: unknown status %q", value)
	}
}

// IsTerminal reports whether the status is never re-evaluated.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransitionTo reports whether s may move to next.
//
//	unpaid, partially_paid -> overdue
//	unpaid, partially_paid, overdue -> partially_paid -> paid
//	any non-terminal -> cancelled
//
// Staying in the same non-terminal status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	switch next {
	case StatusOverdue:
		return s == StatusUnpaid || s == StatusPartiallyPaid
	case StatusPartiallyPaid, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// Transition validates and returns next.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

func (s Status) String() string { return string(s) }
