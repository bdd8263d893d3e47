package receivables

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Classification is the derived lifecycle state of an entry at a point in time.
type Classification struct {
	Status           Status     `json:"status"`
	DaysElapsed      int        `json:"days_elapsed"`
	GracePeriodDays  int        `json:"grace_period_days"`
	DaysOverdue      int        `json:"days_overdue"`
	OverdueStartDate *time.Time `json:"overdue_start_date,omitempty"`
}

// DaysBetween returns floor((to - from) / 24h).
func DaysBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}

// EffectiveGraceDays returns the whole days from the entry date to its explicit due date,
// or gracePeriodDays when the entry carries no due date.
func EffectiveGraceDays(entry *Entry, gracePeriodDays int) int {
	if entry != nil && entry.DueDate != nil {
		return nonNegative(DaysBetween(entry.Date, *entry.DueDate))
	}
	return nonNegative(gracePeriodDays)
}

// Classify computes the lifecycle status and day counters of an entry.
// Paid and cancelled entries, and entry types that do not track overdue state, are returned
// unchanged. An overdue entry never reverts to unpaid here; only settlement moves it on.
func Classify(entry *Entry, gracePeriodDays int, today time.Time) Classification {
	if entry == nil {
		return Classification{}
	}
	grace := EffectiveGraceDays(entry, gracePeriodDays)
	if entry.Status.IsTerminal() || !entry.Type.TracksOverdue() {
		return Classification{
			Status:           entry.Status,
			DaysElapsed:      entry.DaysElapsed,
			GracePeriodDays:  grace,
			OverdueStartDate: cloneTime(entry.OverdueStartDate),
		}
	}

	elapsed := nonNegative(DaysBetween(entry.Date, today))
	result := Classification{
		Status:           entry.Status,
		DaysElapsed:      elapsed,
		GracePeriodDays:  grace,
		OverdueStartDate: cloneTime(entry.OverdueStartDate),
	}
	if elapsed > grace {
		result.Status = StatusOverdue
	}
	if result.Status == StatusOverdue {
		if result.OverdueStartDate == nil {
			start := entry.Date.Add(time.Duration(grace) * day)
			result.OverdueStartDate = &start
		}
		result.DaysOverdue = nonNegative(elapsed - grace)
	}
	return result
}
