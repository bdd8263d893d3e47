package receivables

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestEpsilon is the tolerance under which a recomputed interest is treated as unchanged.
var InterestEpsilon = decimal.RequireFromString("0.01")

// Accrual is the freshly derived state of an open entry.
type Accrual struct {
	Classification
	Settings        Settings        `json:"settings"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
}

// Accrue classifies an entry and computes its simple interest on the outstanding amount.
func Accrue(entry *Entry, settings Settings, today time.Time) Accrual {
	c := Classify(entry, settings.GracePeriodDays, today)
	interest := decimal.Zero
	if c.Status == StatusOverdue {
		interest = InterestSimple(entry.Outstanding(), c.DaysOverdue, settings.InterestRatePercent)
	}
	return Accrual{Classification: c, Settings: settings, AccruedInterest: interest}
}

// Differs reports whether the accrual changes any stored derived field of entry.
func (a Accrual) Differs(entry *Entry) bool {
	if entry == nil {
		return false
	}
	if a.Status != entry.Status || a.DaysElapsed != entry.DaysElapsed {
		return true
	}
	if !sameTime(a.OverdueStartDate, entry.OverdueStartDate) {
		return true
	}
	return a.AccruedInterest.Sub(entry.AccruedInterest).Abs().GreaterThanOrEqual(InterestEpsilon)
}

// Apply writes the derived fields onto entry and returns the status it had before.
// The overdue start date is only ever set, never cleared or moved.
func (a Accrual) Apply(entry *Entry, now time.Time) (Status, error) {
	if entry == nil {
		return "", ErrNilEntry
	}
	previous := entry.Status
	next, err := previous.Transition(a.Status)
	if err != nil {
		return previous, err
	}
	entry.Status = next
	entry.DaysElapsed = a.DaysElapsed
	entry.AccruedInterest = a.AccruedInterest
	if entry.OverdueStartDate == nil && a.OverdueStartDate != nil {
		entry.OverdueStartDate = cloneTime(a.OverdueStartDate)
	}
	entry.UpdatedAt = now
	return previous, nil
}
