package receivables

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeSell       EntryType = "sell"
	EntryTypeBuy        EntryType = "buy"
	EntryTypePaymentIn  EntryType = "payment_in"
	EntryTypePaymentOut EntryType = "payment_out"
	EntryTypeCashIn     EntryType = "cash_in"
	EntryTypeCashOut    EntryType = "cash_out"
)

// ParseEntryType validates a persisted entry type string.
func ParseEntryType(value string) (EntryType, error) {
	switch EntryType(value) {
	case EntryTypeSell, EntryTypeBuy, EntryTypePaymentIn, EntryTypePaymentOut, EntryTypeCashIn, EntryTypeCashOut:
		return EntryType(value), nil
	default:
		return "", fmt.Errorf("receivables: unknown entry type %q", value)
	}
}

// TracksOverdue reports whether entries of this type take part in grace/interest logic.
func (t EntryType) TracksOverdue() bool { return t == EntryTypeSell }

// Entry is a single ledger transaction record.
type Entry struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Type       EntryType `json:"type"`

	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`

	Date             time.Time  `json:"date"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	PaidDate         *time.Time `json:"paid_date,omitempty"`
	OverdueStartDate *time.Time `json:"overdue_start_date,omitempty"`

	Status          Status          `json:"status"`
	DaysElapsed     int             `json:"days_elapsed"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`

	RelatedEntryID string `json:"related_entry_id,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outstanding returns the unpaid portion of the entry, never negative.
func (e *Entry) Outstanding() decimal.Decimal {
	if e == nil {
		return decimal.Zero
	}
	remaining := e.Amount.Sub(e.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsFullyPaid reports whether the paid amount covers the amount.
func (e *Entry) IsFullyPaid() bool {
	if e == nil {
		return false
	}
	return e.PaidAmount.GreaterThanOrEqual(e.Amount)
}

// Clone returns a detached copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	copy := *e
	copy.DueDate = cloneTime(e.DueDate)
	copy.PaidDate = cloneTime(e.PaidDate)
	copy.OverdueStartDate = cloneTime(e.OverdueStartDate)
	return &copy
}

// Validate checks the structural invariants of an entry.
func (e *Entry) Validate() error {
	if e == nil {
		return ErrNilEntry
	}
	if e.ID == "" {
		return fmt.Errorf("receivables: entry id required")
	}
	if e.CompanyID == "" {
		return ErrEmptyCompanyID
	}
	if _, err := ParseEntryType(string(e.Type)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(e.Status)); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: entry %s amount must be positive", ErrInvalidAmount, e.ID)
	}
	if e.PaidAmount.IsNegative() || e.PaidAmount.GreaterThan(e.Amount) {
		return fmt.Errorf("%w: entry %s paid amount out of range", ErrInvalidAmount, e.ID)
	}
	if e.Status == StatusPaid && (!e.IsFullyPaid() || e.PaidDate == nil) {
		return fmt.Errorf("receivables: entry %s paid without full payment or paid date", e.ID)
	}
	if e.AccruedInterest.IsNegative() {
		return fmt.Errorf("receivables: entry %s negative interest", e.ID)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
