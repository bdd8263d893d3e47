package receivables

import (
	"context"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns UTC wall time.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// EntryFilter narrows entry listings.
type EntryFilter struct {
	CompanyID  string
	CustomerID string
	Types      []EntryType
	Statuses   []Status
}

// Store persists ledger entries, settings and the status change log.
// Every mutating operation runs inside WithinTx.
type Store interface {
	// ListOpenEntryIDs returns ids of Sell entries that are not paid or cancelled.
	ListOpenEntryIDs(ctx context.Context, companyID string) ([]string, error)
	ListCompanyIDs(ctx context.Context) ([]string, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	// GetCreditSettings and GetCompanySettings return nil, nil when nothing is configured.
	GetCreditSettings(ctx context.Context, companyID, customerID string) (*CreditSettings, error)
	GetCompanySettings(ctx context.Context, companyID string) (*CompanySettings, error)
	ListStatusChanges(ctx context.Context, companyID, entryID string) ([]StatusChange, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work handed to WithinTx. Reads through a Tx lock the returned rows
// until the transaction ends.
type Tx interface {
	GetEntryForUpdate(ctx context.Context, companyID, entryID string) (*Entry, error)
	// UpdateEntry persists entry when the stored version equals entry.Version and bumps it.
	// A mismatch yields ErrConcurrentUpdate.
	UpdateEntry(ctx context.Context, entry *Entry) error
	InsertEntry(ctx context.Context, entry *Entry) error
	GetCreditSettings(ctx context.Context, companyID, customerID string) (*CreditSettings, error)
	SaveCreditSettings(ctx context.Context, settings *CreditSettings) error
	GetCompanySettings(ctx context.Context, companyID string) (*CompanySettings, error)
	AppendStatusChange(ctx context.Context, change *StatusChange) error
}

// SettingsStore manages company and customer overdue configuration.
type SettingsStore interface {
	UpsertCompanySettings(ctx context.Context, settings *CompanySettings) error
	UpsertCreditSettings(ctx context.Context, settings *CreditSettings) error
}
