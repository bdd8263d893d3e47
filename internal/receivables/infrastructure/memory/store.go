package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	receivables "bizledger/internal/receivables/domain"
)

type creditKey struct {
	companyID  string
	customerID string
}

// Store is an in-memory receivables store for demo/testing.
// A transaction holds the store lock until it commits or rolls back, so concurrent
// transactions on the same entry are serialized.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*receivables.Entry
	credit   map[creditKey]*receivables.CreditSettings
	company  map[string]*receivables.CompanySettings
	changes  []receivables.StatusChange
	failures map[string]error
}

// NewStore constructs a store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*receivables.Entry),
		credit:   make(map[creditKey]*receivables.CreditSettings),
		company:  make(map[string]*receivables.CompanySettings),
		failures: make(map[string]error),
	}
}

// FailUpdates makes every UpdateEntry call for entryID return err until cleared with a nil err.
func (s *Store) FailUpdates(entryID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, entryID)
		return
	}
	s.failures[entryID] = err
}

// SaveEntry stores an entry outside of any transaction.
func (s *Store) SaveEntry(ctx context.Context, entry *receivables.Entry) error {
	_ = ctx
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[entry.ID] = entry.Clone()
	s.mu.Unlock()
	return nil
}

// GetEntry loads an entry by id within a company.
func (s *Store) GetEntry(ctx context.Context, companyID, entryID string) (*receivables.Entry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.entries[entryID]
	if entry == nil || entry.CompanyID != companyID {
		return nil, receivables.ErrNotFound
	}
	return entry.Clone(), nil
}

// UpsertCompanySettings stores company-level settings.
func (s *Store) UpsertCompanySettings(ctx context.Context, settings *receivables.CompanySettings) error {
	_ = ctx
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	copy := *settings
	s.mu.Lock()
	s.company[settings.CompanyID] = &copy
	s.mu.Unlock()
	return nil
}

// UpsertCreditSettings stores customer credit settings.
func (s *Store) UpsertCreditSettings(ctx context.Context, settings *receivables.CreditSettings) error {
	_ = ctx
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	s.mu.Lock()
	s.credit[creditKey{settings.CompanyID, settings.CustomerID}] = settings.Clone()
	s.mu.Unlock()
	return nil
}

// ListOpenEntryIDs returns open sell entries of a company ordered by date.
func (s *Store) ListOpenEntryIDs(ctx context.Context, companyID string) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := make([]*receivables.Entry, 0)
	for _, entry := range s.entries {
		if entry.CompanyID != companyID || entry.Type != receivables.EntryTypeSell || entry.Status.IsTerminal() {
			continue
		}
		open = append(open, entry)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Date.Equal(open[j].Date) {
			return open[i].ID < open[j].ID
		}
		return open[i].Date.Before(open[j].Date)
	})
	ids := make([]string, 0, len(open))
	for _, entry := range open {
		ids = append(ids, entry.ID)
	}
	return ids, nil
}

// ListCompanyIDs returns companies that have overdue settings configured.
func (s *Store) ListCompanyIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.company))
	for id := range s.company {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListEntries returns entries matching the filter ordered by date.
func (s *Store) ListEntries(ctx context.Context, filter receivables.EntryFilter) ([]receivables.Entry, error) {
	_ = ctx
	if filter.CompanyID == "" {
		return nil, receivables.ErrEmptyCompanyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]receivables.Entry, 0)
	for _, entry := range s.entries {
		if !matches(entry, filter) {
			continue
		}
		result = append(result, *entry.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// GetCreditSettings returns customer settings or nil.
func (s *Store) GetCreditSettings(ctx context.Context, companyID, customerID string) (*receivables.CreditSettings, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credit[creditKey{companyID, customerID}].Clone(), nil
}

// GetCompanySettings returns company settings or nil.
func (s *Store) GetCompanySettings(ctx context.Context, companyID string) (*receivables.CompanySettings, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCompany(s.company[companyID]), nil
}

// ListStatusChanges returns the change log of a company, optionally narrowed to one entry.
func (s *Store) ListStatusChanges(ctx context.Context, companyID, entryID string) ([]receivables.StatusChange, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]receivables.StatusChange, 0)
	for _, change := range s.changes {
		if change.CompanyID != companyID {
			continue
		}
		if entryID != "" && change.EntryID != entryID {
			continue
		}
		result = append(result, change)
	}
	return result, nil
}

// WithinTx runs fn with exclusive access and applies its writes only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx receivables.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		entries: make(map[string]*receivables.Entry),
		credit:  make(map[creditKey]*receivables.CreditSettings),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, entry := range tx.entries {
		s.entries[id] = entry
	}
	for key, settings := range tx.credit {
		s.credit[key] = settings
	}
	s.changes = append(s.changes, tx.changes...)
	return nil
}

type memTx struct {
	store   *Store
	entries map[string]*receivables.Entry
	credit  map[creditKey]*receivables.CreditSettings
	changes []receivables.StatusChange
}

func (t *memTx) entry(id string) *receivables.Entry {
	if staged, ok := t.entries[id]; ok {
		return staged
	}
	return t.store.entries[id]
}

func (t *memTx) GetEntryForUpdate(ctx context.Context, companyID, entryID string) (*receivables.Entry, error) {
	_ = ctx
	entry := t.entry(entryID)
	if entry == nil || entry.CompanyID != companyID {
		return nil, receivables.ErrNotFound
	}
	return entry.Clone(), nil
}

func (t *memTx) UpdateEntry(ctx context.Context, entry *receivables.Entry) error {
	_ = ctx
	if entry == nil {
		return receivables.ErrNilEntry
	}
	if err := t.store.failures[entry.ID]; err != nil {
		return err
	}
	current := t.entry(entry.ID)
	if current == nil || current.CompanyID != entry.CompanyID {
		return receivables.ErrNotFound
	}
	if current.Version != entry.Version {
		return receivables.ErrConcurrentUpdate
	}
	entry.Version++
	t.entries[entry.ID] = entry.Clone()
	return nil
}

func (t *memTx) InsertEntry(ctx context.Context, entry *receivables.Entry) error {
	_ = ctx
	if err := entry.Validate(); err != nil {
		return err
	}
	if t.entry(entry.ID) != nil {
		return receivables.ErrConcurrentUpdate
	}
	t.entries[entry.ID] = entry.Clone()
	return nil
}

func (t *memTx) GetCreditSettings(ctx context.Context, companyID, customerID string) (*receivables.CreditSettings, error) {
	_ = ctx
	key := creditKey{companyID, customerID}
	if staged, ok := t.credit[key]; ok {
		return staged.Clone(), nil
	}
	return t.store.credit[key].Clone(), nil
}

func (t *memTx) SaveCreditSettings(ctx context.Context, settings *receivables.CreditSettings) error {
	_ = ctx
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	key := creditKey{settings.CompanyID, settings.CustomerID}
	current := t.credit[key]
	if current == nil {
		current = t.store.credit[key]
	}
	if current != nil && current.Version != settings.Version {
		return receivables.ErrConcurrentUpdate
	}
	settings.Version++
	t.credit[key] = settings.Clone()
	return nil
}

func (t *memTx) GetCompanySettings(ctx context.Context, companyID string) (*receivables.CompanySettings, error) {
	_ = ctx
	return cloneCompany(t.store.company[companyID]), nil
}

func (t *memTx) AppendStatusChange(ctx context.Context, change *receivables.StatusChange) error {
	_ = ctx
	if change == nil || change.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	t.changes = append(t.changes, *change)
	return nil
}

func matches(entry *receivables.Entry, filter receivables.EntryFilter) bool {
	if entry.CompanyID != filter.CompanyID {
		return false
	}
	if filter.CustomerID != "" && entry.CustomerID != filter.CustomerID {
		return false
	}
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, entry.Type) {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, entry.Status) {
		return false
	}
	return true
}

func cloneCompany(settings *receivables.CompanySettings) *receivables.CompanySettings {
	if settings == nil {
		return nil
	}
	copy := *settings
	return &copy
}
