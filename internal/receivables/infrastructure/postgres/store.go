package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	receivables "bizledger/internal/receivables/domain"
)

// Store is a Postgres implementation of receivables.Store.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ListOpenEntryIDs returns open sell entries of a company ordered by date.
func (s *Store) ListOpenEntryIDs(ctx context.Context, companyID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id
FROM ledger_entries
WHERE company_id = $1
	AND entry_type = 'sell'
	AND status IN ('unpaid', 'partially_paid', 'overdue')
ORDER BY entry_date, id`, companyID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// ListCompanyIDs returns companies that have overdue settings configured.
func (s *Store) ListCompanyIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT company_id FROM company_overdue_settings ORDER BY company_id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// ListEntries returns entries matching the filter ordered by date.
func (s *Store) ListEntries(ctx context.Context, filter receivables.EntryFilter) ([]receivables.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	if filter.CompanyID == "" {
		return nil, receivables.ErrEmptyCompanyID
	}
	clauses := []string{"company_id = $1"}
	args := []any{filter.CompanyID}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		args = append(args, types)
		clauses = append(clauses, fmt.Sprintf("entry_type = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := fmt.Sprintf(`
SELECT %s
FROM ledger_entries
WHERE %s
ORDER BY entry_date, id`, entryColumns, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	entries := make([]receivables.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, translateError(err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return entries, nil
}

// GetEntry loads an entry by id within a company.
func (s *Store) GetEntry(ctx context.Context, companyID, entryID string) (*receivables.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	return getEntry(ctx, s.db, companyID, entryID, false)
}

// SaveEntry inserts or replaces an entry outside of any sweep or settlement.
func (s *Store) SaveEntry(ctx context.Context, entry *receivables.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("receivables store: nil db")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = updatedAt(entry.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
	customer_id = EXCLUDED.customer_id,
	entry_type = EXCLUDED.entry_type,
	amount = EXCLUDED.amount,
	paid_amount = EXCLUDED.paid_amount,
	entry_date = EXCLUDED.entry_date,
	due_date = EXCLUDED.due_date,
	paid_date = EXCLUDED.paid_date,
	overdue_start_date = EXCLUDED.overdue_start_date,
	status = EXCLUDED.status,
	days_elapsed = EXCLUDED.days_elapsed,
	accrued_interest = EXCLUDED.accrued_interest,
	related_entry_id = EXCLUDED.related_entry_id,
	payment_method = EXCLUDED.payment_method,
	version = ledger_entries.version + 1,
	updated_at = EXCLUDED.updated_at
WHERE ledger_entries.company_id = EXCLUDED.company_id`, entryArgs(entry)...)
	return translateError(err)
}

// GetCreditSettings returns customer settings or nil.
func (s *Store) GetCreditSettings(ctx context.Context, companyID, customerID string) (*receivables.CreditSettings, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	return getCreditSettings(ctx, s.db, companyID, customerID, false)
}

// GetCompanySettings returns company settings or nil.
func (s *Store) GetCompanySettings(ctx context.Context, companyID string) (*receivables.CompanySettings, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	return getCompanySettings(ctx, s.db, companyID)
}

// UpsertCompanySettings stores company-level settings.
func (s *Store) UpsertCompanySettings(ctx context.Context, settings *receivables.CompanySettings) error {
	if s == nil || s.db == nil {
		return errors.New("receivables store: nil db")
	}
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	mode := settings.CompoundingMode
	if mode == "" {
		mode = receivables.CompoundingDaily
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO company_overdue_settings (
	company_id, grace_period_days, interest_rate_percent, compounding_mode, minimum_fee, updated_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (company_id) DO UPDATE SET
	grace_period_days = EXCLUDED.grace_period_days,
	interest_rate_percent = EXCLUDED.interest_rate_percent,
	compounding_mode = EXCLUDED.compounding_mode,
	minimum_fee = EXCLUDED.minimum_fee,
	updated_at = EXCLUDED.updated_at`,
		settings.CompanyID, settings.GracePeriodDays, settings.InterestRatePercent, string(mode), settings.MinimumFee, updatedAt(settings.UpdatedAt))
	return translateError(err)
}

// UpsertCreditSettings stores customer credit settings. The original credit limit is only
// written on insert.
func (s *Store) UpsertCreditSettings(ctx context.Context, settings *receivables.CreditSettings) error {
	if s == nil || s.db == nil {
		return errors.New("receivables store: nil db")
	}
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credit_settings (
	customer_id, company_id, credit_limit, original_credit_limit,
	grace_period_days, interest_rate_percent, version, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,0,$7)
ON CONFLICT (customer_id, company_id) DO UPDATE SET
	credit_limit = EXCLUDED.credit_limit,
	grace_period_days = EXCLUDED.grace_period_days,
	interest_rate_percent = EXCLUDED.interest_rate_percent,
	version = credit_settings.version + 1,
	updated_at = EXCLUDED.updated_at`,
		settings.CustomerID, settings.CompanyID, settings.CreditLimit, settings.OriginalCreditLimit,
		settings.GracePeriodDays, settings.InterestRatePercent, updatedAt(settings.UpdatedAt))
	return translateError(err)
}

// ListStatusChanges returns the change log of a company, optionally narrowed to one entry.
func (s *Store) ListStatusChanges(ctx context.Context, companyID, entryID string) ([]receivables.StatusChange, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receivables store: nil db")
	}
	query := `
SELECT id, entry_id, customer_id, company_id, old_status, new_status, reason, accrued_interest, actor, created_at
FROM status_change_log
WHERE company_id = $1`
	args := []any{companyID}
	if entryID != "" {
		query += ` AND entry_id = $2`
		args = append(args, entryID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	changes := make([]receivables.StatusChange, 0)
	for rows.Next() {
		var (
			change    receivables.StatusChange
			oldStatus string
			newStatus string
		)
		if err := rows.Scan(&change.ID, &change.EntryID, &change.CustomerID, &change.CompanyID, &oldStatus, &newStatus,
			&change.Reason, &change.AccruedInterest, &change.Actor, &change.CreatedAt); err != nil {
			return nil, translateError(err)
		}
		change.OldStatus = receivables.Status(oldStatus)
		change.NewStatus = receivables.Status(newStatus)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return changes, nil
}

// WithinTx runs fn in a database transaction, committing only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx receivables.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errors.New("receivables store: nil db")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError(err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetEntryForUpdate(ctx context.Context, companyID, entryID string) (*receivables.Entry, error) {
	return getEntry(ctx, t.tx, companyID, entryID, true)
}

func (t *pgTx) UpdateEntry(ctx context.Context, entry *receivables.Entry) error {
	if entry == nil {
		return receivables.ErrNilEntry
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.UpdatedAt = updatedAt(entry.UpdatedAt)
	result, err := t.tx.ExecContext(ctx, `
UPDATE ledger_entries SET
	paid_amount = $3,
	paid_date = $4,
	overdue_start_date = $5,
	status = $6,
	days_elapsed = $7,
	accrued_interest = $8,
	version = version + 1,
	updated_at = $9
WHERE company_id = $1 AND id = $2 AND version = $10`,
		entry.CompanyID, entry.ID, entry.PaidAmount, toNullTime(entry.PaidDate), toNullTime(entry.OverdueStartDate),
		string(entry.Status), entry.DaysElapsed, entry.AccruedInterest, entry.UpdatedAt, entry.Version)
	if err != nil {
		return translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err)
	}
	if affected == 0 {
		return receivables.ErrConcurrentUpdate
	}
	entry.Version++
	return nil
}

func (t *pgTx) InsertEntry(ctx context.Context, entry *receivables.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ledger_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`, entryArgs(entry)...)
	return translateError(err)
}

func (t *pgTx) GetCreditSettings(ctx context.Context, companyID, customerID string) (*receivables.CreditSettings, error) {
	return getCreditSettings(ctx, t.tx, companyID, customerID, true)
}

func (t *pgTx) SaveCreditSettings(ctx context.Context, settings *receivables.CreditSettings) error {
	if settings == nil || settings.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	result, err := t.tx.ExecContext(ctx, `
UPDATE credit_settings SET
	credit_limit = $3,
	original_credit_limit = $4,
	grace_period_days = $5,
	interest_rate_percent = $6,
	version = version + 1,
	updated_at = $7
WHERE customer_id = $1 AND company_id = $2 AND version = $8`,
		settings.CustomerID, settings.CompanyID, settings.CreditLimit, settings.OriginalCreditLimit,
		settings.GracePeriodDays, settings.InterestRatePercent, updatedAt(settings.UpdatedAt), settings.Version)
	if err != nil {
		return translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translateError(err)
	}
	if affected == 0 {
		return receivables.ErrConcurrentUpdate
	}
	settings.Version++
	return nil
}

func (t *pgTx) GetCompanySettings(ctx context.Context, companyID string) (*receivables.CompanySettings, error) {
	return getCompanySettings(ctx, t.tx, companyID)
}

func (t *pgTx) AppendStatusChange(ctx context.Context, change *receivables.StatusChange) error {
	if change == nil || change.CompanyID == "" {
		return receivables.ErrEmptyCompanyID
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO status_change_log (
	id, entry_id, customer_id, company_id, old_status, new_status, reason, accrued_interest, actor, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		change.ID, change.EntryID, change.CustomerID, change.CompanyID, string(change.OldStatus), string(change.NewStatus),
		change.Reason, change.AccruedInterest, change.Actor, change.CreatedAt.UTC())
	return translateError(err)
}

func getEntry(ctx context.Context, q queryer, companyID, entryID string, forUpdate bool) (*receivables.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE company_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, query, companyID, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, receivables.ErrNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}
	return entry, nil
}

func getCreditSettings(ctx context.Context, q queryer, companyID, customerID string, forUpdate bool) (*receivables.CreditSettings, error) {
	query := `
SELECT customer_id, company_id, credit_limit, original_credit_limit, grace_period_days,
	interest_rate_percent, version, updated_at
FROM credit_settings
WHERE company_id = $1 AND customer_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	settings, err := scanCreditSettings(q.QueryRowContext(ctx, query, companyID, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return settings, nil
}

func getCompanySettings(ctx context.Context, q queryer, companyID string) (*receivables.CompanySettings, error) {
	settings, err := scanCompanySettings(q.QueryRowContext(ctx, `
SELECT company_id, grace_period_days, interest_rate_percent, compounding_mode, minimum_fee, updated_at
FROM company_overdue_settings
WHERE company_id = $1`, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return settings, nil
}

func entryArgs(entry *receivables.Entry) []any {
	return []any{
		entry.ID,
		entry.CompanyID,
		entry.CustomerID,
		string(entry.Type),
		entry.Amount,
		entry.PaidAmount,
		entry.Date.UTC(),
		toNullTime(entry.DueDate),
		toNullTime(entry.PaidDate),
		toNullTime(entry.OverdueStartDate),
		string(entry.Status),
		entry.DaysElapsed,
		entry.AccruedInterest,
		entry.RelatedEntryID,
		entry.PaymentMethod,
		entry.Version,
		entry.CreatedAt.UTC(),
		entry.UpdatedAt.UTC(),
	}
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
