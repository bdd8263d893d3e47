package postgres

import (
	"database/sql"
	"time"

	receivables "bizledger/internal/receivables/domain"
)

const entryColumns = `id, company_id, customer_id, entry_type, amount, paid_amount, entry_date,
	due_date, paid_date, overdue_start_date, status, days_elapsed, accrued_interest,
	related_entry_id, payment_method, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*receivables.Entry, error) {
	var (
		entry        receivables.Entry
		entryType    string
		status       string
		dueDate      sql.NullTime
		paidDate     sql.NullTime
		overdueStart sql.NullTime
	)
	if err := row.Scan(
		&entry.ID,
		&entry.CompanyID,
		&entry.CustomerID,
		&entryType,
		&entry.Amount,
		&entry.PaidAmount,
		&entry.Date,
		&dueDate,
		&paidDate,
		&overdueStart,
		&status,
		&entry.DaysElapsed,
		&entry.AccruedInterest,
		&entry.RelatedEntryID,
		&entry.PaymentMethod,
		&entry.Version,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.Type = receivables.EntryType(entryType)
	entry.Status = receivables.Status(status)
	entry.Date = entry.Date.UTC()
	entry.DueDate = fromNullTime(dueDate)
	entry.PaidDate = fromNullTime(paidDate)
	entry.OverdueStartDate = fromNullTime(overdueStart)
	return &entry, nil
}

func scanCreditSettings(row rowScanner) (*receivables.CreditSettings, error) {
	var settings receivables.CreditSettings
	if err := row.Scan(
		&settings.CustomerID,
		&settings.CompanyID,
		&settings.CreditLimit,
		&settings.OriginalCreditLimit,
		&settings.GracePeriodDays,
		&settings.InterestRatePercent,
		&settings.Version,
		&settings.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &settings, nil
}

func scanCompanySettings(row rowScanner) (*receivables.CompanySettings, error) {
	var (
		settings receivables.CompanySettings
		mode     string
	)
	if err := row.Scan(
		&settings.CompanyID,
		&settings.GracePeriodDays,
		&settings.InterestRatePercent,
		&mode,
		&settings.MinimumFee,
		&settings.UpdatedAt,
	); err != nil {
		return nil, err
	}
	settings.CompoundingMode = receivables.CompoundingMode(mode)
	return &settings, nil
}

func fromNullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func toNullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
