package receivables

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsSource records which layer produced resolved settings.
type SettingsSource string

const (
	SettingsSourceCustomer SettingsSource = "customer"
	SettingsSourceCompany  SettingsSource = "company"
	SettingsSourceDefault  SettingsSource = "default"
)

// Settings are the effective overdue settings for an entry.
type Settings struct {
	GracePeriodDays     int             `json:"grace_period_days"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	Source              SettingsSource  `json:"source"`
}

// Defaults is the single configured fallback used when neither customer nor company
// settings exist.
type Defaults struct {
	GracePeriodDays     int             `json:"grace_period_days"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
}

// DefaultDefaults returns the documented defaults: 30 days grace and 18% per annum.
func DefaultDefaults() Defaults {
	return Defaults{
		GracePeriodDays:     30,
		InterestRatePercent: decimal.NewFromInt(18),
	}
}

// CreditSettings holds per (customer, company) credit and overdue overrides.
type CreditSettings struct {
	CustomerID          string          `json:"customer_id"`
	CompanyID           string          `json:"company_id"`
	CreditLimit         decimal.Decimal `json:"credit_limit"`
	OriginalCreditLimit decimal.Decimal `json:"original_credit_limit"`
	GracePeriodDays     int             `json:"grace_period_days"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	Version             int64           `json:"version"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a detached copy.
func (c *CreditSettings) Clone() *CreditSettings {
	if c == nil {
		return nil
	}
	copy := *c
	return &copy
}

// CompanySettings holds company-level overdue settings.
type CompanySettings struct {
	CompanyID           string          `json:"company_id"`
	GracePeriodDays     int             `json:"grace_period_days"`
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	CompoundingMode     CompoundingMode `json:"compounding_mode"`
	MinimumFee          decimal.Decimal `json:"minimum_fee"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ResolveSettings picks customer settings, then company settings, then defaults.
func ResolveSettings(customer *CreditSettings, company *CompanySettings, defaults Defaults) Settings {
	if customer != nil {
		return Settings{
			GracePeriodDays:     nonNegative(customer.GracePeriodDays),
			InterestRatePercent: customer.InterestRatePercent,
			Source:              SettingsSourceCustomer,
		}
	}
	if company != nil {
		return Settings{
			GracePeriodDays:     nonNegative(company.GracePeriodDays),
			InterestRatePercent: company.InterestRatePercent,
			Source:              SettingsSourceCompany,
		}
	}
	return Settings{
		GracePeriodDays:     nonNegative(defaults.GracePeriodDays),
		InterestRatePercent: defaults.InterestRatePercent,
		Source:              SettingsSourceDefault,
	}
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
