package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	receivables "bizledger/internal/receivables/domain"
)

// ErrInvalidSettings is returned for out-of-range settings values.
var ErrInvalidSettings = errors.New("receivables: invalid settings")

// CompanySettingsCommand replaces the company-level overdue settings.
type CompanySettingsCommand struct {
	CompanyID           string
	GracePeriodDays     int
	InterestRatePercent decimal.Decimal
	CompoundingMode     string
	MinimumFee          decimal.Decimal
}

// CreditSettingsCommand creates or updates a customer's credit settings. Nil overdue fields
// are filled from the settings currently in effect for the customer.
type CreditSettingsCommand struct {
	CompanyID           string
	CustomerID          string
	CreditLimit         decimal.Decimal
	GracePeriodDays     *int
	InterestRatePercent *decimal.Decimal
}

// SettingsReadWriter is the store surface needed to maintain settings.
type SettingsReadWriter interface {
	SettingsReader
	receivables.SettingsStore
	ListStatusChanges(ctx context.Context, companyID, entryID string) ([]receivables.StatusChange, error)
}

// SettingsService maintains overdue and credit configuration.
type SettingsService struct {
	store    SettingsReadWriter
	resolver *SettingsResolver
	clock    receivables.Clock
	logger   *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(store SettingsReadWriter, resolver *SettingsResolver, clock receivables.Clock, logger *zap.Logger) (*SettingsService, error) {
	if store == nil {
		return nil, errors.New("settings service: nil store")
	}
	if resolver == nil {
		return nil, errors.New("settings service: nil settings resolver")
	}
	if clock == nil {
		clock = receivables.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{store: store, resolver: resolver, clock: clock, logger: logger}, nil
}

// Effective returns the settings the sweep would apply to a customer.
func (s *SettingsService) Effective(ctx context.Context, companyID, customerID string) (receivables.Settings, error) {
	if companyID == "" {
		return receivables.Settings{}, receivables.ErrEmptyCompanyID
	}
	return s.resolver.Resolve(ctx, s.store, companyID, customerID)
}

// UpdateCompany validates and stores company settings.
func (s *SettingsService) UpdateCompany(ctx context.Context, cmd CompanySettingsCommand) (*receivables.CompanySettings, error) {
	if cmd.CompanyID == "" {
		return nil, receivables.ErrEmptyCompanyID
	}
	if err := validateOverdueSettings(cmd.GracePeriodDays, cmd.InterestRatePercent); err != nil {
		return nil, err
	}
	if cmd.MinimumFee.IsNegative() {
		return nil, fmt.Errorf("%w: minimum fee must not be negative", ErrInvalidSettings)
	}
	mode, err := receivables.ParseCompoundingMode(cmd.CompoundingMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	settings := &receivables.CompanySettings{
		CompanyID:           cmd.CompanyID,
		GracePeriodDays:     cmd.GracePeriodDays,
		InterestRatePercent: cmd.InterestRatePercent,
		CompoundingMode:     mode,
		MinimumFee:          cmd.MinimumFee,
		UpdatedAt:           s.clock.Now(),
	}
	if err := s.store.UpsertCompanySettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save company settings: %w", err)
	}
	s.logger.Info("company settings updated",
		zap.String("company_id", cmd.CompanyID),
		zap.Int("grace_period_days", cmd.GracePeriodDays),
		zap.String("interest_rate_percent", cmd.InterestRatePercent.String()),
		zap.String("compounding_mode", string(mode)),
	)
	return settings, nil
}

// UpdateCredit creates or updates customer credit settings. The original credit limit is
// recorded on creation and kept across settlement-driven increases and later updates.
func (s *SettingsService) UpdateCredit(ctx context.Context, cmd CreditSettingsCommand) (*receivables.CreditSettings, error) {
	if cmd.CompanyID == "" {
		return nil, receivables.ErrEmptyCompanyID
	}
	if cmd.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer id required", ErrInvalidSettings)
	}
	if cmd.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("%w: credit limit must not be negative", ErrInvalidSettings)
	}
	current, err := s.store.GetCreditSettings(ctx, cmd.CompanyID, cmd.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load credit settings: %w", err)
	}
	effective, err := s.resolver.Resolve(ctx, s.store, cmd.CompanyID, cmd.CustomerID)
	if err != nil {
		return nil, err
	}

	settings := current
	if settings == nil {
		settings = &receivables.CreditSettings{
			CompanyID:           cmd.CompanyID,
			CustomerID:          cmd.CustomerID,
			OriginalCreditLimit: cmd.CreditLimit,
		}
	}
	settings.CreditLimit = cmd.CreditLimit
	settings.GracePeriodDays = effective.GracePeriodDays
	settings.InterestRatePercent = effective.InterestRatePercent
	if cmd.GracePeriodDays != nil {
		settings.GracePeriodDays = *cmd.GracePeriodDays
	}
	if cmd.InterestRatePercent != nil {
		settings.InterestRatePercent = *cmd.InterestRatePercent
	}
	if err := validateOverdueSettings(settings.GracePeriodDays, settings.InterestRatePercent); err != nil {
		return nil, err
	}
	settings.UpdatedAt = s.clock.Now()
	if err := s.store.UpsertCreditSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save credit settings: %w", err)
	}
	s.logger.Info("credit settings updated",
		zap.String("company_id", cmd.CompanyID),
		zap.String("customer_id", cmd.CustomerID),
		zap.String("credit_limit", cmd.CreditLimit.String()),
	)
	return settings, nil
}

// History returns the status change log of one entry.
func (s *SettingsService) History(ctx context.Context, companyID, entryID string) ([]receivables.StatusChange, error) {
	if companyID == "" {
		return nil, receivables.ErrEmptyCompanyID
	}
	return s.store.ListStatusChanges(ctx, companyID, entryID)
}

func validateOverdueSettings(graceDays int, rate decimal.Decimal) error {
	if graceDays < 0 {
		return fmt.Errorf("%w: grace period must not be negative", ErrInvalidSettings)
	}
	if rate.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidSettings)
	}
	return nil
}
