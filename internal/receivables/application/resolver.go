package application

import (
	"context"
	"fmt"

	receivables "bizledger/internal/receivables/domain"
)

// SettingsReader loads the records the resolver falls back through. Both the store and a
// store transaction satisfy it.
type SettingsReader interface {
	GetCreditSettings(ctx context.Context, companyID, customerID string) (*receivables.CreditSettings, error)
	GetCompanySettings(ctx context.Context, companyID string) (*receivables.CompanySettings, error)
}

// SettingsResolver resolves effective overdue settings with one injected default.
type SettingsResolver struct {
	defaults receivables.Defaults
}

// NewSettingsResolver constructs a resolver.
func NewSettingsResolver(defaults receivables.Defaults) *SettingsResolver {
	return &SettingsResolver{defaults: defaults}
}

// Defaults returns the configured fallback.
func (r *SettingsResolver) Defaults() receivables.Defaults {
	return r.defaults
}

// Resolve returns the effective settings for a customer within a company. An empty
// customerID skips the customer layer.
func (r *SettingsResolver) Resolve(ctx context.Context, reader SettingsReader, companyID, customerID string) (receivables.Settings, error) {
	var customer *receivables.CreditSettings
	if customerID != "" {
		loaded, err := reader.GetCreditSettings(ctx, companyID, customerID)
		if err != nil {
			return receivables.Settings{}, fmt.Errorf("load credit settings: %w", err)
		}
		customer = loaded
	}
	var company *receivables.CompanySettings
	if customer == nil {
		loaded, err := reader.GetCompanySettings(ctx, companyID)
		if err != nil {
			return receivables.Settings{}, fmt.Errorf("load company settings: %w", err)
		}
		company = loaded
	}
	return receivables.ResolveSettings(customer, company, r.defaults), nil
}
