package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bizledger/internal/observability/metrics"
	receivables "bizledger/internal/receivables/domain"
)

// Statement is a customer's balance together with the entries it was folded from.
type Statement struct {
	CompanyID   string              `json:"company_id"`
	CustomerID  string              `json:"customer_id"`
	Balance     receivables.Balance `json:"balance"`
	Entries     []receivables.Entry `json:"entries"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// BalanceService computes customer balances and statements.
type BalanceService struct {
	store  receivables.Store
	clock  receivables.Clock
	logger *zap.Logger
}

// NewBalanceService constructs the service.
func NewBalanceService(store receivables.Store, clock receivables.Clock, logger *zap.Logger) (*BalanceService, error) {
	if store == nil {
		return nil, errors.New("balance service: nil store")
	}
	if clock == nil {
		clock = receivables.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{store: store, clock: clock, logger: logger}, nil
}

// Balance returns the rounded balance of a customer. A customer with neither entries nor
// credit settings in the company is reported as not found.
func (s *BalanceService) Balance(ctx context.Context, companyID, customerID string) (receivables.Balance, error) {
	statement, err := s.load(ctx, companyID, customerID)
	if err != nil {
		metrics.IncBalance(metrics.ResultError)
		return receivables.Balance{}, err
	}
	metrics.IncBalance(metrics.ResultSuccess)
	return statement.Balance, nil
}

// Statement returns the balance and the non-cancelled entries of a customer.
func (s *BalanceService) Statement(ctx context.Context, companyID, customerID string) (Statement, error) {
	return s.load(ctx, companyID, customerID)
}

func (s *BalanceService) load(ctx context.Context, companyID, customerID string) (Statement, error) {
	if companyID == "" {
		return Statement{}, receivables.ErrEmptyCompanyID
	}
	if customerID == "" {
		return Statement{}, receivables.ErrNotFound
	}
	entries, err := s.store.ListEntries(ctx, receivables.EntryFilter{CompanyID: companyID, CustomerID: customerID})
	if err != nil {
		return Statement{}, fmt.Errorf("list customer entries: %w", err)
	}
	credit, err := s.store.GetCreditSettings(ctx, companyID, customerID)
	if err != nil {
		return Statement{}, fmt.Errorf("load credit settings: %w", err)
	}
	if len(entries) == 0 && credit == nil {
		return Statement{}, receivables.ErrNotFound
	}

	limit := decimal.Zero
	if credit != nil {
		limit = credit.CreditLimit
	}
	balance := receivables.ComputeBalance(entries, limit).Rounded()
	balance.CompanyID = companyID
	balance.CustomerID = customerID

	visible := make([]receivables.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status == receivables.StatusCancelled {
			continue
		}
		visible = append(visible, entry)
	}
	s.logger.Debug("customer balance computed",
		zap.String("company_id", companyID),
		zap.String("customer_id", customerID),
		zap.Int("entries", len(visible)),
	)
	return Statement{
		CompanyID:   companyID,
		CustomerID:  customerID,
		Balance:     balance,
		Entries:     visible,
		GeneratedAt: s.clock.Now(),
	}, nil
}
