package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bizledger/internal/observability/logger"
	"bizledger/internal/observability/metrics"
	receivables "bizledger/internal/receivables/domain"
)

// SettleCommand applies an incoming payment to one entry.
type SettleCommand struct {
	CompanyID     string
	EntryID       string
	Amount        decimal.Decimal
	PaymentMethod string
	Actor         string
}

// SettleResult reports the effect of a settlement.
type SettleResult struct {
	EntryID               string             `json:"entry_id"`
	PaymentEntryID        string             `json:"payment_entry_id"`
	SettlementAmount      decimal.Decimal    `json:"settlement_amount"`
	RemainingAmount       decimal.Decimal    `json:"remaining_amount"`
	ExcessAmount          decimal.Decimal    `json:"excess_amount"`
	IsFullyPaid           bool               `json:"is_fully_paid"`
	Status                receivables.Status `json:"status"`
	CreditIncreasePercent decimal.Decimal    `json:"credit_increase_percent"`
	NewCreditLimit        *decimal.Decimal   `json:"new_credit_limit,omitempty"`
}

// SettlementService applies payments against open entries.
type SettlementService struct {
	store  receivables.Store
	sink   *StatusSink
	policy receivables.OverpaymentPolicy
	clock  receivables.Clock
	logger *zap.Logger
	tracer trace.Tracer
	newID  func() string
}

// SettlementOption configures a SettlementService.
type SettlementOption func(*SettlementService)

// WithSettlementClock overrides the clock.
func WithSettlementClock(clock receivables.Clock) SettlementOption {
	return func(s *SettlementService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSettlementLogger sets the logger.
func WithSettlementLogger(log *zap.Logger) SettlementOption {
	return func(s *SettlementService) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithOverpaymentPolicy sets how excess funds are handled.
func WithOverpaymentPolicy(policy receivables.OverpaymentPolicy) SettlementOption {
	return func(s *SettlementService) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// WithSettlementTracerProvider overrides the global tracer provider.
func WithSettlementTracerProvider(provider trace.TracerProvider) SettlementOption {
	return func(s *SettlementService) {
		if provider != nil {
			s.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithPaymentIDGenerator overrides payment entry id generation.
func WithPaymentIDGenerator(fn func() string) SettlementOption {
	return func(s *SettlementService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewSettlementService constructs the service.
func NewSettlementService(store receivables.Store, sink *StatusSink, opts ...SettlementOption) (*SettlementService, error) {
	if store == nil {
		return nil, errors.New("settlement service: nil store")
	}
	if sink == nil {
		return nil, errors.New("settlement service: nil status sink")
	}
	s := &SettlementService{
		store:  store,
		sink:   sink,
		policy: receivables.OverpaymentCap,
		clock:  receivables.SystemClock{},
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Settle applies cmd.Amount to the entry. The entry update, the linked payment entry, the
// credit limit change and the status change row commit together or not at all.
func (s *SettlementService) Settle(ctx context.Context, cmd SettleCommand) (SettleResult, error) {
	start := time.Now()
	if !cmd.Amount.IsPositive() {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start), 0)
		return SettleResult{}, receivables.ErrInvalidAmount
	}
	if cmd.CompanyID == "" {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start), 0)
		return SettleResult{}, receivables.ErrEmptyCompanyID
	}
	if cmd.EntryID == "" {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start), 0)
		return SettleResult{}, receivables.ErrNotFound
	}
	actor := cmd.Actor
	if actor == "" {
		actor = receivables.ActorSettlement
	}

	ctx, span := s.tracer.Start(ctx, "receivables.Settle", trace.WithAttributes(
		attribute.String("company_id", cmd.CompanyID),
		attribute.String("entry_id", cmd.EntryID),
	))
	defer span.End()
	log := logger.WithTrace(ctx, s.logger)

	var (
		result  SettleResult
		pending Pending
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx receivables.Tx) error {
		pending.Reset()
		entry, err := tx.GetEntryForUpdate(ctx, cmd.CompanyID, cmd.EntryID)
		if err != nil {
			return err
		}
		plan, err := receivables.PlanSettlement(entry, cmd.Amount, s.policy)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := plan.ApplyTo(entry, now); err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}

		payment := plan.PaymentEntry(entry, s.newID(), cmd.PaymentMethod, now)
		if err := tx.InsertEntry(ctx, payment); err != nil {
			return fmt.Errorf("insert payment entry: %w", err)
		}

		result = SettleResult{
			EntryID:               entry.ID,
			PaymentEntryID:        payment.ID,
			SettlementAmount:      plan.SettlementAmount,
			RemainingAmount:       plan.RemainingAmount,
			ExcessAmount:          plan.ExcessAmount,
			IsFullyPaid:           plan.IsFullyPaid,
			Status:                entry.Status,
			CreditIncreasePercent: decimal.Zero,
		}

		if entry.CustomerID != "" {
			credit, err := tx.GetCreditSettings(ctx, entry.CompanyID, entry.CustomerID)
			if err != nil {
				return fmt.Errorf("load credit settings: %w", err)
			}
			if credit != nil {
				limit := credit.ApplyCreditIncrease(plan.CreditIncreasePercent, now)
				if err := tx.SaveCreditSettings(ctx, credit); err != nil {
					return fmt.Errorf("save credit settings: %w", err)
				}
				result.CreditIncreasePercent = plan.CreditIncreasePercent
				result.NewCreditLimit = &limit
			}
		}

		if plan.PreviousStatus != entry.Status {
			reason := fmt.Sprintf("payment of %s via %s", plan.SettlementAmount.StringFixed(2), paymentMethodLabel(cmd.PaymentMethod))
			if err := s.sink.Record(ctx, tx, &pending, entry, plan.PreviousStatus, reason, actor, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start), 0)
		log.Info("settlement rejected",
			zap.String("company_id", cmd.CompanyID),
			zap.String("entry_id", cmd.EntryID),
			zap.String("amount", cmd.Amount.String()),
			zap.Error(err),
		)
		return SettleResult{}, err
	}

	s.sink.Dispatch(ctx, &pending)
	amount, _ := result.SettlementAmount.Float64()
	metrics.ObserveSettlement(metrics.ResultSuccess, time.Since(start), amount)
	log.Info("settlement applied",
		zap.String("company_id", cmd.CompanyID),
		zap.String("entry_id", cmd.EntryID),
		zap.String("payment_entry_id", result.PaymentEntryID),
		zap.String("settled", result.SettlementAmount.String()),
		zap.String("excess", result.ExcessAmount.String()),
		zap.Bool("fully_paid", result.IsFullyPaid),
	)
	return result, nil
}

func paymentMethodLabel(method string) string {
	if method == "" {
		return "unspecified"
	}
	return method
}
