package receivables

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotSettleable is returned when a payment targets an entry type that cannot be settled.
var ErrNotSettleable = errors.New("receivables: entry type cannot be settled")

// OverpaymentPolicy decides what happens to funds beyond the outstanding amount.
type OverpaymentPolicy string

const (
	// OverpaymentCap applies only the outstanding amount and reports the rest as excess.
	OverpaymentCap OverpaymentPolicy = "cap"
	// OverpaymentReject refuses payments larger than the outstanding amount.
	OverpaymentReject OverpaymentPolicy = "reject"
)

// ParseOverpaymentPolicy validates a policy, defaulting empty values to cap.
func ParseOverpaymentPolicy(value string) (OverpaymentPolicy, error) {
	switch OverpaymentPolicy(value) {
	case "":
		return OverpaymentCap, nil
	case OverpaymentCap, OverpaymentReject:
		return OverpaymentPolicy(value), nil
	default:
		return "", fmt.Errorf("receivables: unknown overpayment policy %q", value)
	}
}

// Credit limit increase percentages by payment behavior.
var (
	CreditIncreaseOnTime          = decimal.NewFromInt(5)
	CreditIncreaseOverdueRecovery = decimal.NewFromInt(2)
	CreditIncreasePartial         = decimal.NewFromInt(1)
)

// CreditIncreasePercent returns the credit limit growth earned by a settlement.
func CreditIncreasePercent(fullyPaid, wasOverdue bool) decimal.Decimal {
	switch {
	case fullyPaid && !wasOverdue:
		return CreditIncreaseOnTime
	case fullyPaid:
		return CreditIncreaseOverdueRecovery
	default:
		return CreditIncreasePartial
	}
}

// SettlementPlan is the outcome of applying a payment to an entry, computed before any write.
type SettlementPlan struct {
	PreviousStatus        Status          `json:"previous_status"`
	RemainingBefore       decimal.Decimal `json:"remaining_before"`
	SettlementAmount      decimal.Decimal `json:"settlement_amount"`
	RemainingAmount       decimal.Decimal `json:"remaining_amount"`
	ExcessAmount          decimal.Decimal `json:"excess_amount"`
	NewPaidAmount         decimal.Decimal `json:"new_paid_amount"`
	IsFullyPaid           bool            `json:"is_fully_paid"`
	WasOverdue            bool            `json:"was_overdue"`
	CreditIncreasePercent decimal.Decimal `json:"credit_increase_percent"`
}

// PlanSettlement validates a payment against entry and computes its effects.
func PlanSettlement(entry *Entry, incoming decimal.Decimal, policy OverpaymentPolicy) (SettlementPlan, error) {
	if !incoming.IsPositive() {
		return SettlementPlan{}, ErrInvalidAmount
	}
	if entry == nil {
		return SettlementPlan{}, ErrNotFound
	}
	if entry.Type != EntryTypeSell {
		return SettlementPlan{}, fmt.Errorf("%w: %s", ErrNotSettleable, entry.Type)
	}
	if entry.Status == StatusCancelled {
		return SettlementPlan{}, fmt.Errorf("%w: entry %s is cancelled", ErrInvalidTransition, entry.ID)
	}
	if entry.IsFullyPaid() || entry.Status == StatusPaid {
		return SettlementPlan{}, ErrAlreadySettled
	}

	remaining := entry.Outstanding()
	applied := decimal.Min(incoming, remaining)
	excess := incoming.Sub(applied)
	if excess.IsPositive() && policy == OverpaymentReject {
		return SettlementPlan{}, fmt.Errorf("%w: outstanding %s, received %s", ErrOverpayment, remaining.String(), incoming.String())
	}
	newPaid := entry.PaidAmount.Add(applied)
	fullyPaid := newPaid.GreaterThanOrEqual(entry.Amount)
	wasOverdue := entry.Status == StatusOverdue || entry.OverdueStartDate != nil

	return SettlementPlan{
		PreviousStatus:        entry.Status,
		RemainingBefore:       remaining,
		SettlementAmount:      applied,
		RemainingAmount:       remaining.Sub(applied),
		ExcessAmount:          excess,
		NewPaidAmount:         newPaid,
		IsFullyPaid:           fullyPaid,
		WasOverdue:            wasOverdue,
		CreditIncreasePercent: CreditIncreasePercent(fullyPaid, wasOverdue),
	}, nil
}

// TargetStatus is the status the entry takes after the settlement.
func (p SettlementPlan) TargetStatus() Status {
	if p.IsFullyPaid {
		return StatusPaid
	}
	return StatusPartiallyPaid
}

// ApplyTo writes the plan onto the original entry.
func (p SettlementPlan) ApplyTo(entry *Entry, now time.Time) error {
	if entry == nil {
		return ErrNilEntry
	}
	next, err := entry.Status.Transition(p.TargetStatus())
	if err != nil {
		return err
	}
	entry.Status = next
	entry.PaidAmount = p.NewPaidAmount
	entry.UpdatedAt = now
	if p.IsFullyPaid {
		paidDate := now
		entry.PaidDate = &paidDate
		entry.AccruedInterest = decimal.Zero
		entry.DaysElapsed = nonNegative(DaysBetween(entry.Date, now))
	}
	return nil
}

// PaymentEntry builds the linked payment record for the settled amount.
func (p SettlementPlan) PaymentEntry(original *Entry, id, paymentMethod string, now time.Time) *Entry {
	paidDate := now
	return &Entry{
		ID:             id,
		CompanyID:      original.CompanyID,
		CustomerID:     original.CustomerID,
		Type:           EntryTypePaymentIn,
		Amount:         p.SettlementAmount,
		PaidAmount:     p.SettlementAmount,
		Date:           now,
		PaidDate:       &paidDate,
		Status:         StatusPaid,
		RelatedEntryID: original.ID,
		PaymentMethod:  paymentMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ApplyCreditIncrease grows the credit limit by percent of its current value.
func (c *CreditSettings) ApplyCreditIncrease(percent decimal.Decimal, now time.Time) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	if percent.IsPositive() && c.CreditLimit.IsPositive() {
		c.CreditLimit = c.CreditLimit.Add(c.CreditLimit.Mul(percent).Div(decimalPercent))
		c.UpdatedAt = now
	}
	return c.CreditLimit
}
