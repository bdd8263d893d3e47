package receivables

import "github.com/shopspring/decimal"

const moneyPlaces = 2

// Balance is a customer's outstanding position against its credit limit.
type Balance struct {
	CustomerID               string          `json:"customer_id"`
	CompanyID                string          `json:"company_id"`
	Balance                  decimal.Decimal `json:"balance"`
	CreditLimit              decimal.Decimal `json:"credit_limit"`
	AvailableCredit          decimal.Decimal `json:"available_credit"`
	CreditUtilizationPercent decimal.Decimal `json:"credit_utilization_percent"`
}

// ComputeBalance folds non-cancelled entries into a balance. Cash entries do not move the
// customer balance, and payment entries linked to a settled entry are already reflected in
// that entry's paid amount. The result is unrounded; call Rounded at the boundary.
func ComputeBalance(entries []Entry, creditLimit decimal.Decimal) Balance {
	balance := decimal.Zero
	for i := range entries {
		e := &entries[i]
		if e.Status == StatusCancelled || e.RelatedEntryID != "" {
			continue
		}
		switch e.Type {
		case EntryTypeSell:
			balance = balance.Add(openAmount(e))
		case EntryTypeBuy:
			balance = balance.Sub(openAmount(e))
		case EntryTypePaymentIn:
			balance = balance.Sub(e.Amount)
		case EntryTypePaymentOut:
			balance = balance.Add(e.Amount)
		}
	}

	owed := decimal.Max(balance, decimal.Zero)
	available := decimal.Max(creditLimit.Sub(owed), decimal.Zero)
	utilization := decimal.Zero
	if creditLimit.IsPositive() {
		utilization = owed.Div(creditLimit).Mul(decimalPercent)
	}
	return Balance{
		Balance:                  balance,
		CreditLimit:              creditLimit,
		AvailableCredit:          available,
		CreditUtilizationPercent: utilization,
	}
}

// Rounded returns the balance with every amount rounded to 2 decimal places.
func (b Balance) Rounded() Balance {
	b.Balance = b.Balance.Round(moneyPlaces)
	b.CreditLimit = b.CreditLimit.Round(moneyPlaces)
	b.AvailableCredit = b.AvailableCredit.Round(moneyPlaces)
	b.CreditUtilizationPercent = b.CreditUtilizationPercent.Round(moneyPlaces)
	return b
}

// openAmount is the unsettled part of a sell/buy entry; a zero paid amount leaves the
// full amount open and a fully paid entry contributes nothing.
func openAmount(e *Entry) decimal.Decimal {
	if e.IsFullyPaid() {
		return decimal.Zero
	}
	if e.PaidAmount.IsZero() {
		return e.Amount
	}
	return e.Amount.Sub(e.PaidAmount)
}
