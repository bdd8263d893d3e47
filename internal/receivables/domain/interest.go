package receivables

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	daysPerYear   = 365
	powPrecision  = 20
	percentFactor = 100
)

var (
	decimalDaysPerYear = decimal.NewFromInt(daysPerYear)
	decimalPercent     = decimal.NewFromInt(percentFactor)
)

// InterestSimple returns daily simple interest on amount for daysOverdue days at an annual
// percentage rate. It is zero for daysOverdue <= 0 and never negative. No rounding is applied.
func InterestSimple(amount decimal.Decimal, daysOverdue int, annualRatePercent decimal.Decimal) decimal.Decimal {
	if daysOverdue <= 0 || !amount.IsPositive() || !annualRatePercent.IsPositive() {
		return decimal.Zero
	}
	numerator := amount.Mul(annualRatePercent).Mul(decimal.NewFromInt(int64(daysOverdue)))
	return numerator.Div(decimalPercent.Mul(decimalDaysPerYear))
}

// CompoundingMode is the compounding granularity used for reporting.
type CompoundingMode string

const (
	CompoundingDaily   CompoundingMode = "daily"
	CompoundingWeekly  CompoundingMode = "weekly"
	CompoundingMonthly CompoundingMode = "monthly"
)

// ParseCompoundingMode validates a mode, defaulting empty values to daily.
func ParseCompoundingMode(value string) (CompoundingMode, error) {
	switch CompoundingMode(value) {
	case "":
		return CompoundingDaily, nil
	case CompoundingDaily, CompoundingWeekly, CompoundingMonthly:
		return CompoundingMode(value), nil
	default:
		return "", fmt.Errorf("receivables: unknown compounding mode %q", value)
	}
}

// periods returns the period length in days and the number of periods per year.
func (m CompoundingMode) periods() (int, int) {
	switch m {
	case CompoundingWeekly:
		return 7, 52
	case CompoundingMonthly:
		return 30, 12
	default:
		return 1, daysPerYear
	}
}

// InterestCompounding returns compound interest on amount for daysOverdue days. Full periods
// compound at annualRatePercent/periodsPerYear; the partial-period remainder accrues at the
// daily rate on the compounded balance. When minimumFee is positive the result is floored at
// it once any interest is due. Callers subtract the grace period before calling.
func InterestCompounding(amount decimal.Decimal, daysOverdue int, annualRatePercent decimal.Decimal, mode CompoundingMode, minimumFee decimal.Decimal) decimal.Decimal {
	if daysOverdue <= 0 || !amount.IsPositive() || !annualRatePercent.IsPositive() {
		return decimal.Zero
	}
	periodDays, perYear := mode.periods()
	periodicRate := annualRatePercent.Div(decimalPercent).Div(decimal.NewFromInt(int64(perYear)))
	fullPeriods := daysOverdue / periodDays
	remainder := daysOverdue % periodDays

	compounded := amount.Mul(powInt(decimal.NewFromInt(1).Add(periodicRate), fullPeriods))
	if remainder > 0 {
		compounded = compounded.Add(InterestSimple(compounded, remainder, annualRatePercent))
	}
	interest := compounded.Sub(amount)
	if minimumFee.IsPositive() && interest.LessThan(minimumFee) {
		return minimumFee
	}
	return interest
}

func powInt(base decimal.Decimal, exp int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(powPrecision)
		}
		base = base.Mul(base).Round(powPrecision)
		exp >>= 1
	}
	return result
}
