package receivables

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

func sellEntry(amount string, daysAgo int) *Entry {
	return &Entry{
		ID:         "e-1",
		CompanyID:  "co-1",
		CustomerID: "cust-1",
		Type:       EntryTypeSell,
		Amount:     decimal.RequireFromString(amount),
		Date:       today.Add(-time.Duration(daysAgo) * day),
		Status:     StatusUnpaid,
	}
}

func TestClassifyOverdueScenario(t *testing.T) {
	entry := sellEntry("12000", 70)
	settings := Settings{GracePeriodDays: 30, InterestRatePercent: decimal.NewFromInt(18)}

	accrual := Accrue(entry, settings, today)

	assert.Equal(t, StatusOverdue, accrual.Status)
	assert.Equal(t, 70, accrual.DaysElapsed)
	assert.Equal(t, 40, accrual.DaysOverdue)
	require.NotNil(t, accrual.OverdueStartDate)
	assert.True(t, accrual.OverdueStartDate.Equal(entry.Date.Add(30*day)))
	assert.Equal(t, "236.71", accrual.AccruedInterest.StringFixed(2))
}

func TestClassifyWithinGrace(t *testing.T) {
	entry := sellEntry("500", 30)

	c := Classify(entry, 30, today)

	assert.Equal(t, StatusUnpaid, c.Status)
	assert.Equal(t, 30, c.DaysElapsed)
	assert.Zero(t, c.DaysOverdue)
	assert.Nil(t, c.OverdueStartDate)
}

func TestClassifyPartiallyPaidBecomesOverdue(t *testing.T) {
	entry := sellEntry("500", 45)
	entry.Status = StatusPartiallyPaid
	entry.PaidAmount = decimal.NewFromInt(100)

	c := Classify(entry, 30, today)

	assert.Equal(t, StatusOverdue, c.Status)
	assert.Equal(t, 15, c.DaysOverdue)
}

func TestClassifyOverdueIsSticky(t *testing.T) {
	entry := sellEntry("500", 10)
	start := entry.Date.Add(5 * day)
	entry.Status = StatusOverdue
	entry.OverdueStartDate = &start

	c := Classify(entry, 30, today)

	assert.Equal(t, StatusOverdue, c.Status)
	require.NotNil(t, c.OverdueStartDate)
	assert.True(t, c.OverdueStartDate.Equal(start))
	assert.Zero(t, c.DaysOverdue)
}

func TestClassifyTerminalIsNoop(t *testing.T) {
	for _, status := range []Status{StatusPaid, StatusCancelled} {
		entry := sellEntry("500", 400)
		paid := entry.Date.Add(3 * day)
		entry.Status = status
		entry.PaidDate = &paid
		entry.DaysElapsed = 3

		for _, when := range []time.Time{today, today.AddDate(5, 0, 0), entry.Date} {
			c := Classify(entry, 0, when)
			assert.Equal(t, status, c.Status)
			assert.Equal(t, 3, c.DaysElapsed)
			assert.Nil(t, c.OverdueStartDate)
		}
	}
}

func TestClassifyIgnoresNonSellEntries(t *testing.T) {
	entry := sellEntry("500", 90)
	entry.Type = EntryTypeBuy

	c := Classify(entry, 30, today)

	assert.Equal(t, StatusUnpaid, c.Status)
	assert.Nil(t, c.OverdueStartDate)
}

func TestClassifyUsesExplicitDueDate(t *testing.T) {
	entry := sellEntry("500", 20)
	due := entry.Date.Add(10 * day)
	entry.DueDate = &due

	c := Classify(entry, 30, today)

	assert.Equal(t, StatusOverdue, c.Status)
	assert.Equal(t, 10, c.GracePeriodDays)
	assert.Equal(t, 10, c.DaysOverdue)
}

func TestClassifyNeverOverdueWithinGrace(t *testing.T) {
	for grace := 0; grace <= 60; grace += 5 {
		for elapsed := 0; elapsed <= grace; elapsed++ {
			c := Classify(sellEntry("100", elapsed), grace, today)
			require.NotEqual(t, StatusOverdue, c.Status, "grace %d elapsed %d", grace, elapsed)
		}
	}
}

func TestClassifyFutureDateClampsElapsed(t *testing.T) {
	entry := sellEntry("100", -3)

	c := Classify(entry, 30, today)

	assert.Zero(t, c.DaysElapsed)
	assert.Equal(t, StatusUnpaid, c.Status)
}

func TestClassifyIsIdempotent(t *testing.T) {
	entry := sellEntry("900", 55)
	settings := Settings{GracePeriodDays: 30, InterestRatePercent: decimal.NewFromInt(18)}

	first := Accrue(entry, settings, today)
	_, err := first.Apply(entry, today)
	require.NoError(t, err)

	second := Accrue(entry, settings, today)
	assert.False(t, second.Differs(entry))
}

func TestAccrualApplyKeepsOverdueStart(t *testing.T) {
	entry := sellEntry("900", 55)
	start := entry.Date.Add(2 * day)
	entry.Status = StatusOverdue
	entry.OverdueStartDate = &start

	accrual := Accrue(entry, Settings{GracePeriodDays: 30, InterestRatePercent: decimal.NewFromInt(10)}, today)
	previous, err := accrual.Apply(entry, today)

	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, previous)
	assert.True(t, entry.OverdueStartDate.Equal(start))
	assert.True(t, entry.AccruedInterest.IsPositive())
}

func TestAccrualDiffersWithinEpsilon(t *testing.T) {
	entry := sellEntry("900", 55)
	accrual := Accrue(entry, Settings{GracePeriodDays: 30, InterestRatePercent: decimal.NewFromInt(10)}, today)
	_, err := accrual.Apply(entry, today)
	require.NoError(t, err)

	entry.AccruedInterest = entry.AccruedInterest.Add(decimal.RequireFromString("0.004"))
	assert.False(t, accrual.Differs(entry))

	entry.AccruedInterest = entry.AccruedInterest.Add(decimal.RequireFromString("0.02"))
	assert.True(t, accrual.Differs(entry))
}

func TestResolveSettingsPrecedence(t *testing.T) {
	defaults := DefaultDefaults()
	customer := &CreditSettings{GracePeriodDays: 7, InterestRatePercent: decimal.NewFromInt(15)}
	company := &CompanySettings{GracePeriodDays: 45, InterestRatePercent: decimal.NewFromInt(12)}

	got := ResolveSettings(customer, company, defaults)
	assert.Equal(t, SettingsSourceCustomer, got.Source)
	assert.Equal(t, 7, got.GracePeriodDays)

	got = ResolveSettings(nil, company, defaults)
	assert.Equal(t, SettingsSourceCompany, got.Source)
	assert.Equal(t, 45, got.GracePeriodDays)

	got = ResolveSettings(nil, nil, defaults)
	assert.Equal(t, SettingsSourceDefault, got.Source)
	assert.Equal(t, 30, got.GracePeriodDays)
	assert.True(t, got.InterestRatePercent.Equal(decimal.NewFromInt(18)))
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusUnpaid:        {StatusOverdue, StatusPartiallyPaid, StatusPaid, StatusCancelled},
		StatusPartiallyPaid: {StatusOverdue, StatusPaid, StatusCancelled},
		StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	}
	for from, targets := range allowed {
		for _, to := range targets {
			assert.True(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.False(t, StatusOverdue.CanTransitionTo(StatusUnpaid))
	for _, terminal := range []Status{StatusPaid, StatusCancelled} {
		for _, to := range []Status{StatusUnpaid, StatusOverdue, StatusPartiallyPaid, StatusPaid} {
			_, err := terminal.Transition(to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
}
