package application_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
	"bizledger/internal/receivables/infrastructure/memory"
)

func settleCmd(companyID, entryID, amount string) application.SettleCommand {
	return application.SettleCommand{
		CompanyID:     companyID,
		EntryID:       entryID,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: "bank_transfer",
		Actor:         "user-1",
	}
}

func TestSettlePartialThenFullAfterOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCompany(t, "co-1", 30, "18")
	f.addCredit(t, "co-1", "cust-1", "20000", 30, "18")
	f.addSell(t, "co-1", "cust-1", "inv-1", "12000", 70)

	_, err := f.sweeper.Sweep(ctx, "co-1")
	require.NoError(t, err)
	require.Equal(t, receivables.StatusOverdue, f.entry(t, "co-1", "inv-1").Status)

	partial, err := f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "5000"))
	require.NoError(t, err)
	assert.Equal(t, "5000", partial.SettlementAmount.String())
	assert.Equal(t, "7000", partial.RemainingAmount.String())
	assert.False(t, partial.IsFullyPaid)
	assert.Equal(t, receivables.StatusPartiallyPaid, partial.Status)
	require.NotNil(t, partial.NewCreditLimit)
	assert.Equal(t, "20200", partial.NewCreditLimit.String())

	entry := f.entry(t, "co-1", "inv-1")
	assert.Equal(t, receivables.StatusPartiallyPaid, entry.Status)
	assert.Equal(t, "5000", entry.PaidAmount.String())

	full, err := f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "7000"))
	require.NoError(t, err)
	assert.True(t, full.IsFullyPaid)
	assert.True(t, full.CreditIncreasePercent.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "20604", full.NewCreditLimit.String())

	entry = f.entry(t, "co-1", "inv-1")
	assert.Equal(t, receivables.StatusPaid, entry.Status)
	require.NotNil(t, entry.PaidDate)
	assert.True(t, entry.PaidDate.Equal(now))
	assert.True(t, entry.AccruedInterest.IsZero())
	require.NoError(t, entry.Validate())

	payments, err := f.store.ListEntries(ctx, receivables.EntryFilter{
		CompanyID: "co-1",
		Types:     []receivables.EntryType{receivables.EntryTypePaymentIn},
	})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, payment := range payments {
		assert.Equal(t, "inv-1", payment.RelatedEntryID)
		assert.Equal(t, receivables.StatusPaid, payment.Status)
		assert.Equal(t, "bank_transfer", payment.PaymentMethod)
	}

	changes, err := f.store.ListStatusChanges(ctx, "co-1", "inv-1")
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, receivables.StatusPartiallyPaid, changes[1].NewStatus)
	assert.Equal(t, receivables.StatusPaid, changes[2].NewStatus)
	assert.Equal(t, "user-1", changes[2].Actor)

	balance, err := f.balance.Balance(ctx, "co-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.Balance.StringFixed(2))
	assert.Equal(t, "20604.00", balance.AvailableCredit.StringFixed(2))
}

func TestSettleOnTimeIncreasesCreditByFivePercent(t *testing.T) {
	f := newFixture(t)
	f.addCredit(t, "co-1", "cust-1", "1000", 30, "18")
	f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

	result, err := f.settlement.Settle(context.Background(), settleCmd("co-1", "inv-1", "300"))
	require.NoError(t, err)

	assert.True(t, result.IsFullyPaid)
	assert.Equal(t, "1050", result.NewCreditLimit.String())
	settings, err := f.store.GetCreditSettings(context.Background(), "co-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "1050", settings.CreditLimit.String())
	assert.Equal(t, "1000", settings.OriginalCreditLimit.String())
}

func TestSettleWithoutCreditSettingsLeavesNoLimit(t *testing.T) {
	f := newFixture(t)
	f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

	result, err := f.settlement.Settle(context.Background(), settleCmd("co-1", "inv-1", "100"))
	require.NoError(t, err)

	assert.Nil(t, result.NewCreditLimit)
	assert.True(t, result.CreditIncreasePercent.IsZero())
}

func TestSettleCapsOverpayment(t *testing.T) {
	f := newFixture(t)
	f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

	result, err := f.settlement.Settle(context.Background(), settleCmd("co-1", "inv-1", "450"))
	require.NoError(t, err)

	assert.Equal(t, "300", result.SettlementAmount.String())
	assert.Equal(t, "150", result.ExcessAmount.String())
	assert.True(t, result.IsFullyPaid)
	entry := f.entry(t, "co-1", "inv-1")
	assert.True(t, entry.PaidAmount.Equal(entry.Amount))
}

func TestSettleRejectPolicy(t *testing.T) {
	f := newFixture(t, application.WithOverpaymentPolicy(receivables.OverpaymentReject))
	f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

	_, err := f.settlement.Settle(context.Background(), settleCmd("co-1", "inv-1", "450"))
	require.ErrorIs(t, err, receivables.ErrOverpayment)

	entry := f.entry(t, "co-1", "inv-1")
	assert.True(t, entry.PaidAmount.IsZero())
	assert.Zero(t, entry.Version)
}

func TestSettleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

	_, err := f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "0"))
	assert.ErrorIs(t, err, receivables.ErrInvalidAmount)

	_, err = f.settlement.Settle(ctx, settleCmd("co-1", "missing", "10"))
	assert.ErrorIs(t, err, receivables.ErrNotFound)

	_, err = f.settlement.Settle(ctx, settleCmd("co-2", "inv-1", "10"))
	assert.ErrorIs(t, err, receivables.ErrNotFound)

	_, err = f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "300"))
	require.NoError(t, err)
	_, err = f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "10"))
	assert.ErrorIs(t, err, receivables.ErrAlreadySettled)
}

func TestSettleIsAtomic(t *testing.T) {
	for name, store := range map[string]*failingTxStore{
		"payment insert fails": {Store: memory.NewStore(), failInsert: errInjected},
		"credit save fails":    {Store: memory.NewStore(), failCredit: errInjected},
	} {
		t.Run(name, func(t *testing.T) {
			f := buildFixture(t, store.Store, store)
			ctx := context.Background()
			f.addCredit(t, "co-1", "cust-1", "1000", 30, "18")
			f.addSell(t, "co-1", "cust-1", "inv-1", "300", 3)

			_, err := f.settlement.Settle(ctx, settleCmd("co-1", "inv-1", "300"))
			require.ErrorIs(t, err, errInjected)

			entry := f.entry(t, "co-1", "inv-1")
			assert.Equal(t, receivables.StatusUnpaid, entry.Status)
			assert.True(t, entry.PaidAmount.IsZero())
			assert.Nil(t, entry.PaidDate)

			payments, err := f.store.ListEntries(ctx, receivables.EntryFilter{
				CompanyID: "co-1",
				Types:     []receivables.EntryType{receivables.EntryTypePaymentIn},
			})
			require.NoError(t, err)
			assert.Empty(t, payments)

			settings, err := f.store.GetCreditSettings(ctx, "co-1", "cust-1")
			require.NoError(t, err)
			assert.Equal(t, "1000", settings.CreditLimit.String())

			changes, err := f.store.ListStatusChanges(ctx, "co-1", "inv-1")
			require.NoError(t, err)
			assert.Empty(t, changes)
			assert.Empty(t, f.publisher.Events())
		})
	}
}

func TestConcurrentSettlementsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	f.addSell(t, "co-1", "cust-1", "inv-1", "1000", 3)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		settled   = decimal.Zero
		rejected  int
		fullyPaid int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.settlement.Settle(context.Background(), settleCmd("co-1", "inv-1", "150"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, receivables.ErrAlreadySettled)
				rejected++
				return
			}
			settled = settled.Add(result.SettlementAmount)
			if result.IsFullyPaid {
				fullyPaid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, "1000", settled.String())
	assert.Equal(t, 1, fullyPaid)
	assert.Equal(t, 3, rejected)
	entry := f.entry(t, "co-1", "inv-1")
	assert.Equal(t, receivables.StatusPaid, entry.Status)
	assert.True(t, entry.PaidAmount.Equal(entry.Amount))
}

func TestSettlementAndSweepInterleave(t *testing.T) {
	f := newFixture(t)
	f.addCompany(t, "co-1", 30, "18")
	for _, id := range []string{"inv-1", "inv-2", "inv-3", "inv-4"} {
		f.addSell(t, "co-1", "cust-1", id, "400", 45)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			_, err := f.sweeper.Sweep(context.Background(), "co-1")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range []string{"inv-1", "inv-2", "inv-3", "inv-4"} {
			_, err := f.settlement.Settle(context.Background(), settleCmd("co-1", id, "400"))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	for _, id := range []string{"inv-1", "inv-2", "inv-3", "inv-4"} {
		entry := f.entry(t, "co-1", id)
		assert.Equal(t, receivables.StatusPaid, entry.Status, id)
		assert.Equal(t, "400", entry.PaidAmount.String(), id)
		assert.True(t, entry.AccruedInterest.IsZero(), id)
		require.NoError(t, entry.Validate())
	}
}
