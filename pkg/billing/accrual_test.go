package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/processor"
)

func TestAccrual_ChargesWholeIncrement(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, linkedTenant("0"))
	f.cfg.RatePerMinuteUSD = usd("1")

	res, err := f.accrual(billing.WithClock(func() time.Time { return now })).RecordMinutes(context.Background(), billing.MinutesEvent{
		TenantID: "t1", Minutes: usd("21.5"), RawCostUSD: usd("3.10"),
	})
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeBilled, res.Outcome)
	assert.Equal(t, int64(2150), res.BillableCents)
	assert.True(t, res.Charge.Charged)
	assert.Equal(t, int64(2000), res.Charge.AmountCents)
	assert.Equal(t, int64(150), res.AccruedCents)

	tn := f.tenant(t)
	assert.Equal(t, int64(150), tn.AIAccruedCents)
	assert.Equal(t, int64(2000), tn.AIBilledTotalCents)
	require.NotNil(t, tn.AILastChargedAt)
	assert.Equal(t, now, *tn.AILastChargedAt)
	assertUSD(t, "21.5", tn.Analytics.AIMinutes)
	assertUSD(t, "3.10", tn.Analytics.ByCategory[billing.CategoryAICompute])

	invoices := f.proc.Invoices()
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(2000), invoices[0].AmountCents)
}

func TestAccrual_MultipleIncrementsInOneInvoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, linkedTenant("0"))
	f.cfg.RatePerMinuteUSD = usd("1")

	res, err := f.accrual().RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("45")})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), res.Charge.AmountCents)
	assert.Equal(t, int64(500), res.AccruedCents)
	assert.Len(t, f.proc.Invoices(), 1)
}

func TestAccrual_BelowIncrementOnlyAccrues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, linkedTenant("0"))
	b := f.accrual()

	res, err := b.RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.BillableCents)
	assert.Equal(t, int64(150), res.AccruedCents)
	assert.Equal(t, billing.SkipBelowTrigger, res.Charge.Skipped)
	assert.False(t, res.Charge.Attempted)
	assert.Empty(t, f.proc.Invoices())
}

func TestAccrual_Rounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minutes string
		cents   int64
	}{
		{"1", 15},
		{"0.1", 2},
		{"0.03", 0},
		{"2.5", 38},
	}

	for _, tt := range tests {
		t.Run(tt.minutes, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, linkedTenant("0"))
			res, err := f.accrual().RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd(tt.minutes)})
			require.NoError(t, err)
			assert.Equal(t, tt.cents, res.BillableCents)
			assert.Equal(t, tt.cents, f.tenant(t).AIAccruedCents)
		})
	}
}

func TestAccrual_ChargeFailureKeepsAccrual(t *testing.T) {
	t.Parallel()

	f := newFixture(t, linkedTenant("0"))
	f.cfg.RatePerMinuteUSD = usd("1")
	f.proc.FailCharges(errors.New("processor unavailable"))
	b := f.accrual()

	res, err := b.RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("21.5")})
	require.NoError(t, err)
	assert.True(t, res.Charge.Attempted)
	assert.False(t, res.Charge.Charged)
	assert.ErrorIs(t, res.Charge.Err, billing.ErrThresholdChargeFailed)
	assert.Equal(t, int64(2150), f.tenant(t).AIAccruedCents)
	assert.Zero(t, f.tenant(t).AIBilledTotalCents)

	f.proc.FailCharges(nil)
	res, err = b.RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("1")})
	require.NoError(t, err)
	assert.True(t, res.Charge.Charged)
	assert.Equal(t, int64(2000), res.Charge.AmountCents)
	assert.Equal(t, int64(250), f.tenant(t).AIAccruedCents)
	assert.Equal(t, int64(2000), f.tenant(t).AIBilledTotalCents)
}

func TestAccrual_NotEntitled(t *testing.T) {
	t.Parallel()

	tn := linkedTenant("0")
	tn.AIDialerEnabled = false
	f := newFixture(t, tn)

	res, err := f.accrual().RecordMinutes(context.Background(), billing.MinutesEvent{
		TenantID: "t1", Minutes: usd("500"), RawCostUSD: usd("12"),
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeNotEntitled, res.Outcome)

	got := f.tenant(t)
	assert.Zero(t, got.AIAccruedCents)
	assertUSD(t, "500", got.Analytics.AIMinutes)
	assertUSD(t, "12", got.Analytics.TotalRawUSD)
}

func TestAccrual_UnlinkedAccruesWithoutCharging(t *testing.T) {
	t.Parallel()

	tn := linkedTenant("0")
	tn.CustomerRef = ""
	f := newFixture(t, tn)
	f.cfg.RatePerMinuteUSD = usd("1")

	res, err := f.accrual().RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("30")})
	require.NoError(t, err)
	assert.Equal(t, billing.SkipUnlinked, res.Charge.Skipped)
	assert.Equal(t, int64(3000), f.tenant(t).AIAccruedCents)
	assert.Empty(t, f.proc.Invoices())
}

func TestAccrual_ConcurrentEventsNeverDoubleCharge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, linkedTenant("0"))
	f.cfg.RatePerMinuteUSD = usd("1")
	b := f.accrual()

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.RecordMinutes(context.Background(), billing.MinutesEvent{TenantID: "t1", Minutes: usd("1.5")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tn := f.tenant(t)
	var charged int64
	for _, inv := range f.proc.Invoices() {
		charged += inv.AmountCents
	}
	assert.Equal(t, int64(6000), tn.AIAccruedCents+tn.AIBilledTotalCents)
	assert.Equal(t, tn.AIBilledTotalCents, charged)
	assert.Zero(t, charged%2000)
	assert.GreaterOrEqual(t, tn.AIAccruedCents, int64(0))
}

// stagingBarrier holds every CreateInvoiceItem call until all expected items
// are staged, so two charges for one customer overlap between staging and
// invoicing.
type stagingBarrier struct {
	processor.Invoicer
	staged sync.WaitGroup
}

func (b *stagingBarrier) CreateInvoiceItem(ctx context.Context, customerRef string, amountCents int64, currency, description string) (string, error) {
	id, err := b.Invoicer.CreateInvoiceItem(ctx, customerRef, amountCents, currency, description)
	b.staged.Done()
	b.staged.Wait()
	return id, err
}

func TestAccrual_ConcurrentTopUpChargesSeparately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, linkedTenant("1.05"))
	f.cfg.RatePerMinuteUSD = usd("1")
	barrier := &stagingBarrier{Invoicer: f.proc}
	barrier.staged.Add(2)

	meter := billing.NewMeter(f.store, barrier, f.cfg)
	accrual := billing.NewAccrualBiller(f.store, barrier, f.cfg)

	var (
		wg       sync.WaitGroup
		usageRes billing.UsageResult
		minRes   billing.AccrualResult
		usageErr error
		minErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		usageRes, usageErr = meter.RecordUsage(ctx, billing.UsageEvent{TenantID: "t1", Category: "sms", RawCostUSD: usd("0.50")})
	}()
	go func() {
		defer wg.Done()
		minRes, minErr = accrual.RecordMinutes(ctx, billing.MinutesEvent{TenantID: "t1", Minutes: usd("20")})
	}()
	wg.Wait()

	require.NoError(t, usageErr)
	require.NoError(t, minErr)
	require.NoError(t, usageRes.TopUp.Err)
	require.NoError(t, minRes.Charge.Err)
	assert.True(t, usageRes.TopUp.Charged)
	assert.True(t, minRes.Charge.Charged)

	var amounts []int64
	for _, inv := range f.proc.Invoices() {
		amounts = append(amounts, inv.AmountCents)
	}
	assert.ElementsMatch(t, []int64{1000, 2000}, amounts)

	tn := f.tenant(t)
	assert.Equal(t, int64(0), tn.AIAccruedCents)
	assert.Equal(t, int64(2000), tn.AIBilledTotalCents)
	assertUSD(t, "10.55", tn.UsageBalanceUSD)
}
