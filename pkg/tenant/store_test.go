package tenant_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

func newTenant(id string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:              id,
		Email:           id + "@example.com",
		BillingMode:     tenant.BillingModePlatform,
		CustomerRef:     "ctm_" + id,
		UsageBalanceUSD: decimal.RequireFromString("5"),
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	got.UsageBalanceUSD = decimal.RequireFromString("999")

	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, again.UsageBalanceUSD.Equal(decimal.RequireFromString("5")))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestMemoryStore_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore()

	require.NoError(t, store.Create(ctx, newTenant("t1")))
	assert.ErrorIs(t, store.Create(ctx, newTenant("t1")), tenant.ErrTenantExists)
	assert.ErrorIs(t, store.Create(ctx, &tenant.Tenant{}), tenant.ErrInvalidIdentifier)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStore_AdjustBalanceIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := store.AdjustBalance(ctx, "t1", decimal.RequireFromString("-0.10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "0", got.UsageBalanceUSD.String())
}

func TestMemoryStore_Analytics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))

	require.NoError(t, store.RecordAnalytics(ctx, "t1", tenant.AnalyticsEntry{
		Category:   "carrier-sms",
		RawCostUSD: decimal.RequireFromString("0.0079"),
	}))
	require.NoError(t, store.RecordAnalytics(ctx, "t1", tenant.AnalyticsEntry{
		Category:   "ai-compute",
		RawCostUSD: decimal.RequireFromString("0.50"),
		Minutes:    decimal.RequireFromString("3.5"),
	}))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "0.5079", got.Analytics.TotalRawUSD.String())
	assert.Equal(t, "3.5", got.Analytics.AIMinutes.String())
	assert.Equal(t, int64(2), got.Analytics.Events)
	assert.Equal(t, "0.0079", got.Analytics.ByCategory["carrier-sms"].String())

	assert.ErrorIs(t, store.RecordAnalytics(ctx, "missing", tenant.AnalyticsEntry{}), tenant.ErrTenantNotFound)
}

func TestMemoryStore_Accrual(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))

	accrued, err := store.AddAccrual(ctx, "t1", 2150)
	require.NoError(t, err)
	assert.Equal(t, int64(2150), accrued)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	accrued, err = store.SettleAccrual(ctx, "t1", 2000, at)
	require.NoError(t, err)
	assert.Equal(t, int64(150), accrued)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.AIBilledTotalCents)
	require.NotNil(t, got.AILastChargedAt)
	assert.True(t, got.AILastChargedAt.Equal(at))
}

func TestMemoryStore_SetCompliance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))

	prev, err := store.SetCompliance(ctx, "t1", tenant.CompliancePending)
	require.NoError(t, err)
	assert.Equal(t, tenant.ComplianceUnknown, prev)

	prev, err = store.SetCompliance(ctx, "t1", tenant.ComplianceApproved)
	require.NoError(t, err)
	assert.Equal(t, tenant.CompliancePending, prev)
}

func TestMemoryStore_Locks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))
	now := time.Now()

	ok, err := store.TryLock(ctx, "t1", tenant.LockTopUp, now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryLock(ctx, "t1", tenant.LockTopUp, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease still held")

	ok, err = store.TryLock(ctx, "t1", tenant.LockAccrual, now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "kinds are independent")

	ok, err = store.TryLock(ctx, "t1", tenant.LockTopUp, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, store.Unlock(ctx, "t1", tenant.LockTopUp, tenant.LeaseUntil(now, time.Minute)))
	ok, err = store.TryLock(ctx, "t1", tenant.LockTopUp, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "stale holder must not release the new lease")

	require.NoError(t, store.Unlock(ctx, "t1", tenant.LockTopUp, tenant.LeaseUntil(now.Add(2*time.Minute), time.Minute)))
	ok, err = store.TryLock(ctx, "t1", tenant.LockTopUp, now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.TryLock(ctx, "missing", tenant.LockTopUp, now, time.Minute)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestMemoryStore_ApprovalNotifiedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore(newTenant("t1"))
	now := time.Now()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkApprovalNotified(ctx, "t1", now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.ApprovalNotifiedAt)

	require.NoError(t, store.ClearApprovalNotified(ctx, "t1"))
	ok, err := store.MarkApprovalNotified(ctx, "t1", now)
	require.NoError(t, err)
	assert.True(t, ok, "cleared stamp can be set again")

	_, err = store.MarkApprovalNotified(ctx, "missing", now)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}
