package reminder_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/carrier"
	"github.com/dmitrymomot/dialbill/pkg/credentials"
	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/reminder"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

var (
	platformAccount = "AC" + strings.Repeat("5", 32)
	personalAccount = "AC" + strings.Repeat("1", 32)
	personalKey     = "SK" + strings.Repeat("2", 32)
	now             = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func platformTenant(balance string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:              "t1",
		BillingMode:     tenant.BillingModePlatform,
		CustomerRef:     "cus_1",
		FromNumber:      "+15550009999",
		UsageBalanceUSD: usd(balance),
	}
}

func soonAction() *dispatch.Action {
	return &dispatch.Action{
		ID:            "a1",
		TenantID:      "t1",
		Recipient:     "+15550001111",
		RecipientName: "jane",
		StartsAt:      now.Add(10 * time.Minute),
		Active:        true,
	}
}

type harness struct {
	tenants *tenant.MemoryStore
	actions *dispatch.MemoryStore
	sender  *carrier.Memory
	runner  *reminder.Runner
}

func newHarness(t *testing.T, cfg billing.Config, price string, tn *tenant.Tenant, actions ...*dispatch.Action) *harness {
	t.Helper()

	h := &harness{
		tenants: tenant.NewMemoryStore(tn),
		actions: dispatch.NewMemoryStore(actions...),
		sender:  carrier.NewMemory(usd(price)),
	}
	resolver := credentials.NewResolver(h.tenants, credentials.Config{
		Platform: credentials.Platform{AccountSID: platformAccount, AuthToken: "platformtoken"},
	})
	meter := billing.NewMeter(h.tenants, processor.NewMemory("cus_1"), cfg)
	h.runner = reminder.NewRunner(h.actions, dispatch.NewDispatcher(h.actions), resolver, h.sender, meter, reminder.DefaultConfig())
	return h
}

func (h *harness) tenant(t *testing.T) *tenant.Tenant {
	t.Helper()
	got, err := h.tenants.Get(context.Background(), "t1")
	require.NoError(t, err)
	return got
}

func (h *harness) action(t *testing.T) *dispatch.Action {
	t.Helper()
	got, err := h.actions.Get(context.Background(), "a1")
	require.NoError(t, err)
	return got
}

func TestRunner_SendsDueRemindersOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, billing.DefaultConfig(), "0", platformTenant("5"), soonAction())
	ctx := context.Background()

	report, err := h.runner.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, reminder.Report{Scanned: 1, Sent: 2}, report)

	sent := h.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, platformAccount, sent[0].Handle.AccountSID)
	assert.Equal(t, "+15550009999", sent[0].Message.From)
	assert.Contains(t, sent[0].Message.Body, "Hi Jane")
	assert.Contains(t, sent[1].Message.Body, "15 minutes")

	assert.True(t, usd("4.9842").Equal(h.tenant(t).UsageBalanceUSD), "got %s", h.tenant(t).UsageBalanceUSD)

	report, err = h.runner.Tick(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Len(t, h.sender.Sent(), 2)
}

func TestRunner_ConcurrentTicksNeverDoubleSend(t *testing.T) {
	t.Parallel()

	h := newHarness(t, billing.DefaultConfig(), "0.0079", platformTenant("5"), soonAction())

	const ticks = 8
	reports := make([]reminder.Report, ticks)
	var wg sync.WaitGroup
	wg.Add(ticks)
	for i := range ticks {
		go func() {
			defer wg.Done()
			r, err := h.runner.Tick(context.Background(), now)
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	var sent int
	for _, r := range reports {
		sent += r.Sent
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, 2, sent)
	assert.Len(t, h.sender.Sent(), 2)
	assert.True(t, usd("4.9842").Equal(h.tenant(t).UsageBalanceUSD))
}

func TestRunner_SendFailureRevertsClaim(t *testing.T) {
	t.Parallel()

	h := newHarness(t, billing.DefaultConfig(), "0.0079", platformTenant("5"), soonAction())
	h.sender.FailNext(errors.New("carrier down"))
	ctx := context.Background()

	report, err := h.runner.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, h.action(t).Claimed(dispatch.FlagConfirm))
	assert.True(t, h.action(t).Claimed(dispatch.FlagTMinus15))

	report, err = h.runner.Tick(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, h.sender.Sent(), 2)
}

func TestRunner_SuspendedTenantIsHeld(t *testing.T) {
	t.Parallel()

	cfg := billing.DefaultConfig()
	cfg.StrictFlag = true
	h := newHarness(t, cfg, "0.0079", platformTenant("-25"), soonAction())

	report, err := h.runner.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Suspended)
	assert.Empty(t, h.sender.Sent())
	assert.Empty(t, h.action(t).Claims)
}

func TestRunner_SelfBilledTenantOnlyRecordsAnalytics(t *testing.T) {
	t.Parallel()

	tn := platformTenant("5")
	tn.BillingMode = tenant.BillingModeSelf
	tn.Personal = &tenant.Credentials{AccountSID: personalAccount, KeySID: personalKey, KeySecret: "secret"}
	h := newHarness(t, billing.DefaultConfig(), "0.0083", tn, soonAction())

	report, err := h.runner.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)

	sent := h.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, personalAccount, sent[0].Handle.AccountSID)
	assert.Equal(t, personalKey, sent[0].Handle.Username)

	got := h.tenant(t)
	assert.True(t, usd("5").Equal(got.UsageBalanceUSD))
	assert.True(t, usd("0.0166").Equal(got.Analytics.TotalRawUSD), "got %s", got.Analytics.TotalRawUSD)
}

func TestRunner_MeteringFailureKeepsClaim(t *testing.T) {
	t.Parallel()

	cfg := billing.DefaultConfig()
	cfg.StrictFlag = true
	tn := platformTenant("5")
	tn.CustomerRef = ""
	h := newHarness(t, cfg, "0.0079", tn, soonAction())
	ctx := context.Background()

	report, err := h.runner.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.True(t, h.action(t).Claimed(dispatch.FlagConfirm))

	report, err = h.runner.Tick(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, report.Sent)
	assert.Len(t, h.sender.Sent(), 2)
}

func TestRunner_InvalidCredentialsRevert(t *testing.T) {
	t.Parallel()

	tn := platformTenant("5")
	tn.BillingMode = tenant.BillingModeSelf
	h := newHarness(t, billing.DefaultConfig(), "0.0079", tn, soonAction())

	report, err := h.runner.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, h.sender.Sent())
	assert.False(t, h.action(t).Claimed(dispatch.FlagConfirm))
	assert.False(t, h.action(t).Claimed(dispatch.FlagTMinus15))
}

func TestRunner_SkipsActionsWithoutRecipient(t *testing.T) {
	t.Parallel()

	a := soonAction()
	a.Recipient = " "
	h := newHarness(t, billing.DefaultConfig(), "0.0079", platformTenant("5"), a)

	report, err := h.runner.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, h.sender.Sent())
}
