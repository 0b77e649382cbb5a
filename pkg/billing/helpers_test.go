package billing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

const customerRef = "cus_1"

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertUSD(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, usd(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func linkedTenant(balance string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:              "t1",
		Email:           "agent@example.com",
		BillingMode:     tenant.BillingModePlatform,
		CustomerRef:     customerRef,
		AIDialerEnabled: true,
		Compliance:      tenant.ComplianceApproved,
		UsageBalanceUSD: usd(balance),
	}
}

type fixture struct {
	store *tenant.MemoryStore
	proc  *processor.Memory
	cfg   billing.Config
}

func newFixture(t *testing.T, tn *tenant.Tenant) *fixture {
	t.Helper()
	return &fixture{
		store: tenant.NewMemoryStore(tn),
		proc:  processor.NewMemory(customerRef),
		cfg:   billing.DefaultConfig(),
	}
}

func (f *fixture) meter(opts ...billing.Option) *billing.Meter {
	return billing.NewMeter(f.store, f.proc, f.cfg, opts...)
}

func (f *fixture) accrual(opts ...billing.Option) *billing.AccrualBiller {
	return billing.NewAccrualBiller(f.store, f.proc, f.cfg, opts...)
}

func (f *fixture) tenant(t *testing.T) *tenant.Tenant {
	t.Helper()
	tn, err := f.store.Get(context.Background(), "t1")
	require.NoError(t, err)
	return tn
}
