package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// readWriteMetadata hides MetadataCAS so the read-then-write path is used.
type readWriteMetadata struct {
	inner *processor.Memory
}

func (m readWriteMetadata) GetCustomerMetadata(ctx context.Context, ref string) (map[string]string, error) {
	return m.inner.GetCustomerMetadata(ctx, ref)
}

func (m readWriteMetadata) UpdateCustomerMetadata(ctx context.Context, ref string, kv map[string]string) error {
	return m.inner.UpdateCustomerMetadata(ctx, ref, kv)
}

func TestOneTimeGuard_ChargesOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata func(*processor.Memory) processor.CustomerMetadata
	}{
		{"compare and set", func(m *processor.Memory) processor.CustomerMetadata { return m }},
		{"read then write", func(m *processor.Memory) processor.CustomerMetadata { return readWriteMetadata{m} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			f := newFixture(t, linkedTenant("0"))
			g := billing.NewOneTimeGuard(f.store, f.proc, tt.metadata(f.proc), f.cfg)

			first, err := g.ChargeOnceIfEligible(ctx, "t1")
			require.NoError(t, err)
			assert.True(t, first.Charged())
			assert.Equal(t, int64(1500), first.AmountCents)

			second, err := g.ChargeOnceIfEligible(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, billing.OneTimeAlreadyCharged, second.Status)

			assert.Len(t, f.proc.Invoices(), 1)
			md, err := f.proc.GetCustomerMetadata(ctx, customerRef)
			require.NoError(t, err)
			assert.Equal(t, "true", md[billing.OneTimeMarkerKey])
			assert.NotEmpty(t, md[billing.OneTimeChargedAtKey])
		})
	}
}

func TestOneTimeGuard_MarkerOnProcessorSurvivesLocalReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, linkedTenant("0"))
	require.NoError(t, f.proc.UpdateCustomerMetadata(ctx, customerRef, map[string]string{billing.OneTimeMarkerKey: "true"}))

	for _, md := range []processor.CustomerMetadata{f.proc, readWriteMetadata{f.proc}} {
		res, err := billing.NewOneTimeGuard(f.store, f.proc, md, f.cfg).ChargeOnceIfEligible(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, billing.OneTimeAlreadyCharged, res.Status)
	}
	assert.Empty(t, f.proc.Invoices())
}

func TestOneTimeGuard_ExplicitFalseMarkerIsUnset(t *testing.T) {
	t.Parallel()

	for name, metadata := range map[string]func(*processor.Memory) processor.CustomerMetadata{
		"compare and set": func(m *processor.Memory) processor.CustomerMetadata { return m },
		"read then write": func(m *processor.Memory) processor.CustomerMetadata { return readWriteMetadata{m} },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			f := newFixture(t, linkedTenant("0"))
			require.NoError(t, f.proc.UpdateCustomerMetadata(ctx, customerRef, map[string]string{billing.OneTimeMarkerKey: "false"}))

			g := billing.NewOneTimeGuard(f.store, f.proc, metadata(f.proc), f.cfg)
			res, err := g.ChargeOnceIfEligible(ctx, "t1")
			require.NoError(t, err)
			assert.True(t, res.Charged())

			again, err := g.ChargeOnceIfEligible(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, billing.OneTimeAlreadyCharged, again.Status)
			assert.Len(t, f.proc.Invoices(), 1)
		})
	}
}

func TestOneTimeGuard_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*tenant.Tenant)
		want   billing.OneTimeStatus
	}{
		{"not approved", func(tn *tenant.Tenant) { tn.Compliance = tenant.CompliancePending }, billing.OneTimeNotApproved},
		{"admin", func(tn *tenant.Tenant) { tn.IsAdmin = true }, billing.OneTimeAdmin},
		{"no customer", func(tn *tenant.Tenant) { tn.CustomerRef = "" }, billing.OneTimePendingLinkage},
		{"billing disabled", func(tn *tenant.Tenant) { tn.BillingDisabled = true }, billing.OneTimePendingLinkage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tn := linkedTenant("0")
			tt.mutate(tn)
			f := newFixture(t, tn)

			res, err := billing.NewOneTimeGuard(f.store, f.proc, f.proc, f.cfg).ChargeOnceIfEligible(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Empty(t, f.proc.Invoices())
		})
	}
}

func TestOneTimeGuard_FailedChargeCanBeRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, linkedTenant("0"))
	f.proc.FailCharges(errors.New("declined"))
	g := billing.NewOneTimeGuard(f.store, f.proc, f.proc, f.cfg)

	res, err := g.ChargeOnceIfEligible(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, billing.OneTimeFailed, res.Status)
	assert.ErrorIs(t, res.Err, billing.ErrOneTimeChargeFailed)

	md, err := f.proc.GetCustomerMetadata(ctx, customerRef)
	require.NoError(t, err)
	assert.Empty(t, md[billing.OneTimeMarkerKey])

	f.proc.FailCharges(nil)
	res, err = g.ChargeOnceIfEligible(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Charged())
	assert.Len(t, f.proc.Invoices(), 1)
}

func TestOneTimeGuard_UnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, linkedTenant("0"))
	_, err := billing.NewOneTimeGuard(f.store, f.proc, f.proc, f.cfg).ChargeOnceIfEligible(context.Background(), "missing")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}
