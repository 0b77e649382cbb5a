package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// Usage categories.
const (
	CategoryCarrierSMS   = "carrier-sms"
	CategoryCarrierVoice = "carrier-voice"
	CategoryAICompute    = "ai-compute"
)

// UsageEvent is one raw vendor cost to meter.
type UsageEvent struct {
	TenantID   string
	Category   string
	RawCostUSD decimal.Decimal
	// SelfBilled marks traffic that ran on the tenant's own carrier account.
	// Categories listed in USAGE_SELF_BILLED_CATEGORIES are self-billed too.
	SelfBilled bool
}

// Meter keeps the continuous usage balance: every event decrements it by the
// marked-up cost, and a fixed top-up is charged when it runs low.
type Meter struct {
	store    tenant.Store
	invoicer processor.Invoicer
	cfg      Config
	opts     options
}

func NewMeter(store tenant.Store, invoicer processor.Invoicer, cfg Config, opts ...Option) *Meter {
	return &Meter{
		store:    store,
		invoicer: invoicer,
		cfg:      cfg,
		opts:     buildOptions("billing.meter", opts),
	}
}

// RecordUsage meters one event. Analytics are always recorded. Top-up
// failures are absorbed into the result. The returned error is reserved for
// store failures and, in strict mode, ErrUsageSuspended and ErrTenantUnlinked.
func (m *Meter) RecordUsage(ctx context.Context, ev UsageEvent) (UsageResult, error) {
	if strings.TrimSpace(ev.TenantID) == "" || ev.RawCostUSD.IsNegative() {
		return UsageResult{}, ErrInvalidUsage
	}
	log := m.opts.log.With(logger.TenantID(ev.TenantID), logger.Category(ev.Category))

	t, err := m.store.Get(ctx, ev.TenantID)
	if err != nil {
		return UsageResult{}, err
	}

	if err := m.store.RecordAnalytics(ctx, t.ID, tenant.AnalyticsEntry{
		Category:   ev.Category,
		RawCostUSD: ev.RawCostUSD,
	}); err != nil {
		return UsageResult{}, err
	}

	res := UsageResult{BalanceUSD: t.UsageBalanceUSD}

	if m.cfg.IsAdmin(t) {
		res.Outcome = OutcomeExempt
		return res, nil
	}
	if ev.RawCostUSD.IsZero() {
		res.Outcome = OutcomeAnalyticsOnly
		return res, nil
	}

	if t.UsageBalanceUSD.LessThan(m.cfg.FreezeThresholdUSD) {
		if m.cfg.Strict() {
			res.Outcome = OutcomeSuspended
			return res, ErrUsageSuspended
		}
		log.WarnContext(ctx, "balance below freeze threshold, continuing in permissive mode",
			logger.Amount("balance_usd", t.UsageBalanceUSD))
		res.Suspended = true
	}

	if ev.SelfBilled || m.cfg.IsSelfBilledCategory(ev.Category) {
		res.Outcome = OutcomeSelfBilled
		return res, nil
	}

	if strings.TrimSpace(t.CustomerRef) == "" {
		if m.cfg.Strict() {
			res.Outcome = OutcomeUnlinked
			return res, ErrTenantUnlinked
		}
		log.WarnContext(ctx, "tenant has no processor linkage, metering without top-up")
	}

	billed := ev.RawCostUSD.Mul(m.cfg.MarkupFactor()).Round(6)
	balance, err := m.store.AdjustBalance(ctx, t.ID, billed.Neg())
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeBilled
	res.BilledUSD = billed
	res.BalanceUSD = balance
	m.opts.publish(ctx, ChangeBalance, t.ID, billed.Neg())

	if !balance.LessThan(m.cfg.LowBalanceTriggerUSD) {
		return res, nil
	}

	switch {
	case strings.TrimSpace(t.CustomerRef) == "":
		res.TopUp.Skipped = SkipUnlinked
	case t.BillingDisabled:
		res.TopUp.Skipped = SkipDisabled
	default:
		res.TopUp, res.BalanceUSD = m.topUp(ctx, log, t, balance)
	}
	return res, nil
}

// topUp charges one increment under the tenant's top-up lease. The balance is
// re-read inside the lease so a concurrent top-up is not repeated.
func (m *Meter) topUp(ctx context.Context, log *slog.Logger, t *tenant.Tenant, balance decimal.Decimal) (ChargeResult, decimal.Decimal) {
	now := m.opts.now()
	acquired, err := m.store.TryLock(ctx, t.ID, tenant.LockTopUp, now, m.cfg.lockTTL())
	if err != nil {
		return ChargeResult{Err: errors.Join(ErrTopUpFailed, err)}, balance
	}
	if !acquired {
		return ChargeResult{Skipped: SkipLocked}, balance
	}
	defer func() {
		if err := m.store.Unlock(context.WithoutCancel(ctx), t.ID, tenant.LockTopUp, tenant.LeaseUntil(now, m.cfg.lockTTL())); err != nil {
			log.ErrorContext(ctx, "failed to release top-up lock", logger.Error(err))
		}
	}()

	fresh, err := m.store.Get(ctx, t.ID)
	if err != nil {
		return ChargeResult{Err: errors.Join(ErrTopUpFailed, err)}, balance
	}
	balance = fresh.UsageBalanceUSD
	if !balance.LessThan(m.cfg.LowBalanceTriggerUSD) {
		return ChargeResult{Skipped: SkipNotNeeded}, balance
	}

	amount := toCents(m.cfg.TopUpIncrementUSD)
	out := ChargeResult{Attempted: true, AmountCents: amount}

	inv, err := processor.Charge(ctx, m.invoicer, processor.ChargeRequest{
		CustomerRef:    fresh.CustomerRef,
		AmountCents:    amount,
		Currency:       m.cfg.currency(),
		Description:    "Usage balance top-up",
		IdempotencyKey: "topup-" + uuid.NewString(),
		Metadata:       map[string]string{"tenant_id": t.ID, "kind": "usage_topup"},
	})
	if err != nil {
		out.Err = errors.Join(ErrTopUpFailed, err)
		log.WarnContext(ctx, "top-up charge failed, balance left uncredited",
			logger.Cents("amount_cents", amount),
			logger.Error(err))
		return out, balance
	}
	out.InvoiceID = inv.ID

	credit := fromCents(amount)
	balance, err = m.store.AdjustBalance(ctx, t.ID, credit)
	if err != nil {
		// The customer was charged; this needs manual reconciliation.
		out.Charged = true
		out.Err = errors.Join(ErrTopUpFailed, err)
		log.ErrorContext(ctx, "top-up charged but balance credit failed",
			slog.String("invoice_id", inv.ID),
			logger.Cents("amount_cents", amount),
			logger.Error(err))
		return out, fresh.UsageBalanceUSD
	}

	out.Charged = true
	log.InfoContext(ctx, "usage balance topped up",
		slog.String("invoice_id", inv.ID),
		logger.Amount("amount_usd", credit),
		logger.Amount("balance_usd", balance))
	m.opts.publish(ctx, ChangeTopUp, t.ID, credit)
	return out, balance
}

// CheckSuspended returns ErrUsageSuspended in strict mode when the tenant's
// balance is below the freeze threshold. Admin tenants are never suspended.
// Callers use it to refuse billable work before starting it.
func (m *Meter) CheckSuspended(ctx context.Context, tenantID string) error {
	t, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if m.cfg.IsAdmin(t) || !t.UsageBalanceUSD.LessThan(m.cfg.FreezeThresholdUSD) {
		return nil
	}
	if m.cfg.Strict() {
		return ErrUsageSuspended
	}
	m.opts.log.WarnContext(ctx, "tenant below freeze threshold, not blocking in permissive mode",
		logger.TenantID(t.ID),
		logger.Amount("balance_usd", t.UsageBalanceUSD))
	return nil
}
