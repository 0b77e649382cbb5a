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

// MinutesEvent is a batch of metered AI compute minutes.
type MinutesEvent struct {
	TenantID   string
	Minutes    decimal.Decimal
	RawCostUSD decimal.Decimal
}

// AccrualBiller accrues billable cents for AI minutes and charges them in
// whole increments once the accrual crosses one. The accrual never goes
// negative and a failed charge leaves it untouched.
type AccrualBiller struct {
	store    tenant.Store
	invoicer processor.Invoicer
	cfg      Config
	opts     options
}

func NewAccrualBiller(store tenant.Store, invoicer processor.Invoicer, cfg Config, opts ...Option) *AccrualBiller {
	return &AccrualBiller{
		store:    store,
		invoicer: invoicer,
		cfg:      cfg,
		opts:     buildOptions("billing.accrual", opts),
	}
}

// RecordMinutes records analytics, accrues round(minutes × rate × 100) cents
// and charges k whole increments when the accrual reaches k ≥ 1 of them.
func (b *AccrualBiller) RecordMinutes(ctx context.Context, ev MinutesEvent) (AccrualResult, error) {
	if strings.TrimSpace(ev.TenantID) == "" || ev.Minutes.IsNegative() || ev.RawCostUSD.IsNegative() {
		return AccrualResult{}, ErrInvalidUsage
	}
	log := b.opts.log.With(logger.TenantID(ev.TenantID))

	t, err := b.store.Get(ctx, ev.TenantID)
	if err != nil {
		return AccrualResult{}, err
	}

	if err := b.store.RecordAnalytics(ctx, t.ID, tenant.AnalyticsEntry{
		Category:   CategoryAICompute,
		RawCostUSD: ev.RawCostUSD,
		Minutes:    ev.Minutes,
	}); err != nil {
		return AccrualResult{}, err
	}

	res := AccrualResult{AccruedCents: t.AIAccruedCents}
	switch {
	case b.cfg.IsAdmin(t):
		res.Outcome = OutcomeExempt
		return res, nil
	case !t.AIDialerEnabled:
		res.Outcome = OutcomeNotEntitled
		return res, nil
	}

	cents := toCents(ev.Minutes.Mul(b.cfg.RatePerMinuteUSD))
	if cents <= 0 {
		res.Outcome = OutcomeAnalyticsOnly
		return res, nil
	}

	accrued, err := b.store.AddAccrual(ctx, t.ID, cents)
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeBilled
	res.BillableCents = cents
	res.AccruedCents = accrued
	b.opts.publish(ctx, ChangeAccrual, t.ID, fromCents(cents))

	increment := toCents(b.cfg.AccrualIncrementUSD)
	switch {
	case increment <= 0 || accrued < increment:
		res.Charge.Skipped = SkipBelowTrigger
	case !t.HasProcessorLinkage():
		res.Charge.Skipped = SkipUnlinked
		log.WarnContext(ctx, "accrual crossed the increment but tenant cannot be charged",
			logger.Cents("accrued_cents", accrued))
	default:
		res.Charge, res.AccruedCents = b.charge(ctx, log, t, increment, accrued)
	}
	return res, nil
}

// charge bills whole increments under the tenant's accrual lease. k is
// recomputed from a fresh read so two events never bill the same chunk.
func (b *AccrualBiller) charge(ctx context.Context, log *slog.Logger, t *tenant.Tenant, increment, accrued int64) (ChargeResult, int64) {
	now := b.opts.now()
	acquired, err := b.store.TryLock(ctx, t.ID, tenant.LockAccrual, now, b.cfg.lockTTL())
	if err != nil {
		return ChargeResult{Err: errors.Join(ErrThresholdChargeFailed, err)}, accrued
	}
	if !acquired {
		return ChargeResult{Skipped: SkipLocked}, accrued
	}
	defer func() {
		if err := b.store.Unlock(context.WithoutCancel(ctx), t.ID, tenant.LockAccrual, tenant.LeaseUntil(now, b.cfg.lockTTL())); err != nil {
			log.ErrorContext(ctx, "failed to release accrual lock", logger.Error(err))
		}
	}()

	fresh, err := b.store.Get(ctx, t.ID)
	if err != nil {
		return ChargeResult{Err: errors.Join(ErrThresholdChargeFailed, err)}, accrued
	}
	accrued = fresh.AIAccruedCents
	k := accrued / increment
	if k < 1 {
		return ChargeResult{Skipped: SkipNotNeeded}, accrued
	}

	amount := k * increment
	out := ChargeResult{Attempted: true, AmountCents: amount}

	inv, err := processor.Charge(ctx, b.invoicer, processor.ChargeRequest{
		CustomerRef:    fresh.CustomerRef,
		AmountCents:    amount,
		Currency:       b.cfg.currency(),
		Description:    "AI dialer minutes",
		IdempotencyKey: "accrual-" + uuid.NewString(),
		Metadata:       map[string]string{"tenant_id": t.ID, "kind": "ai_accrual"},
	})
	if err != nil {
		out.Err = errors.Join(ErrThresholdChargeFailed, err)
		log.WarnContext(ctx, "accrual charge failed, accrual kept for the next event",
			logger.Cents("amount_cents", amount),
			logger.Cents("accrued_cents", accrued),
			logger.Error(err))
		return out, accrued
	}
	out.InvoiceID = inv.ID
	out.Charged = true

	remaining, err := b.store.SettleAccrual(ctx, t.ID, amount, b.opts.now())
	if err != nil {
		out.Err = errors.Join(ErrThresholdChargeFailed, err)
		log.ErrorContext(ctx, "accrual charged but settlement failed",
			slog.String("invoice_id", inv.ID),
			logger.Cents("amount_cents", amount),
			logger.Error(err))
		return out, accrued
	}

	log.InfoContext(ctx, "accrual charged",
		slog.String("invoice_id", inv.ID),
		logger.Cents("amount_cents", amount),
		logger.Cents("remaining_cents", remaining))
	b.opts.publish(ctx, ChangeAccrualCharged, t.ID, fromCents(amount))
	return out, remaining
}
