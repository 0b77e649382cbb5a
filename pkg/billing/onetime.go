package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

const (
	// OneTimeMarkerKey is the processor customer metadata key that records
	// the one-time fee.
	OneTimeMarkerKey = "a2p_fee_charged"
	// OneTimeChargedAtKey records when the fee was charged.
	OneTimeChargedAtKey = "a2p_fee_charged_at"

	markerCharged = "true"
)

// OneTimeGuard charges the compliance approval fee at most once per customer.
// The marker lives on the processor's customer record, not in the tenant
// store, so it survives a local database reset.
type OneTimeGuard struct {
	store    tenant.Store
	invoicer processor.Invoicer
	metadata processor.CustomerMetadata
	cfg      Config
	opts     options
}

func NewOneTimeGuard(store tenant.Store, invoicer processor.Invoicer, metadata processor.CustomerMetadata, cfg Config, opts ...Option) *OneTimeGuard {
	return &OneTimeGuard{
		store:    store,
		invoicer: invoicer,
		metadata: metadata,
		cfg:      cfg,
		opts:     buildOptions("billing.onetime", opts),
	}
}

// ChargeOnceIfEligible charges the fee when the tenant is approved, linked,
// not an admin and not yet marked. When the processor supports metadata
// compare-and-set the marker is claimed before charging and released again
// if the charge fails; otherwise it is read before and written after.
//
// A declined charge is reported as OneTimeFailed in the result. The returned
// error is reserved for tenant store and metadata read failures.
func (g *OneTimeGuard) ChargeOnceIfEligible(ctx context.Context, tenantID string) (OneTimeResult, error) {
	t, err := g.store.Get(ctx, tenantID)
	if err != nil {
		return OneTimeResult{}, err
	}
	log := g.opts.log.With(logger.TenantID(t.ID))

	switch {
	case g.cfg.IsAdmin(t):
		return OneTimeResult{Status: OneTimeAdmin}, nil
	case !t.Compliance.Approved():
		return OneTimeResult{Status: OneTimeNotApproved}, nil
	case !t.HasProcessorLinkage():
		return OneTimeResult{Status: OneTimePendingLinkage}, nil
	}

	md, err := g.metadata.GetCustomerMetadata(ctx, t.CustomerRef)
	if err != nil {
		return OneTimeResult{}, errors.Join(ErrOneTimeChargeFailed, err)
	}
	unset := md[OneTimeMarkerKey]
	if markerSet(unset) {
		return OneTimeResult{Status: OneTimeAlreadyCharged}, nil
	}

	if cas, ok := g.metadata.(processor.MetadataCAS); ok {
		return g.chargeWithCAS(ctx, log, t, cas, unset)
	}

	res := g.charge(ctx, log, t)
	if res.Status != OneTimeCharged {
		return res, nil
	}
	if err := g.metadata.UpdateCustomerMetadata(ctx, t.CustomerRef, g.markerValues()); err != nil {
		res.Err = errors.Join(ErrOneTimeChargeFailed, err)
		log.ErrorContext(ctx, "one-time fee charged but marker not written",
			slog.String("invoice_id", res.InvoiceID),
			logger.Error(err))
	}
	return res, nil
}

// chargeWithCAS claims the marker by swapping its observed unset value
// ("", "false" and the like) for a claim token.
func (g *OneTimeGuard) chargeWithCAS(ctx context.Context, log *slog.Logger, t *tenant.Tenant, cas processor.MetadataCAS, unset string) (OneTimeResult, error) {
	token := "charging:" + uuid.NewString()
	won, err := cas.CompareAndSetMetadata(ctx, t.CustomerRef, OneTimeMarkerKey, unset, token)
	if err != nil {
		return OneTimeResult{}, errors.Join(ErrOneTimeChargeFailed, err)
	}
	if !won {
		return OneTimeResult{Status: OneTimeAlreadyCharged}, nil
	}

	res := g.charge(ctx, log, t)
	if res.Status != OneTimeCharged {
		if _, err := cas.CompareAndSetMetadata(context.WithoutCancel(ctx), t.CustomerRef, OneTimeMarkerKey, token, unset); err != nil {
			log.ErrorContext(ctx, "failed to release one-time fee marker", logger.Error(err))
		}
		return res, nil
	}

	if err := g.metadata.UpdateCustomerMetadata(ctx, t.CustomerRef, g.markerValues()); err != nil {
		// The claim token still blocks a second charge.
		log.WarnContext(ctx, "one-time fee charged, marker left as claim token", logger.Error(err))
	}
	return res, nil
}

func (g *OneTimeGuard) charge(ctx context.Context, log *slog.Logger, t *tenant.Tenant) OneTimeResult {
	amount := toCents(g.cfg.OneTimeFeeUSD)
	inv, err := processor.Charge(ctx, g.invoicer, processor.ChargeRequest{
		CustomerRef:    t.CustomerRef,
		AmountCents:    amount,
		Currency:       g.cfg.currency(),
		Description:    "Messaging registration approval fee",
		IdempotencyKey: "onetime-" + OneTimeMarkerKey + "-" + t.ID,
		Metadata:       map[string]string{"tenant_id": t.ID, "kind": "a2p_approval_fee"},
	})
	if err != nil {
		log.WarnContext(ctx, "one-time fee charge failed", logger.Cents("amount_cents", amount), logger.Error(err))
		return OneTimeResult{Status: OneTimeFailed, AmountCents: amount, Err: errors.Join(ErrOneTimeChargeFailed, err)}
	}

	log.InfoContext(ctx, "one-time fee charged",
		slog.String("invoice_id", inv.ID),
		logger.Cents("amount_cents", amount))
	g.opts.publish(ctx, ChangeOneTimeCharged, t.ID, fromCents(amount))
	return OneTimeResult{Status: OneTimeCharged, AmountCents: amount, InvoiceID: inv.ID}
}

func (g *OneTimeGuard) markerValues() map[string]string {
	return map[string]string{
		OneTimeMarkerKey:    markerCharged,
		OneTimeChargedAtKey: g.opts.now().UTC().Format(time.RFC3339),
	}
}

// markerSet treats any non-empty value other than an explicit false as set,
// including a claim token left by an interrupted charge.
func markerSet(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "no":
		return false
	default:
		return true
	}
}
