package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/broadcast"
)

// ChangeKind names what changed on a tenant's billing state.
type ChangeKind string

const (
	ChangeBalance        ChangeKind = "balance"
	ChangeTopUp          ChangeKind = "topup"
	ChangeAccrual        ChangeKind = "accrual"
	ChangeAccrualCharged ChangeKind = "accrual_charged"
	ChangeOneTimeCharged ChangeKind = "onetime_charged"
)

// Change is published after a billing mutation. Subscribers only learn that
// something changed; they re-read the tenant for the authoritative state.
type Change struct {
	Kind     ChangeKind
	TenantID string
	// AmountUSD is the delta for balance changes and the charged amount for
	// charges.
	AmountUSD decimal.Decimal
	At        time.Time
}

func (o options) publish(ctx context.Context, kind ChangeKind, tenantID string, amount decimal.Decimal) {
	broadcast.Publish(ctx, o.changes, Change{
		Kind:      kind,
		TenantID:  tenantID,
		AmountUSD: amount,
		At:        o.now().UTC(),
	})
}
