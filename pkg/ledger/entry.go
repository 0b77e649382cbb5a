package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/dispatch"
)

// Source tells which subsystem produced an entry.
type Source string

const (
	SourceBilling  Source = "billing"
	SourceDispatch Source = "dispatch"
)

// Entry is one ledger line. Billing entries carry TenantID and AmountUSD,
// dispatch entries carry ActionID and Flag.
type Entry struct {
	ID        string          `json:"id"`
	Source    Source          `json:"source"`
	Kind      string          `json:"kind"`
	TenantID  string          `json:"tenant_id,omitempty"`
	ActionID  string          `json:"action_id,omitempty"`
	Flag      string          `json:"flag,omitempty"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	At        time.Time       `json:"at"`
}

// FromBilling converts a billing change.
func FromBilling(c billing.Change) Entry {
	e := Entry{
		Source:    SourceBilling,
		Kind:      string(c.Kind),
		TenantID:  c.TenantID,
		AmountUSD: c.AmountUSD,
		At:        c.At.UTC(),
	}
	e.ID = e.hash()
	return e
}

// FromDispatch converts a dispatch change. The outcome becomes the kind.
func FromDispatch(c dispatch.Change) Entry {
	e := Entry{
		Source:   SourceDispatch,
		Kind:     string(c.Outcome),
		ActionID: c.ActionID,
		Flag:     string(c.Flag),
		At:       c.At.UTC(),
	}
	e.ID = e.hash()
	return e
}

func (e Entry) hash() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		e.Source,
		e.Kind,
		e.TenantID,
		e.ActionID,
		e.Flag,
		e.AmountUSD.String(),
		e.At.UnixNano(),
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
