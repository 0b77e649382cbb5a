package processor

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// CollectionChargeAutomatically charges the customer's saved payment method
// as soon as the invoice is finalized.
const CollectionChargeAutomatically = "charge_automatically"

// Invoice is a finalized charge.
type Invoice struct {
	ID          string
	CustomerRef string
	AmountCents int64
	Currency    string
	Status      string
}

// InvoiceParams controls invoice creation.
type InvoiceParams struct {
	CollectionMode string
	AutoAdvance    bool
	// ItemIDs limits the invoice to these staged items. Empty means every
	// item staged for the customer.
	ItemIDs []string
	// IdempotencyKey lets the processor collapse retries of the same charge.
	IdempotencyKey string
	// Metadata is attached to the invoice for reconciliation.
	Metadata map[string]string
}

// Invoicer stages invoice items for a customer and bills them as one invoice.
type Invoicer interface {
	CreateInvoiceItem(ctx context.Context, customerRef string, amountCents int64, currency, description string) (string, error)
	CreateInvoice(ctx context.Context, customerRef string, params InvoiceParams) (*Invoice, error)
}

// CustomerMetadata reads and merges string metadata on the processor's
// customer record.
type CustomerMetadata interface {
	GetCustomerMetadata(ctx context.Context, customerRef string) (map[string]string, error)
	UpdateCustomerMetadata(ctx context.Context, customerRef string, kv map[string]string) error
}

// MetadataCAS is implemented by processors that can set a metadata key only
// when its current value matches expected, in one round trip.
type MetadataCAS interface {
	CompareAndSetMetadata(ctx context.Context, customerRef, key, expected, value string) (bool, error)
}

// ConnectedAccountParams describes a payout account to create.
type ConnectedAccountParams struct {
	Email   string
	Country string
}

// Payouts moves money to connected accounts.
type Payouts interface {
	CreateConnectedAccount(ctx context.Context, params ConnectedAccountParams) (string, error)
	CreateAccountOnboardingLink(ctx context.Context, accountRef, returnURL, refreshURL string) (string, error)
	CreateTransfer(ctx context.Context, amountCents int64, destinationAccountRef, idempotencyKey string) (string, error)
}

// ChargeRequest is a single immediate charge.
type ChargeRequest struct {
	CustomerRef    string
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// takeItems removes and returns the staged items named by ids, or all of the
// customer's staged items when ids is empty. Items of concurrent charges for
// the same customer stay staged.
func takeItems(pending map[string][]pendingItem, customerRef string, ids []string) []pendingItem {
	staged := pending[customerRef]
	if len(ids) == 0 {
		delete(pending, customerRef)
		return staged
	}

	var taken, kept []pendingItem
	for _, it := range staged {
		if slices.Contains(ids, it.id) {
			taken = append(taken, it)
		} else {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		delete(pending, customerRef)
	} else {
		pending[customerRef] = kept
	}
	return taken
}

// Charge creates one invoice item and an automatically collected invoice for
// it. Any failure is joined with ErrChargeFailed.
func Charge(ctx context.Context, inv Invoicer, req ChargeRequest) (*Invoice, error) {
	if strings.TrimSpace(req.CustomerRef) == "" {
		return nil, errors.Join(ErrChargeFailed, ErrMissingCustomer)
	}
	if req.AmountCents <= 0 {
		return nil, errors.Join(ErrChargeFailed, ErrInvalidAmount)
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	itemID, err := inv.CreateInvoiceItem(ctx, req.CustomerRef, req.AmountCents, req.Currency, req.Description)
	if err != nil {
		return nil, errors.Join(ErrChargeFailed, err)
	}

	invoice, err := inv.CreateInvoice(ctx, req.CustomerRef, InvoiceParams{
		CollectionMode: CollectionChargeAutomatically,
		AutoAdvance:    true,
		ItemIDs:        []string{itemID},
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, errors.Join(ErrChargeFailed, err)
	}
	return invoice, nil
}
