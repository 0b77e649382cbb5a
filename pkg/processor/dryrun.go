package processor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// DryRun is an Invoicer that logs charges instead of making them. It backs
// DEV_SKIP_BILLING outside strict mode.
type DryRun struct {
	log *slog.Logger
}

var _ Invoicer = (*DryRun)(nil)

func NewDryRun(log *slog.Logger) *DryRun {
	if log == nil {
		log = slog.Default()
	}
	return &DryRun{log: log.With(logger.Component("processor.dryrun"))}
}

func (d *DryRun) CreateInvoiceItem(ctx context.Context, customerRef string, amountCents int64, currency, description string) (string, error) {
	d.log.InfoContext(ctx, "skipping invoice item",
		slog.String("customer_ref", customerRef),
		logger.Cents("amount_cents", amountCents),
		slog.String("description", description))
	return "dry_" + uuid.NewString(), nil
}

func (d *DryRun) CreateInvoice(ctx context.Context, customerRef string, params InvoiceParams) (*Invoice, error) {
	d.log.InfoContext(ctx, "skipping invoice",
		slog.String("customer_ref", customerRef),
		slog.String("idempotency_key", params.IdempotencyKey))
	return &Invoice{ID: "dry_" + uuid.NewString(), CustomerRef: customerRef, Status: "skipped"}, nil
}
