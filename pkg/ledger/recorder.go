package ledger

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/broadcast"
	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// EntryWriter accepts single entries. *AsyncWriter implements it.
type EntryWriter interface {
	Write(ctx context.Context, e Entry) error
}

// Recorder turns change broadcasts into ledger entries.
type Recorder struct {
	w   EntryWriter
	log *slog.Logger
}

func NewRecorder(w EntryWriter, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{w: w, log: log.With(logger.Component("ledger"))}
}

// Run consumes both subscriptions until ctx is done. Either subscriber may
// be nil. Write failures are logged and never stop consumption.
func (r *Recorder) Run(ctx context.Context, billingSub broadcast.Subscriber[billing.Change], dispatchSub broadcast.Subscriber[dispatch.Change]) error {
	g, gctx := errgroup.WithContext(ctx)
	if billingSub != nil {
		g.Go(func() error {
			broadcast.Consume(gctx, billingSub, func(c billing.Change) {
				r.record(gctx, FromBilling(c))
			})
			return nil
		})
	}
	if dispatchSub != nil {
		g.Go(func() error {
			broadcast.Consume(gctx, dispatchSub, func(c dispatch.Change) {
				r.record(gctx, FromDispatch(c))
			})
			return nil
		})
	}
	return g.Wait()
}

func (r *Recorder) record(ctx context.Context, e Entry) {
	if err := r.w.Write(ctx, e); err != nil {
		r.log.WarnContext(ctx, "ledger entry not recorded",
			logger.Error(err),
			slog.String("source", string(e.Source)),
			slog.String("kind", e.Kind),
		)
	}
}
