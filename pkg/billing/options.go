package billing

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/dialbill/pkg/broadcast"
	"github.com/dmitrymomot/dialbill/pkg/logger"
)

type options struct {
	log     *slog.Logger
	changes broadcast.Broadcaster[Change]
	now     func() time.Time
}

// Option configures a Meter, AccrualBiller or OneTimeGuard.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithChanges publishes a Change after every balance, accrual or fee mutation.
func WithChanges(b broadcast.Broadcaster[Change]) Option {
	return func(o *options) { o.changes = b }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With(logger.Component(component))
	return o
}
