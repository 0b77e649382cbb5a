package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/carrier"
	"github.com/dmitrymomot/dialbill/pkg/credentials"
	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// Config is read from the environment once at startup.
type Config struct {
	Lookahead      time.Duration   `env:"REMINDER_LOOKAHEAD" envDefault:"24h"`
	MorningHour    int             `env:"REMINDER_MORNING_HOUR" envDefault:"8"`
	Concurrency    int             `env:"REMINDER_CONCURRENCY" envDefault:"4"`
	SMSUnitCostUSD decimal.Decimal `env:"SMS_UNIT_COST_USD" envDefault:"0.0079"`
	// TemplatesFile is an optional YAML file of per-flag message templates.
	TemplatesFile string `env:"REMINDER_TEMPLATES_FILE"`
}

// DefaultConfig matches the env defaults.
func DefaultConfig() Config {
	return Config{
		Lookahead:      24 * time.Hour,
		MorningHour:    8,
		Concurrency:    4,
		SMSUnitCostUSD: decimal.RequireFromString("0.0079"),
	}
}

// UsageMeter is the part of billing.Meter the runner needs.
type UsageMeter interface {
	CheckSuspended(ctx context.Context, tenantID string) error
	RecordUsage(ctx context.Context, ev billing.UsageEvent) (billing.UsageResult, error)
}

// CredentialResolver is satisfied by *credentials.Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string) (*credentials.Resolution, error)
}

// Dispatcher is satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, actionID string, flag dispatch.Flag, fn func(context.Context) error) (dispatch.Outcome, error)
}

// Report summarizes one Tick.
type Report struct {
	Scanned   int `json:"scanned"`
	Sent      int `json:"sent"`
	ClaimLost int `json:"claim_lost"`
	Failed    int `json:"failed"`
	Suspended int `json:"suspended"`
	Skipped   int `json:"skipped"`
}

// Runner sends the reminders that are due for every active scheduled action.
type Runner struct {
	actions    dispatch.ActionStore
	dispatcher Dispatcher
	resolver   CredentialResolver
	sender     carrier.Sender
	meter      UsageMeter
	cfg        Config
	body       BodyFunc
	log        *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBody replaces the message renderer.
func WithBody(fn BodyFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.body = fn
		}
	}
}

func NewRunner(
	actions dispatch.ActionStore,
	dispatcher Dispatcher,
	resolver CredentialResolver,
	sender carrier.Sender,
	meter UsageMeter,
	cfg Config,
	opts ...Option,
) *Runner {
	r := &Runner{
		actions:    actions,
		dispatcher: dispatcher,
		resolver:   resolver,
		sender:     sender,
		meter:      meter,
		cfg:        cfg,
		body:       DefaultBody,
		log:        slog.Default(),
	}
	if r.cfg.Lookahead <= 0 {
		r.cfg.Lookahead = 24 * time.Hour
	}
	if r.cfg.Concurrency <= 0 {
		r.cfg.Concurrency = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("reminder"))
	return r
}

// Tick sends every reminder due at now. Per-action failures are counted in
// the report and logged; only a failure to list actions is returned.
func (r *Runner) Tick(ctx context.Context, now time.Time) (Report, error) {
	actions, err := r.actions.ListActive(ctx, now, now.Add(r.cfg.Lookahead))
	if err != nil {
		return Report{}, fmt.Errorf("list scheduled actions: %w", err)
	}

	var (
		mu     sync.Mutex
		report = Report{Scanned: len(actions)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, a := range actions {
		g.Go(func() error {
			part := r.process(gctx, a, now)
			mu.Lock()
			report.add(part)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.InfoContext(ctx, "reminder tick finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("sent", report.Sent),
		slog.Int("claim_lost", report.ClaimLost),
		slog.Int("failed", report.Failed),
		slog.Int("suspended", report.Suspended),
		slog.Int("skipped", report.Skipped))
	return report, nil
}

func (r *Runner) process(ctx context.Context, a *dispatch.Action, now time.Time) Report {
	var rep Report
	flags := DueFlags(a, now, r.cfg.MorningHour)
	if len(flags) == 0 {
		return rep
	}
	log := r.log.With(logger.ActionID(a.ID), logger.TenantID(a.TenantID))

	if strings.TrimSpace(a.Recipient) == "" {
		log.WarnContext(ctx, "scheduled action has no recipient")
		rep.Skipped += len(flags)
		return rep
	}

	if err := r.meter.CheckSuspended(ctx, a.TenantID); err != nil {
		if errors.Is(err, billing.ErrUsageSuspended) {
			log.WarnContext(ctx, "tenant suspended, reminders held")
			rep.Suspended += len(flags)
		} else {
			log.ErrorContext(ctx, "failed to check tenant status", logger.Error(err))
			rep.Failed += len(flags)
		}
		return rep
	}

	for _, flag := range flags {
		if ctx.Err() != nil {
			rep.Skipped++
			continue
		}
		outcome, err := r.dispatcher.Dispatch(ctx, a.ID, flag, func(ctx context.Context) error {
			return r.send(ctx, a, flag)
		})
		switch {
		case err != nil:
			log.ErrorContext(ctx, "reminder not sent", logger.Flag(string(flag)), logger.Error(err))
			rep.Failed++
		case outcome == dispatch.OutcomeClaimLost:
			rep.ClaimLost++
		default:
			rep.Sent++
		}
	}
	return rep
}

// send runs inside the claim. Once the carrier has accepted the message the
// claim must stay, so metering failures are logged and swallowed here.
func (r *Runner) send(ctx context.Context, a *dispatch.Action, flag dispatch.Flag) error {
	res, err := r.resolver.Resolve(ctx, a.TenantID)
	if err != nil {
		return err
	}

	result, err := r.sender.SendMessage(ctx, res.Handle, carrier.FromResolution(res, a.Recipient, r.body(a, flag)))
	if err != nil {
		return err
	}

	cost := result.Price
	if !cost.IsPositive() {
		cost = r.cfg.SMSUnitCostUSD.Mul(decimal.NewFromInt(int64(max(result.Segments, 1))))
	}

	log := r.log.With(logger.ActionID(a.ID), logger.TenantID(a.TenantID), logger.Flag(string(flag)))
	usage, err := r.meter.RecordUsage(ctx, billing.UsageEvent{
		TenantID:   a.TenantID,
		Category:   billing.CategoryCarrierSMS,
		RawCostUSD: cost,
		SelfBilled: res.Mode.SelfBilled(),
	})
	if err != nil {
		log.ErrorContext(ctx, "reminder sent but usage not recorded",
			slog.String("message_sid", result.ExternalID),
			logger.Amount("raw_cost_usd", cost),
			logger.Error(err))
		return nil
	}

	log.InfoContext(ctx, "reminder sent",
		slog.String("message_sid", result.ExternalID),
		slog.String("mode", string(res.Mode)),
		slog.String("billing_outcome", string(usage.Outcome)))
	return nil
}

func (r *Report) add(o Report) {
	r.Sent += o.Sent
	r.ClaimLost += o.ClaimLost
	r.Failed += o.Failed
	r.Suspended += o.Suspended
	r.Skipped += o.Skipped
}
