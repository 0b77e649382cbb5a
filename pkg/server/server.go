package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/httpserver"
	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/reminder"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// Config holds the HTTP surface settings.
type Config struct {
	CronSecret string `env:"CRON_SECRET"`
	// PublicURL is the scheme and host the carrier uses to reach callbacks.
	PublicURL string `env:"PUBLIC_URL"`
	// CarrierAuthToken signs inbound carrier callbacks.
	CarrierAuthToken string `env:"PLATFORM_AUTH_TOKEN"`
	// Strict closes unauthenticated endpoints. Set from billing.Config.Strict.
	Strict bool
}

// ReminderTicker runs one reminder pass. *reminder.Runner satisfies it.
type ReminderTicker interface {
	Tick(ctx context.Context, now time.Time) (reminder.Report, error)
}

// ComplianceStore is the part of tenant.Store the callback writes to.
type ComplianceStore interface {
	SetCompliance(ctx context.Context, id string, status tenant.ComplianceStatus) (tenant.ComplianceStatus, error)
}

// FeeCharger is satisfied by *billing.OneTimeGuard.
type FeeCharger interface {
	ChargeOnceIfEligible(ctx context.Context, tenantID string) (billing.OneTimeResult, error)
}

// ApprovalNotifier is satisfied by *email.ApprovalNotifier.
type ApprovalNotifier interface {
	NotifyApproval(ctx context.Context, tenantID string) (bool, error)
}

// Server wires the engine's operations to HTTP routes.
type Server struct {
	cfg       Config
	reminders ReminderTicker
	tenants   ComplianceStore
	fees      FeeCharger
	usage     UsageRecorder
	minutes   MinutesRecorder
	notifier  ApprovalNotifier
	limiter   RateLimiter
	checks    []httpserver.Check
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithReadinessChecks adds probes to /health/ready.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithUsage enables POST /internal/usage.
func WithUsage(u UsageRecorder) Option {
	return func(s *Server) { s.usage = u }
}

// WithMinutes enables POST /internal/ai-minutes.
func WithMinutes(m MinutesRecorder) Option {
	return func(s *Server) { s.minutes = m }
}

// WithApprovalNotifier emails the tenant when messaging is approved.
func WithApprovalNotifier(n ApprovalNotifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithClock overrides the time passed to Tick.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, reminders ReminderTicker, tenants ComplianceStore, fees FeeCharger, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		reminders: reminders,
		tenants:   tenants,
		fees:      fees,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("server"))
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, s.recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(s.log, s.checks...))

	r.Route("/cron", func(r chi.Router) {
		r.Use(s.cronAuth)
		r.Get("/reminders", s.runReminders)
		r.Post("/reminders", s.runReminders)
	})

	if s.usage != nil || s.minutes != nil {
		r.Route("/internal", func(r chi.Router) {
			r.Use(s.cronAuth)
			if s.usage != nil {
				r.Post("/usage", s.recordUsage)
			}
			if s.minutes != nil {
				r.Post("/ai-minutes", s.recordMinutes)
			}
		})
	}

	r.With(s.rateLimit).Post("/webhooks/compliance", s.complianceCallback)
	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
