package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/dialbill/pkg/billing"
	"github.com/dmitrymomot/dialbill/pkg/broadcast"
	"github.com/dmitrymomot/dialbill/pkg/carrier"
	"github.com/dmitrymomot/dialbill/pkg/config"
	"github.com/dmitrymomot/dialbill/pkg/credentials"
	"github.com/dmitrymomot/dialbill/pkg/dispatch"
	"github.com/dmitrymomot/dialbill/pkg/email"
	"github.com/dmitrymomot/dialbill/pkg/environment"
	"github.com/dmitrymomot/dialbill/pkg/httpserver"
	"github.com/dmitrymomot/dialbill/pkg/ledger"
	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/mongo"
	"github.com/dmitrymomot/dialbill/pkg/opensearch"
	"github.com/dmitrymomot/dialbill/pkg/pg"
	"github.com/dmitrymomot/dialbill/pkg/processor"
	"github.com/dmitrymomot/dialbill/pkg/ratelimiter"
	"github.com/dmitrymomot/dialbill/pkg/redis"
	"github.com/dmitrymomot/dialbill/pkg/reminder"
	"github.com/dmitrymomot/dialbill/pkg/secrets"
	"github.com/dmitrymomot/dialbill/pkg/server"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

const (
	backendMemory   = "memory"
	backendMongo    = "mongo"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

type appConfig struct {
	Env          environment.Environment `env:"APP_ENV" envDefault:"development"`
	StoreBackend string                  `env:"STORE_BACKEND" envDefault:"memory"`
	// ClaimBackend defaults to the store backend.
	ClaimBackend      string `env:"CLAIM_BACKEND"`
	CredentialsAppKey string `env:"CREDENTIALS_APP_KEY"`
	ChangeBufferSize  int    `env:"CHANGE_BUFFER_SIZE" envDefault:"64"`

	CircuitFailures int           `env:"CARRIER_CIRCUIT_FAILURES" envDefault:"5"`
	CircuitRecovery time.Duration `env:"CARRIER_CIRCUIT_RECOVERY" envDefault:"30s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app appConfig
	config.MustLoad(&app)

	log := logger.New(
		logger.WithEnvironment(app.Env, "dialbill"),
		logger.WithContextExtractors(server.RequestIDExtractor()),
	)
	slog.SetDefault(log)

	if err := run(ctx, stop, app, log); err != nil {
		log.Error("dialbill stopped", logger.Error(err))
		os.Exit(1)
	}
}

type stores struct {
	tenants tenant.Store
	actions dispatch.ActionStore
	claimer dispatch.Claimer
	checks  []httpserver.Check
	closers []func(context.Context) error
	// redis is set when a backend already opened a client.
	redis goredis.UniversalClient
}

func run(ctx context.Context, stop context.CancelFunc, app appConfig, log *slog.Logger) error {
	var (
		billingCfg  billing.Config
		credCfg     credentials.Config
		reminderCfg = reminder.DefaultConfig()
		serverCfg   server.Config
		httpCfg     httpserver.Config
		twilioCfg   carrier.TwilioConfig
		paddleCfg   processor.PaddleConfig
		emailCfg    email.Config
	)
	config.MustLoad(&billingCfg)
	config.MustLoad(&credCfg)
	config.MustLoad(&reminderCfg)
	config.MustLoad(&serverCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&twilioCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&emailCfg)
	serverCfg.Strict = billingCfg.Strict()

	st, err := openStores(ctx, app, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		for _, closeFn := range st.closers {
			if err := closeFn(closeCtx); err != nil {
				log.Warn("close backend", logger.Error(err))
			}
		}
	}()

	invoicer, metadata, err := newProcessor(paddleCfg, billingCfg, log)
	if err != nil {
		return err
	}

	billingChanges := broadcast.NewMemoryBroadcaster[billing.Change](app.ChangeBufferSize)
	dispatchChanges := broadcast.NewMemoryBroadcaster[dispatch.Change](app.ChangeBufferSize)
	defer billingChanges.Close()
	defer dispatchChanges.Close()

	billingOpts := []billing.Option{billing.WithLogger(log), billing.WithChanges(billingChanges)}
	meter := billing.NewMeter(st.tenants, invoicer, billingCfg, billingOpts...)
	accrual := billing.NewAccrualBiller(st.tenants, invoicer, billingCfg, billingOpts...)
	fees := billing.NewOneTimeGuard(st.tenants, invoicer, metadata, billingCfg, billingOpts...)

	resolverOpts := []credentials.Option{credentials.WithLogger(log)}
	if app.CredentialsAppKey != "" {
		box, err := secrets.NewBoxFromBase64(app.CredentialsAppKey)
		if err != nil {
			return fmt.Errorf("credentials app key: %w", err)
		}
		resolverOpts = append(resolverOpts, credentials.WithDecrypter(box))
	} else if billingCfg.Strict() {
		return errors.New("CREDENTIALS_APP_KEY is required in strict mode")
	}
	resolver := credentials.NewResolver(st.tenants, credCfg, resolverOpts...)

	sender, err := carrier.NewTwilio(twilioCfg,
		carrier.WithLogger(log),
		carrier.WithCircuitBreaker(carrier.NewCircuitBreaker(app.CircuitFailures, 2, app.CircuitRecovery)),
	)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(st.claimer,
		dispatch.WithLogger(log),
		dispatch.WithChanges(dispatchChanges),
	)
	reminderOpts := []reminder.Option{reminder.WithLogger(log)}
	if reminderCfg.TemplatesFile != "" {
		body, err := reminder.LoadTemplates(reminderCfg.TemplatesFile)
		if err != nil {
			return err
		}
		reminderOpts = append(reminderOpts, reminder.WithBody(body))
	}
	runner := reminder.NewRunner(st.actions, dispatcher, resolver, sender, meter, reminderCfg, reminderOpts...)

	mailer, err := newMailer(emailCfg, billingCfg, log)
	if err != nil {
		return err
	}
	notifier := email.NewApprovalNotifier(st.tenants, mailer, emailCfg, email.WithLogger(log))

	trail, checks, err := newLedger(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := trail.Close(closeCtx); err != nil {
			log.Warn("flush ledger", logger.Error(err))
		}
	}()
	st.checks = append(st.checks, checks...)

	limiter, err := newRateLimiter(ctx, st)
	if err != nil {
		return err
	}

	api := server.New(serverCfg, runner, st.tenants, fees,
		server.WithLogger(log),
		server.WithRateLimiter(limiter),
		server.WithApprovalNotifier(notifier),
		server.WithUsage(meter),
		server.WithMinutes(accrual),
		server.WithReadinessChecks(st.checks...),
	)

	log.InfoContext(ctx, "starting dialbill",
		slog.String("store", app.StoreBackend),
		slog.String("claims", claimBackend(app)),
		slog.Bool("strict", billingCfg.Strict()),
		slog.Bool("skip_charges", billingCfg.SkipCharges()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ledger.NewRecorder(trail, log).Run(gctx,
			billingChanges.Subscribe(gctx),
			dispatchChanges.Subscribe(gctx))
	})
	g.Go(func() error {
		defer stop()
		return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(gctx, api.Handler())
	})
	return g.Wait()
}

func claimBackend(app appConfig) string {
	if b := strings.ToLower(strings.TrimSpace(app.ClaimBackend)); b != "" {
		return b
	}
	return strings.ToLower(strings.TrimSpace(app.StoreBackend))
}

func openStores(ctx context.Context, app appConfig, log *slog.Logger) (*stores, error) {
	st := &stores{}

	switch backend := strings.ToLower(strings.TrimSpace(app.StoreBackend)); backend {
	case backendMongo:
		var mongoCfg mongo.Config
		config.MustLoad(&mongoCfg)

		client, err := mongo.New(ctx, mongoCfg)
		if err != nil {
			return nil, err
		}
		db := client.Database(mongoCfg.Database)
		actions := dispatch.NewMongoStore(db, "")
		if err := actions.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}

		st.tenants = tenant.NewMongoStore(db, "")
		st.actions = actions
		st.claimer = actions
		st.checks = append(st.checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})
		st.closers = append(st.closers, client.Disconnect)
	case backendPostgres:
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)

		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		actions := dispatch.NewPostgresStore(pool)

		st.tenants = tenant.NewPostgresStore(pool)
		st.actions = actions
		st.claimer = actions
		st.checks = append(st.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
		st.closers = append(st.closers, func(context.Context) error { pool.Close(); return nil })
	case backendMemory:
		if app.Env.IsProduction() {
			return nil, errors.New("memory store backend is not allowed in production")
		}
		log.Warn("using in-memory stores; data is lost on restart")
		actions := dispatch.NewMemoryStore()
		st.tenants = tenant.NewMemoryStore()
		st.actions = actions
		st.claimer = actions
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}

	switch backend := claimBackend(app); backend {
	case backendRedis:
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)

		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			for _, closeFn := range st.closers {
				_ = closeFn(context.WithoutCancel(ctx))
			}
			return nil, err
		}
		st.claimer = dispatch.NewRedisClaimer(client)
		st.redis = client
		st.checks = append(st.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		st.closers = append(st.closers, func(context.Context) error { return client.Close() })
	case backendMongo, backendPostgres, backendMemory:
		if backend != strings.ToLower(strings.TrimSpace(app.StoreBackend)) {
			return nil, fmt.Errorf("CLAIM_BACKEND %q requires STORE_BACKEND %q", backend, backend)
		}
	default:
		return nil, fmt.Errorf("unknown CLAIM_BACKEND %q", backend)
	}

	return st, nil
}

// newProcessor picks Paddle when an API key is configured and the in-memory
// processor otherwise. Charges go through the dry-run invoicer when skipped.
func newProcessor(cfg processor.PaddleConfig, billingCfg billing.Config, log *slog.Logger) (processor.Invoicer, processor.CustomerMetadata, error) {
	var (
		invoicer processor.Invoicer
		metadata processor.CustomerMetadata
	)
	if cfg.APIKey != "" {
		p, err := processor.NewPaddle(cfg)
		if err != nil {
			return nil, nil, err
		}
		invoicer, metadata = p, p
	} else {
		if billingCfg.Strict() {
			return nil, nil, errors.New("PADDLE_API_KEY is required in strict mode")
		}
		log.Warn("no payment processor configured; charges are kept in memory")
		m := processor.NewMemory()
		invoicer, metadata = m, m
	}

	if billingCfg.SkipCharges() {
		invoicer = processor.NewDryRun(log)
	}
	return invoicer, metadata, nil
}

// newMailer sends through Postmark when a server token is configured and
// writes to the outbox directory otherwise.
func newMailer(cfg email.Config, billingCfg billing.Config, log *slog.Logger) (email.Sender, error) {
	if cfg.PostmarkServerToken != "" {
		sender, err := email.NewPostmark(cfg)
		if err != nil {
			return nil, err
		}
		return sender, nil
	}
	if billingCfg.Strict() {
		return nil, errors.New("POSTMARK_SERVER_TOKEN is required in strict mode")
	}
	log.Warn("no email provider configured; writing email to the outbox directory",
		slog.String("dir", cfg.OutboxDir))
	return email.NewOutbox(cfg.OutboxDir), nil
}

// newLedger indexes the billing trail into OpenSearch and archives it to S3
// when those are configured, and logs it otherwise.
func newLedger(ctx context.Context, log *slog.Logger) (*ledger.AsyncWriter, []httpserver.Check, error) {
	var (
		searchCfg  opensearch.Config
		archiveCfg ledger.S3Config
		ledgerCfg  ledger.Config
	)
	config.MustLoad(&searchCfg)
	config.MustLoad(&archiveCfg)
	config.MustLoad(&ledgerCfg)

	var (
		writers ledger.MultiWriter
		checks  []httpserver.Check
	)
	if searchCfg.Enabled() {
		client, err := opensearch.New(ctx, searchCfg)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, ledger.NewOpenSearchWriter(client, ledgerCfg.IndexPrefix))
		checks = append(checks, httpserver.Check{Name: "opensearch", Fn: opensearch.Healthcheck(client)})
	}
	if archiveCfg.Enabled() {
		archive, err := ledger.NewS3Writer(ctx, archiveCfg)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, archive)
	}

	var bw ledger.BatchWriter = writers
	switch len(writers) {
	case 0:
		bw = ledger.NewLogWriter(log)
	case 1:
		bw = writers[0]
	}

	w, err := ledger.NewAsyncWriter(bw, ledgerCfg.AsyncOptions, log)
	if err != nil {
		return nil, nil, err
	}
	return w, checks, nil
}

// newRateLimiter builds the webhook limiter. The redis backend reuses the
// claim client when there is one.
func newRateLimiter(ctx context.Context, st *stores) (*ratelimiter.Bucket, error) {
	var cfg ratelimiter.Config
	config.MustLoad(&cfg)

	var store ratelimiter.Store
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case backendRedis:
		client := st.redis
		if client == nil {
			var redisCfg redis.Config
			config.MustLoad(&redisCfg)
			c, err := redis.Connect(ctx, redisCfg)
			if err != nil {
				return nil, err
			}
			st.closers = append(st.closers, func(context.Context) error { return c.Close() })
			client = c
		}
		store = ratelimiter.NewRedisStore(client, "")
	case backendMemory:
		ms := ratelimiter.NewMemoryStore()
		st.closers = append(st.closers, func(context.Context) error { return ms.Close() })
		store = ms
	default:
		return nil, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", backend)
	}
	return ratelimiter.NewBucket(store, cfg)
}
