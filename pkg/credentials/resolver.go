package credentials

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/dialbill/pkg/logger"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// Mode is the isolation mode a dispatch runs under.
type Mode string

const (
	// ModePersonal runs on the tenant's own carrier account, billed to the tenant directly.
	ModePersonal Mode = "personal"
	// ModeIsolatedPlatform runs on a per-tenant sub-account billed to the platform.
	ModeIsolatedPlatform Mode = "isolated-platform"
	// ModeSharedPlatform runs on the platform-wide account.
	ModeSharedPlatform Mode = "shared-platform"
)

// SelfBilled reports whether the carrier bills the tenant directly, so the
// platform must not bill the same traffic again.
func (m Mode) SelfBilled() bool { return m == ModePersonal }

// Handle is what a carrier client authenticates with. Username is a key sid
// or, for classic auth, the account sid itself.
type Handle struct {
	AccountSID string
	Username   string
	Password   string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Handle Handle
	// AccountRef is the carrier account traffic is attributed to.
	AccountRef string
	Mode       Mode

	MessagingServiceSID string
	FromNumber          string
}

// Platform holds the process-wide shared credentials.
type Platform struct {
	AccountSID   string `env:"PLATFORM_ACCOUNT_SID"`
	AuthToken    string `env:"PLATFORM_AUTH_TOKEN"`
	APIKeySID    string `env:"PLATFORM_API_KEY_SID"`
	APIKeySecret string `env:"PLATFORM_API_KEY_SECRET"`
}

// Config is injected once at construction.
type Config struct {
	Platform    Platform
	ForceShared bool `env:"FORCE_SHARED_CREDENTIALS"`
}

// TenantSource loads tenant records. tenant.Store satisfies it.
type TenantSource interface {
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Decrypter opens secrets stored encrypted. *secrets.Box satisfies it.
type Decrypter interface {
	Decrypt(tenantID, ciphertext string) (string, error)
}

// Resolver picks the credential set a tenant's carrier traffic must use.
type Resolver struct {
	tenants   TenantSource
	cfg       Config
	decrypter Decrypter
	log       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDecrypter enables encrypted secret storage. Without it an encrypted
// credential set fails resolution.
func WithDecrypter(d Decrypter) Option {
	return func(r *Resolver) { r.decrypter = d }
}

func NewResolver(tenants TenantSource, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{
		tenants: tenants,
		cfg:     cfg,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("credentials"))
	return r
}

// Resolve returns the credentials for tenantID. Selection order: personal
// credentials for self-billed tenants unless the shared override is set, then
// a per-tenant set under platform billing, then the shared platform account.
// Malformed tenant material is an error; it never falls through to shared.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Resolution, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, tenant.ErrInvalidIdentifier
	}

	t, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res, err := r.resolve(t)
	if err != nil {
		r.log.WarnContext(ctx, "credential resolution failed",
			logger.TenantID(t.ID),
			slog.String("billing_mode", string(t.BillingMode)),
			logger.Error(err))
		return nil, err
	}
	res.MessagingServiceSID = t.MessagingServiceSID
	res.FromNumber = t.FromNumber

	r.log.DebugContext(ctx, "credentials resolved",
		logger.TenantID(t.ID),
		slog.String("mode", string(res.Mode)),
		logger.Masked("account_sid", res.AccountRef),
		logger.Masked("username", res.Handle.Username))
	return res, nil
}

// resolve applies the selection order. The shared override only bypasses
// personal credentials: platform-billed tenants keep their sub-account.
func (r *Resolver) resolve(t *tenant.Tenant) (*Resolution, error) {
	if t.BillingMode == tenant.BillingModeSelf {
		if r.cfg.ForceShared {
			return r.shared()
		}
		if t.Personal.IsEmpty() {
			return nil, invalid(ErrNoPersonalCredentials)
		}
		h, err := r.open(t.ID, t.Personal)
		if err != nil {
			return nil, err
		}
		return &Resolution{Handle: h, AccountRef: h.AccountSID, Mode: ModePersonal}, nil
	}

	// Older tenants kept their sub-account material in the personal fields.
	set := t.SubAccount
	if set.IsEmpty() {
		set = t.Personal
	}
	if !set.IsEmpty() {
		h, err := r.open(t.ID, set)
		if err != nil {
			return nil, err
		}
		return &Resolution{Handle: h, AccountRef: h.AccountSID, Mode: ModeIsolatedPlatform}, nil
	}

	return r.shared()
}

func (r *Resolver) open(tenantID string, c *tenant.Credentials) (Handle, error) {
	secret := c.KeySecret
	if c.Encrypted && strings.TrimSpace(secret) != "" {
		if r.decrypter == nil {
			return Handle{}, invalid(ErrDecryptSecret)
		}
		plain, err := r.decrypter.Decrypt(tenantID, secret)
		if err != nil {
			return Handle{}, invalid(ErrDecryptSecret, err)
		}
		secret = plain
	}
	return validate(c.AccountSID, c.KeySID, secret)
}

// shared prefers the classic account sid and auth token pair over a scoped
// API key when both are configured.
func (r *Resolver) shared() (*Resolution, error) {
	p := r.cfg.Platform
	var (
		h   Handle
		err error
	)
	switch {
	case Sanitize(p.AccountSID) != "" && Sanitize(p.AuthToken) != "":
		h, err = validate(p.AccountSID, p.AccountSID, p.AuthToken)
	case Sanitize(p.AccountSID) != "" && Sanitize(p.APIKeySID) != "":
		h, err = validate(p.AccountSID, p.APIKeySID, p.APIKeySecret)
	default:
		return nil, invalid(ErrPlatformCredentialsMissing)
	}
	if err != nil {
		return nil, err
	}
	return &Resolution{Handle: h, AccountRef: h.AccountSID, Mode: ModeSharedPlatform}, nil
}
