package billing

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/environment"
	"github.com/dmitrymomot/dialbill/pkg/tenant"
)

// Config is parsed once at startup and passed by value to every biller.
type Config struct {
	Env        environment.Environment `env:"APP_ENV" envDefault:"development"`
	StrictFlag bool                    `env:"BILLING_STRICT"`

	RatePerMinuteUSD    decimal.Decimal `env:"AI_RATE_PER_MINUTE_USD" envDefault:"0.15"`
	AccrualIncrementUSD decimal.Decimal `env:"AI_TOPUP_INCREMENT_USD" envDefault:"20"`

	TopUpIncrementUSD    decimal.Decimal `env:"USAGE_TOPUP_INCREMENT_USD" envDefault:"10"`
	MarkupPercent        string          `env:"USAGE_MARKUP_PERCENT"`
	FreezeThresholdUSD   decimal.Decimal `env:"USAGE_FREEZE_THRESHOLD_USD" envDefault:"-20"`
	LowBalanceTriggerUSD decimal.Decimal `env:"USAGE_LOW_BALANCE_TRIGGER_USD" envDefault:"1"`
	SelfBilledCategories []string        `env:"USAGE_SELF_BILLED_CATEGORIES" envSeparator:","`

	AdminAllowList []string `env:"BILLING_ADMIN_ALLOW_LIST" envSeparator:","`
	DevSkipBilling bool     `env:"DEV_SKIP_BILLING"`

	Currency      string          `env:"BILLING_CURRENCY" envDefault:"usd"`
	LockTTL       time.Duration   `env:"BILLING_LOCK_TTL" envDefault:"2m"`
	OneTimeFeeUSD decimal.Decimal `env:"A2P_APPROVAL_FEE_USD" envDefault:"15"`
}

// DefaultConfig returns the same values the env defaults produce.
func DefaultConfig() Config {
	return Config{
		Env:                  environment.Development,
		RatePerMinuteUSD:     decimal.RequireFromString("0.15"),
		AccrualIncrementUSD:  decimal.NewFromInt(20),
		TopUpIncrementUSD:    decimal.NewFromInt(10),
		FreezeThresholdUSD:   decimal.NewFromInt(-20),
		LowBalanceTriggerUSD: decimal.NewFromInt(1),
		Currency:             "usd",
		LockTTL:              2 * time.Minute,
		OneTimeFeeUSD:        decimal.NewFromInt(15),
	}
}

// Strict reports whether billing failures must surface: production always
// runs strict, other environments only with BILLING_STRICT.
func (c Config) Strict() bool {
	return c.StrictFlag || c.Env.IsProduction()
}

// SkipCharges reports whether charges should be logged instead of made.
// Ignored in strict mode.
func (c Config) SkipCharges() bool {
	return c.DevSkipBilling && !c.Strict()
}

// MarkupFactor is 1 + percent/100. An unset, unparsable or negative percent
// means no markup.
func (c Config) MarkupFactor() decimal.Decimal {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c.MarkupPercent), "%"))
	if raw == "" {
		return decimal.NewFromInt(1)
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil || pct.IsNegative() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
}

// IsSelfBilledCategory reports whether category is paid directly by the
// tenant's own carrier account.
func (c Config) IsSelfBilledCategory(category string) bool {
	return slices.ContainsFunc(c.SelfBilledCategories, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), category)
	})
}

// IsAdmin reports whether the tenant is exempt from billing, either by its
// own flag or through the allow list (matched on id or email).
func (c Config) IsAdmin(t *tenant.Tenant) bool {
	if t.IsAdmin {
		return true
	}
	for _, id := range t.Identities() {
		for _, allowed := range c.AdminAllowList {
			if strings.EqualFold(strings.TrimSpace(allowed), id) {
				return true
			}
		}
	}
	return false
}

func (c Config) currency() string {
	if c.Currency == "" {
		return "usd"
	}
	return strings.ToLower(c.Currency)
}

func (c Config) lockTTL() time.Duration {
	if c.LockTTL <= 0 {
		return 2 * time.Minute
	}
	return c.LockTTL
}

func toCents(usd decimal.Decimal) int64 {
	return usd.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
