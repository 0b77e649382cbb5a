package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config is a token bucket: Capacity tokens at most, RefillRate tokens
// added every RefillInterval.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"30"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"2s"`
	// Backend is memory or redis.
	Backend string `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Result of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the next tokens are added.
	ResetAt time.Time
}

// RetryAfter is how long a denied caller should wait; 0 when allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state. Take consumes n tokens only when that many are
// available; a denied call leaves the bucket untouched.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config, now time.Time) (Result, error)
	Reset(ctx context.Context, key string) error
}

// Bucket is a token bucket limiter over a Store.
type Bucket struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBucket(store Store, cfg Config, opts ...Option) (*Bucket, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Bucket{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if key == "" {
		return Result{}, ErrKeyRequired
	}
	if n <= 0 {
		return Result{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	return b.store.Take(ctx, key, n, b.cfg, b.now())
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}

// refill advances a bucket to now in whole intervals, so partial intervals
// are never lost to drift.
func refill(tokens int, last, now time.Time, cfg Config) (int, time.Time) {
	if now.Before(last) {
		return tokens, last
	}
	intervals := int64(now.Sub(last) / cfg.RefillInterval)
	if intervals <= 0 {
		return tokens, last
	}
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	added := int(min(intervals, maxIntervals)) * cfg.RefillRate
	return min(tokens+added, cfg.Capacity), last.Add(time.Duration(intervals) * cfg.RefillInterval)
}
