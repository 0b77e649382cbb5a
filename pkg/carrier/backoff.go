package carrier

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before retry attempt n (n starts at 1).
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay per attempt with optional jitter.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := e.InitialInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	limit := e.MaxInterval
	if limit <= 0 {
		limit = 10 * time.Second
	}

	interval := float64(initial) * math.Pow(2, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	return min(time.Duration(interval), limit)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoff is used by NewTwilio unless overridden.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		JitterFactor:    0.1,
	}
}
