package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid rate limit configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrKeyRequired       = errors.New("rate limit key is required")
	ErrStoreRequired     = errors.New("rate limit store is required")
	ErrStoreUnavailable  = errors.New("rate limit store unavailable")
)
