// Package ratelimiter is a token bucket limiter with an in-process store and
// a Redis store for deployments that run more than one instance.
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), cfg)
//	res, err := bucket.Allow(ctx, "webhook:"+ip)
//	if !res.Allowed { ... res.RetryAfter(time.Now()) ... }
package ratelimiter
