package dispatch

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClaimer keeps claims in one Redis hash per action. HSETNX makes the
// claim atomic; Revert deletes the field so the next HSETNX can win again.
// Claim hashes never expire: an expired claim could be won a second time.
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
}

var _ Claimer = (*RedisClaimer)(nil)

// RedisOption configures a RedisClaimer.
type RedisOption func(*RedisClaimer)

// WithKeyPrefix sets the hash key prefix. Defaults to "dialbill:claims:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisClaimer) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func NewRedisClaimer(client redis.UniversalClient, opts ...RedisOption) *RedisClaimer {
	c := &RedisClaimer{client: client, prefix: "dialbill:claims:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisClaimer) Claim(ctx context.Context, actionID string, flag Flag) (bool, error) {
	if !flag.Valid() {
		return false, ErrInvalidFlag
	}
	won, err := c.client.HSetNX(ctx, c.prefix+actionID, string(flag), "1").Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", flag, err)
	}
	return won, nil
}

func (c *RedisClaimer) Revert(ctx context.Context, actionID string, flag Flag) error {
	if !flag.Valid() {
		return ErrInvalidFlag
	}
	if err := c.client.HDel(ctx, c.prefix+actionID, string(flag)).Err(); err != nil {
		return fmt.Errorf("revert %s: %w", flag, err)
	}
	return nil
}
