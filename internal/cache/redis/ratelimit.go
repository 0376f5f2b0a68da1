package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter implements fixed-window rate limiting backed by Redis INCR.
// The window key expires on its own, so no cleanup is required.
type RateLimiter struct {
	client *Client
}

// NewRateLimiter creates a RateLimiter on the given client.
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow increments the counter for key and reports whether the count is
// still within limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rdb := l.client.Underlying()

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: ratelimit incr: %w", err)
	}

	// First hit in the window owns the expiry.
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis: ratelimit expire: %w", err)
		}
	}

	return count <= int64(limit), nil
}
