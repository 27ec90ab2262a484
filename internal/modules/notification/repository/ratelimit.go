package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter grants one action per user per window, shared across every
// instance through redis.
type RateLimiter interface {
	Allow(ctx context.Context, userID, action string, window time.Duration) (bool, error)
}

type rateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) RateLimiter {
	return &rateLimiter{client: client}
}

func rateLimitKey(userID, action string) string {
	return fmt.Sprintf("rate_limit:user:%s:%s", userID, action)
}

// Allow is always true when window is not positive.
func (r *rateLimiter) Allow(ctx context.Context, userID, action string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	wasSet, err := r.client.SetNX(ctx, rateLimitKey(userID, action), "locked", window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}
	return wasSet, nil
}
