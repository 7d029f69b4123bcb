// Package ratelimit enforces each tenant's requests-per-hour budget
// (models.GenerationSettings.RequestsPerHour), generalizing the teacher's
// single-backend rate limiter from an integer tenant id to the gateway's
// string tenant id.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(redisURL string) (*RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &RateLimiter{client: redis.NewClient(opt)}, nil
}

// Allow reports whether tenantID may make another request this hour,
// given limit (0 or negative means unlimited).
func (rl *RateLimiter) Allow(ctx context.Context, tenantID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:tenant:%s:%s", tenantID, time.Now().Format("2006-01-02-15"))

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	return count <= int64(limit), nil
}

func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}
