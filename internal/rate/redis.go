package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis counts hits in Redis so multiple processes share one budget.
// Fixed-window semantics: INCR, then set the TTL only on the first hit.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count > int64(rule.Max) {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rule.Window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

var _ Limiter = (*Redis)(nil)
