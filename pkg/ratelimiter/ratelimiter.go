package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func key(scope, id string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, id)
}

// CheckAndSetRateLimit claims the slot for (scope, id) for limit. It reports false while an
// earlier claim is still live. A nil client never limits.
func CheckAndSetRateLimit(ctx context.Context, rdb *redis.Client, scope, id string, limit time.Duration) (bool, error) {
	if rdb == nil || limit <= 0 {
		return true, nil
	}

	wasSet, err := rdb.SetNX(ctx, key(scope, id), "locked", limit).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}

	return wasSet, nil
}

func GetRateLimitTTL(ctx context.Context, rdb *redis.Client, scope, id string) (time.Duration, error) {
	if rdb == nil {
		return 0, nil
	}
	return rdb.TTL(ctx, key(scope, id)).Result()
}

func ClearRateLimit(ctx context.Context, rdb *redis.Client, scope, id string) error {
	if rdb == nil {
		return nil
	}
	_, err := rdb.Del(ctx, key(scope, id)).Result()
	return err
}
