package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter throttles authentication attempts per client address using a
// fixed window counter. Key format: loginrl:<address>.
type LoginLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLoginLimiter creates a limiter allowing limit attempts per window.
func NewLoginLimiter(client *redis.Client, limit int, window time.Duration) *LoginLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginLimiter{client: client, limit: int64(limit), window: window}
}

// Allow reports whether another attempt from this address fits in the current
// window. The first attempt of a window sets the key's TTL.
func (l *LoginLimiter) Allow(ctx context.Context, address string) (bool, error) {
	key := l.key(address)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("login throttle: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("login throttle: %w", err)
		}
	}
	return n <= l.limit, nil
}

func (l *LoginLimiter) key(address string) string {
	return "loginrl:" + address
}
