package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter per key. The first hit in a window sets the
// TTL; hits beyond Max inside the window are rejected.
type Redis struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, max int, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "gt:thr:"
	}
	return &Redis{client: client, prefix: prefix, max: int64(max), window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) error {
	count, err := r.incrementWithTTL(ctx, r.prefix+key)
	if err != nil {
		return err
	}
	if count > r.max {
		return ErrLimited
	}
	return nil
}

// Reset clears the window for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 && r.window > 0 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
