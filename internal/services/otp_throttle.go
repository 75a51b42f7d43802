package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPThrottle limits how often a code may be requested for one key.
type OTPThrottle interface {
	Allow(ctx context.Context, identifier, purpose string) error
}

type ThrottleOptions struct {
	Cooldown     time.Duration
	Window       time.Duration
	MaxPerWindow int
}

type redisThrottle struct {
	rdb  redis.UniversalClient
	opts ThrottleOptions
}

func NewRedisThrottle(rdb redis.UniversalClient, opts ThrottleOptions) OTPThrottle {
	return &redisThrottle{rdb: rdb, opts: opts}
}

func (t *redisThrottle) Allow(ctx context.Context, identifier, purpose string) error {
	key := fmt.Sprintf("otp:throttle:%s:%s", purpose, identifier)

	if t.opts.Cooldown > 0 {
		ok, err := t.rdb.SetNX(ctx, key+":cooldown", 1, t.opts.Cooldown).Result()
		if err != nil {
			return fmt.Errorf("throttle cooldown: %w", err)
		}
		if !ok {
			return &ThrottledError{RetryAfter: t.ttl(ctx, key+":cooldown", t.opts.Cooldown)}
		}
	}

	if t.opts.MaxPerWindow > 0 && t.opts.Window > 0 {
		windowKey := key + ":window"
		n, err := t.rdb.Incr(ctx, windowKey).Result()
		if err != nil {
			return fmt.Errorf("throttle window: %w", err)
		}
		if n == 1 {
			if err := t.rdb.Expire(ctx, windowKey, t.opts.Window).Err(); err != nil {
				return fmt.Errorf("throttle window ttl: %w", err)
			}
		}
		if n > int64(t.opts.MaxPerWindow) {
			return &ThrottledError{RetryAfter: t.ttl(ctx, windowKey, t.opts.Window)}
		}
	}
	return nil
}

func (t *redisThrottle) ttl(ctx context.Context, key string, fallback time.Duration) time.Duration {
	d, err := t.rdb.TTL(ctx, key).Result()
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

type noThrottle struct{}

// NoThrottle is used when Redis is not configured.
func NoThrottle() OTPThrottle { return noThrottle{} }

func (noThrottle) Allow(context.Context, string, string) error { return nil }
