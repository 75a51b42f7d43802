package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThrottle(t *testing.T, opts ThrottleOptions) (OTPThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisThrottle(rdb, opts), mr
}

func TestRedisThrottle_Cooldown(t *testing.T) {
	th, mr := newThrottle(t, ThrottleOptions{Cooldown: 30 * time.Second})
	ctx := context.Background()

	require.NoError(t, th.Allow(ctx, "a@x.com", "login"))
	err := th.Allow(ctx, "a@x.com", "login")
	var te *ThrottledError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 30*time.Second, te.RetryAfter)

	mr.FastForward(31 * time.Second)
	assert.NoError(t, th.Allow(ctx, "a@x.com", "login"))
}

func TestRedisThrottle_Window(t *testing.T) {
	th, mr := newThrottle(t, ThrottleOptions{Window: 10 * time.Minute, MaxPerWindow: 2})
	ctx := context.Background()

	require.NoError(t, th.Allow(ctx, "a@x.com", "login"))
	require.NoError(t, th.Allow(ctx, "a@x.com", "login"))
	assert.ErrorIs(t, th.Allow(ctx, "a@x.com", "login"), ErrOTPThrottled)
	assert.NoError(t, th.Allow(ctx, "b@x.com", "login"))

	mr.FastForward(10*time.Minute + time.Second)
	assert.NoError(t, th.Allow(ctx, "a@x.com", "login"))
}

func TestNoThrottle(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.NoError(t, NoThrottle().Allow(context.Background(), "a@x.com", "login"))
	}
}
