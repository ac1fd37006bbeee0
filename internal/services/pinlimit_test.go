package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecard/internal/domain"
	"voicecard/internal/logging"
)

func newTestLimiter(t *testing.T, max int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLimiter(rdb, max, time.Minute, logging.Discard()), mr
}

func TestRedisLimiterBlocksAfterMaxFailures(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, "ABCD2345", "10.0.0.1"))
		require.NoError(t, limiter.Fail(ctx, "ABCD2345", "10.0.0.1"))
	}

	err := limiter.Allow(ctx, "ABCD2345", "10.0.0.1")
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)

	assert.NoError(t, limiter.Allow(ctx, "ABCD2345", "10.0.0.2"), "other clients are unaffected")
	assert.NoError(t, limiter.Allow(ctx, "WXYZ6789", "10.0.0.1"), "other pages are unaffected")
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Fail(ctx, "ABCD2345", "c"))
	require.ErrorIs(t, limiter.Allow(ctx, "ABCD2345", "c"), domain.ErrTooManyAttempts)

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, limiter.Allow(ctx, "ABCD2345", "c"))
}

func TestRedisLimiterReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Fail(ctx, "ABCD2345", "c"))
	require.NoError(t, limiter.Reset(ctx, "ABCD2345", "c"))
	assert.NoError(t, limiter.Allow(ctx, "ABCD2345", "c"))
}

func TestRedisLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	assert.NoError(t, limiter.Allow(context.Background(), "ABCD2345", "c"))
	assert.Error(t, limiter.Fail(context.Background(), "ABCD2345", "c"))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	_, err = NewRedisClient(context.Background(), "::not a url")
	assert.Error(t, err)
}
