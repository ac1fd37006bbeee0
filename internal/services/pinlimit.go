package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"voicecard/internal/domain"
)

const pinAttemptPrefix = "voicecard:pin:"

// AttemptLimiter caps wrong PIN entries per page and client.
type AttemptLimiter interface {
	Allow(ctx context.Context, code, client string) error
	Fail(ctx context.Context, code, client string) error
	Reset(ctx context.Context, code, client string) error
}

// RedisLimiter counts failures in Redis so that limits hold across
// server instances. A counter expires window after the first failure.
type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	logger *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, max int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, max: max, window: window, logger: logger}
}

// NewRedisClient parses url and verifies the server responds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (l *RedisLimiter) key(code, client string) string {
	return pinAttemptPrefix + code + ":" + client
}

func (l *RedisLimiter) Allow(ctx context.Context, code, client string) error {
	n, err := l.rdb.Get(ctx, l.key(code, client)).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		// an unavailable limiter must not lock everyone out
		l.logger.Warn("read pin attempts", "code", code, "error", err)
		return nil
	}
	if n >= l.max {
		return fmt.Errorf("%w: try again later", domain.ErrTooManyAttempts)
	}
	return nil
}

func (l *RedisLimiter) Fail(ctx context.Context, code, client string) error {
	key := l.key(code, client)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record pin attempt: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("expire pin attempts: %w", err)
		}
	}
	if n >= int64(l.max) {
		l.logger.Warn("pin attempts exhausted", "code", code, "client", client)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, code, client string) error {
	if err := l.rdb.Del(ctx, l.key(code, client)).Err(); err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}

// NoopLimiter is used when no Redis server is configured.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string, string) error { return nil }
func (NoopLimiter) Fail(context.Context, string, string) error  { return nil }
func (NoopLimiter) Reset(context.Context, string, string) error { return nil }
