// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// redisKeyPrefix namespaces limiter sorted sets in a shared Redis
const redisKeyPrefix = "ratelimit:"

// RedisBackend stores each bucket as a sorted set scored by request time
// in milliseconds, so multiple gateway instances share one window.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to the Redis at redisURL
// (format: redis://host:port or redis://host:port/db) and verifies the
// connection before returning.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client, used by tests
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

var _ Backend = (*RedisBackend)(nil)

// Take prunes expired scores, adds the request speculatively, and removes
// it again when the set exceeds the limit. Each member carries a unique
// suffix so takes in the same millisecond still count separately.
func (b *RedisBackend) Take(ctx context.Context, bucket string, limit int, window time.Duration, now time.Time) (Usage, error) {
	key := redisKeyPrefix + bucket
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	minScore := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := b.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", minScore)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixMilli()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return Usage{}, fmt.Errorf("rate limit pipeline failed: %w", err)
	}

	count := int(countCmd.Val())
	oldest := now
	if zs := oldestCmd.Val(); len(zs) > 0 {
		oldest = time.UnixMilli(int64(zs[0].Score))
	}

	if count > limit {
		// Roll back the speculative member. If the removal fails the
		// entry still ages out of the window on its own.
		_ = b.client.ZRem(ctx, key, member).Err()
		return Usage{Allowed: false, Count: count - 1, OldestAt: oldest}, nil
	}

	return Usage{Allowed: true, Count: count, OldestAt: oldest}, nil
}

// Flush removes a bucket entirely, an admin operation
func (b *RedisBackend) Flush(ctx context.Context, bucket string) error {
	if err := b.client.Del(ctx, redisKeyPrefix+bucket).Err(); err != nil {
		return fmt.Errorf("failed to flush rate limit bucket: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
