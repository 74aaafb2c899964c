package domain

import (
	"context"
	"time"
)

// StreamMessage is a single entry read back from a stream key.
type StreamMessage struct {
	ID     string
	Values map[string]any
}

// CacheStore defines the primitive surface of the remote key-value store.
// The production implementation wraps a single shared Redis connection and
// absorbs transient failures: after its retry budget is spent an operation
// returns the type's zero value (lookups return ErrCacheMiss) instead of a
// network error. Callers therefore treat every result as best effort.
type CacheStore interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (string, error)
	RPop(ctx context.Context, key string) (string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error)

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	// ZScore returns ErrCacheMiss when the member is not part of the set.
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error)
	ZRank(ctx context.Context, key, member string) (int64, error)
	ZRevRangeByScore(ctx context.Context, key, max, min string, offset, count int64) ([]string, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, fieldValues ...string) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, increment int64) (int64, error)

	XAdd(ctx context.Context, stream string, values map[string]any) (string, error)
	XRange(ctx context.Context, stream, start, stop string) ([]StreamMessage, error)
	XRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]StreamMessage, error)

	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}
