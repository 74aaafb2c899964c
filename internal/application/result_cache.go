package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/adapters/metrics"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/crypto"
	"github.com/guxdde/base-auth-service/pkg/rediskeys"
)

const (
	defaultResultCachePrefix = "service:cache"
	defaultResultCacheTTL    = time.Hour
	defaultExtendRatio       = 0.2
)

// Scope names the owner of a cached result. The zero value is the global
// scope. Callers pass it explicitly instead of the cache inspecting them.
type Scope struct {
	UserID int64
}

// GlobalScope is the ownerless scope shared by all callers.
var GlobalScope = Scope{}

// UserScope returns the scope owned by the given user.
func UserScope(userID int64) Scope {
	return Scope{UserID: userID}
}

// ResultCache caches the results of arbitrary operations under
// (scope, tag) aggregate containers: one hash per owner and tag, one field
// per distinct operation-argument fingerprint. Dropping the container
// invalidates every cached result under the tag in a single delete.
// Cache failures on either path are absorbed; the wrapped computation's
// correctness never depends on cache availability.
type ResultCache struct {
	logger domain.Logger
	cfg    config.Provider
	cache  domain.CacheStore
}

// NewResultCache creates a ResultCache.
func NewResultCache(logger domain.Logger, cfg config.Provider, cache domain.CacheStore) *ResultCache {
	if logger == nil {
		panic("logger is nil in NewResultCache")
	}
	if cfg == nil {
		panic("config provider is nil in NewResultCache")
	}
	if cache == nil {
		panic("cache store is nil in NewResultCache")
	}
	return &ResultCache{logger: logger, cfg: cfg, cache: cache}
}

func (rc *ResultCache) prefix() string {
	if p := rc.cfg.Get().Cache.Prefix; p != "" {
		return p
	}
	return defaultResultCachePrefix
}

func (rc *ResultCache) defaultTTL() time.Duration {
	if sec := rc.cfg.Get().Cache.DefaultTTLSeconds; sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return defaultResultCacheTTL
}

func (rc *ResultCache) extendRatio() float64 {
	if r := rc.cfg.Get().Cache.TriggerExtendRatio; r > 0 && r < 1 {
		return r
	}
	return defaultExtendRatio
}

func (rc *ResultCache) containerKey(scope Scope, tag string) string {
	return rediskeys.ResultCacheKey(rc.prefix(), tag, scope.UserID)
}

// fieldFingerprint derives the hash field for an operation invocation from
// the operation name and its JSON-serialized arguments. Unserializable
// arguments have no stable fingerprint, so the invocation is reported as
// uncacheable rather than collapsed onto a shared field.
func fieldFingerprint(op string, args []any) (string, bool) {
	payload, err := json.Marshal(struct {
		Op   string `json:"op"`
		Args []any  `json:"args"`
	}{Op: op, Args: args})
	if err != nil {
		return "", false
	}
	return op + ":" + crypto.Md5Hex(string(payload)), true
}

// maybeExtendTTL implements the approximate sliding expiration: the
// container's TTL is pushed back to the full expiry only once the remaining
// lifetime drops below the configured ratio, so most hits skip the write.
func (rc *ResultCache) maybeExtendTTL(ctx context.Context, key string, expire time.Duration) {
	ttl, err := rc.cache.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return
	}
	threshold := time.Duration(float64(expire) * rc.extendRatio())
	if ttl <= threshold {
		if _, err := rc.cache.Expire(ctx, key, expire); err != nil {
			rc.logger.Debug(ctx, "Result cache TTL extension failed", "key", key, "error", err.Error())
		}
	}
}

// Invalidate drops the aggregate containers for the given tags within the
// scope. One delete per tag regardless of how many results were cached.
func (rc *ResultCache) Invalidate(ctx context.Context, scope Scope, tags ...string) {
	for _, tag := range tags {
		key := rc.containerKey(scope, tag)
		if _, err := rc.cache.Del(ctx, key); err != nil {
			rc.logger.Warn(ctx, "Result cache invalidation failed", "key", key, "error", err.Error())
		}
	}
}

// Cached wraps a computation in the tagged result cache. An empty tag
// defaults to the operation name; a non-positive expire uses the configured
// default. On a hit the container's TTL may be extended (sliding
// expiration); on a miss the computed result is stored and the container
// expiry is set.
func Cached[T any](ctx context.Context, rc *ResultCache, scope Scope, tag string, expire time.Duration, op string, args []any, compute func(context.Context) (T, error)) (T, error) {
	if rc == nil {
		return compute(ctx)
	}
	if tag == "" {
		tag = op
	}
	if expire <= 0 {
		expire = rc.defaultTTL()
	}

	field, cacheable := fieldFingerprint(op, args)
	if !cacheable {
		rc.logger.Debug(ctx, "Arguments not serializable, bypassing result cache", "op", op)
		return compute(ctx)
	}
	key := rc.containerKey(scope, tag)

	if raw, err := rc.cache.HGet(ctx, key, field); err == nil {
		var cached T
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			metrics.IncrementCacheHit("result")
			rc.maybeExtendTTL(ctx, key, expire)
			return cached, nil
		}
		rc.logger.Warn(ctx, "Undecodable result cache entry, recomputing", "key", key, "field", field)
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		rc.logger.Debug(ctx, "Result cache read failed, recomputing", "key", key, "error", err.Error())
	}
	metrics.IncrementCacheMiss("result")

	result, err := compute(ctx)
	if err != nil {
		return result, err
	}

	payload, jsonErr := json.Marshal(result)
	if jsonErr != nil {
		rc.logger.Debug(ctx, "Result not cacheable", "op", op, "error", jsonErr.Error())
		return result, nil
	}
	if _, err := rc.cache.HSet(ctx, key, field, string(payload)); err != nil {
		rc.logger.Debug(ctx, "Result cache write failed", "key", key, "error", err.Error())
		return result, nil
	}
	if _, err := rc.cache.Expire(ctx, key, expire); err != nil {
		rc.logger.Debug(ctx, "Result cache expiry write failed", "key", key, "error", err.Error())
	}
	return result, nil
}

// Invalidating wraps a mutating operation: when it completes without error,
// the aggregate containers for the given tags are dropped so subsequent
// reads recompute against the new state.
func Invalidating[T any](ctx context.Context, rc *ResultCache, scope Scope, tags []string, mutate func(context.Context) (T, error)) (T, error) {
	result, err := mutate(ctx)
	if err != nil || rc == nil {
		return result, err
	}
	rc.Invalidate(ctx, scope, tags...)
	return result, err
}
