package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guxdde/base-auth-service/internal/adapters/logger"
	"github.com/guxdde/base-auth-service/internal/adapters/memory"
)

type profile struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func newTestResultCache(clock *testClock) (*ResultCache, *memory.CacheStore) {
	cache := memory.NewCacheStoreWithClock(clock.Now)
	return NewResultCache(logger.NewNop(), testConfig(), cache), cache
}

func TestCachedComputesOnceAndServesHits(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (profile, error) {
		calls++
		return profile{Name: "alice", Score: 7}, nil
	}

	first, err := Cached(ctx, rc, UserScope(42), "profiles", time.Hour, "GetProfile", []any{42}, compute)
	require.NoError(t, err)
	second, err := Cached(ctx, rc, UserScope(42), "profiles", time.Hour, "GetProfile", []any{42}, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestCachedBypassesUnserializableArguments(t *testing.T) {
	clock := newTestClock()
	rc, cache := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(v string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			calls++
			return v, nil
		}
	}

	// Channels have no JSON encoding, so no fingerprint can be derived.
	arg := make(chan int)
	first, err := Cached(ctx, rc, GlobalScope, "unserializable", time.Hour, "Op", []any{arg}, compute("first"))
	require.NoError(t, err)
	second, err := Cached(ctx, rc, GlobalScope, "unserializable", time.Hour, "Op", []any{arg}, compute("second"))
	require.NoError(t, err)

	assert.Equal(t, "first", first)
	assert.Equal(t, "second", second, "invocations without a fingerprint must not serve each other's results")
	assert.Equal(t, 2, calls, "every invocation must recompute")

	fields, err := cache.HGetAll(ctx, rc.containerKey(GlobalScope, "unserializable"))
	require.NoError(t, err)
	assert.Empty(t, fields, "bypassed invocations must not write cache entries")
}

func TestCachedDistinguishesArguments(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	computeFor := func(name string) func(context.Context) (profile, error) {
		return func(context.Context) (profile, error) {
			calls++
			return profile{Name: name}, nil
		}
	}

	a, err := Cached(ctx, rc, GlobalScope, "profiles", time.Hour, "GetProfile", []any{1}, computeFor("alice"))
	require.NoError(t, err)
	b, err := Cached(ctx, rc, GlobalScope, "profiles", time.Hour, "GetProfile", []any{2}, computeFor("bob"))
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "distinct arguments must not collide")
	assert.NotEqual(t, a.Name, b.Name)
}

func TestCachedScopesAreIsolated(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := Cached(ctx, rc, UserScope(1), "stats", time.Hour, "Count", nil, compute)
	require.NoError(t, err)
	_, err = Cached(ctx, rc, UserScope(2), "stats", time.Hour, "Count", nil, compute)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "per-user scopes must not share entries")
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	boom := errors.New("boom")
	compute := func(context.Context) (profile, error) {
		calls++
		if calls == 1 {
			return profile{}, boom
		}
		return profile{Name: "ok"}, nil
	}

	_, err := Cached(ctx, rc, GlobalScope, "flaky", time.Hour, "Flaky", nil, compute)
	require.ErrorIs(t, err, boom)

	result, err := Cached(ctx, rc, GlobalScope, "flaky", time.Hour, "Flaky", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Name)
	assert.Equal(t, 2, calls)
}

func TestCachedExtendsTTLNearExpiry(t *testing.T) {
	clock := newTestClock()
	rc, cache := newTestResultCache(clock)
	ctx := context.Background()

	compute := func(context.Context) (string, error) { return "v", nil }

	_, err := Cached(ctx, rc, GlobalScope, "sliding", time.Hour, "Op", nil, compute)
	require.NoError(t, err)

	key := rc.containerKey(GlobalScope, "sliding")

	// Mid-life hit: remaining TTL is above the 0.2 trigger ratio, no extension.
	clock.Advance(30 * time.Minute)
	_, err = Cached(ctx, rc, GlobalScope, "sliding", time.Hour, "Op", nil, compute)
	require.NoError(t, err)
	ttl, err := cache.TTL(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 1)

	// Late hit: remaining TTL has dropped below 0.2x, the container is pushed
	// back to the full expiry.
	clock.Advance(21 * time.Minute)
	_, err = Cached(ctx, rc, GlobalScope, "sliding", time.Hour, "Op", nil, compute)
	require.NoError(t, err)
	ttl, err = cache.TTL(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)
}

func TestCachedRecomputesAfterExpiry(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}

	_, err := Cached(ctx, rc, GlobalScope, "short", time.Minute, "Op", nil, compute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = Cached(ctx, rc, GlobalScope, "short", time.Minute, "Op", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired container must be recomputed")
}

func TestInvalidateDropsWholeTag(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	// Two entries under one tag, one under another.
	_, err := Cached(ctx, rc, UserScope(1), "orders", time.Hour, "List", []any{"open"}, compute)
	require.NoError(t, err)
	_, err = Cached(ctx, rc, UserScope(1), "orders", time.Hour, "List", []any{"closed"}, compute)
	require.NoError(t, err)
	_, err = Cached(ctx, rc, UserScope(1), "invoices", time.Hour, "List", nil, compute)
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	rc.Invalidate(ctx, UserScope(1), "orders")

	_, err = Cached(ctx, rc, UserScope(1), "orders", time.Hour, "List", []any{"open"}, compute)
	require.NoError(t, err)
	_, err = Cached(ctx, rc, UserScope(1), "orders", time.Hour, "List", []any{"closed"}, compute)
	require.NoError(t, err)
	_, err = Cached(ctx, rc, UserScope(1), "invoices", time.Hour, "List", nil, compute)
	require.NoError(t, err)

	assert.Equal(t, 5, calls, "orders entries recompute, invoices survives")
}

func TestInvalidatingRunsOnlyOnSuccess(t *testing.T) {
	clock := newTestClock()
	rc, _ := newTestResultCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := Cached(ctx, rc, GlobalScope, "totals", time.Hour, "Sum", nil, compute)
	require.NoError(t, err)

	// Failed mutation leaves the cache warm.
	boom := errors.New("write failed")
	_, err = Invalidating(ctx, rc, GlobalScope, []string{"totals"}, func(context.Context) (struct{}, error) {
		return struct{}{}, boom
	})
	require.ErrorIs(t, err, boom)
	_, err = Cached(ctx, rc, GlobalScope, "totals", time.Hour, "Sum", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Successful mutation drops it.
	_, err = Invalidating(ctx, rc, GlobalScope, []string{"totals"}, func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)
	_, err = Cached(ctx, rc, GlobalScope, "totals", time.Hour, "Sum", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
