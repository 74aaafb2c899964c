package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bas_auth_failures_total",
			Help: "Credential rejections by distinguished cause.",
		},
		[]string{"reason"},
	)

	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bas_cache_hits_total",
			Help: "Cache hits by cache name.",
		},
		[]string{"cache"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bas_cache_misses_total",
			Help: "Cache misses by cache name.",
		},
		[]string{"cache"},
	)

	cacheReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bas_cache_reconnects_total",
			Help: "Redis reconnect attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cacheDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bas_cache_degraded_operations_total",
			Help: "Cache operations that short-circuited to a neutral result.",
		},
		[]string{"op"},
	)

	devicesEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bas_devices_evicted_total",
			Help: "Device sessions evicted by the per-user cap.",
		},
	)
)

// IncrementAuthFailure records a credential rejection with its internal cause.
func IncrementAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

// IncrementCacheHit records a hit for the named cache.
func IncrementCacheHit(cache string) {
	cacheHitsTotal.WithLabelValues(cache).Inc()
}

// IncrementCacheMiss records a miss for the named cache.
func IncrementCacheMiss(cache string) {
	cacheMissesTotal.WithLabelValues(cache).Inc()
}

// IncrementCacheReconnects records a reconnect attempt ("ok" or "failed").
func IncrementCacheReconnects(outcome string) {
	cacheReconnectsTotal.WithLabelValues(outcome).Inc()
}

// IncrementCacheDegraded records an operation absorbed into a neutral result.
func IncrementCacheDegraded(op string) {
	cacheDegradedTotal.WithLabelValues(op).Inc()
}

// IncrementDevicesEvicted records an LRU device eviction.
func IncrementDevicesEvicted() {
	devicesEvictedTotal.Inc()
}
