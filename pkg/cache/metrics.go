package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks snapshot hits by store (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyverse_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
		[]string{"store"},
	)

	// CacheMisses tracks snapshot misses by store
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyverse_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
		[]string{"store"},
	)

	// CacheEvictions tracks snapshots dropped by LRU, TTL or purge
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyverse_cache_evictions_total",
			Help: "Total number of evicted snapshots",
		},
		[]string{"store"},
	)

	// CacheEntries tracks the number of live snapshots
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loyverse_cache_entries",
			Help: "Current number of cached snapshots",
		},
		[]string{"store"},
	)

	// CacheSize tracks the size of the last written snapshot in bytes
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loyverse_cache_last_snapshot_bytes",
			Help: "Size of the most recently stored snapshot in bytes",
		},
		[]string{"store"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyverse_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)

	// NotModifiedResponses tracks 304 answers served from snapshot ETags
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyverse_proxy_304_responses_total",
			Help: "Total number of 304 Not Modified responses served",
		},
	)
)
