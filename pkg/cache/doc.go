// Package cache stores accumulated catalog views (snapshots) keyed by their
// filter signature.
//
// Two stores implement the Store interface:
//
//   - MemoryStore: bounded expirable LRU, private to the process
//   - RedisStore: JSON snapshots with a TTL, shared between replicas
//
// A Key is the filter signature of a view. Equivalent requests (different
// case or surrounding whitespace in color, size or term) normalize to the
// same key, so they share one snapshot. A new signature never reuses another
// signature's snapshot.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(256, 5*time.Minute)
//
//	key := cache.Key{Scope: cache.ScopeCatalog, Category: "c1", Color: "Red"}
//
//	snap, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// accumulate from upstream, then store.Set(ctx, key, snap)
//	}
//
// # Conditional Responses
//
// ETag derives a weak entity tag from a snapshot so HTTP handlers can answer
// If-None-Match with 304 Not Modified:
//
//	etag := cache.ETag(snap, "page=1", "limit=10")
//	if cache.NotModified(r, etag) {
//		w.WriteHeader(http.StatusNotModified)
//		return
//	}
//
// # Metrics
//
// The following Prometheus metrics are exported:
//
//   - loyverse_cache_hits_total{store}
//   - loyverse_cache_misses_total{store}
//   - loyverse_cache_evictions_total{store}
//   - loyverse_cache_entries{store}
//   - loyverse_cache_last_snapshot_bytes{store}
//   - loyverse_cache_errors_total{operation}
//   - loyverse_proxy_304_responses_total
package cache
