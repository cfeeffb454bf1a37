// Package metrics exposes the Prometheus registry of the Loyverse proxy.
// Domain metrics are defined in their respective packages (client, cache,
// catalog, inventory, ratelimit, notify) and registered via promauto; this
// package serves them and instruments the inbound HTTP surface.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
)

// HTTPPrefix prefixes the inbound HTTP metrics.
const HTTPPrefix = "loyverse_proxy"

// Registry is the default Prometheus registry used by all packages.
var Registry = prometheus.DefaultRegisterer

var httpMiddleware = sync.OnceValue(func() middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Prefix: HTTPPrefix}),
	})
})

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, duration and response size of h under
// handlerID. An empty handlerID labels requests by URL path, so pass the route
// pattern for routes with path parameters.
func Instrument(handlerID string, h http.Handler) http.Handler {
	return middlewarestd.Handler(handlerID, httpMiddleware(), h)
}

// Metrics Documentation
//
// Upstream Request Metrics (pkg/client):
//   - loyverse_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - loyverse_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - loyverse_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - loyverse_retries_total{error_class} (Counter): Retry attempts by error class
//   - loyverse_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - loyverse_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - loyverse_rate_limit_throttles_total (Counter): 429 responses that set a cooldown
//   - loyverse_rate_limit_waits_total (Counter): Requests delayed by an active cooldown
//   - loyverse_rate_limit_cooldown_seconds (Gauge): Remaining cooldown
//
// Inventory Metrics (pkg/inventory):
//   - loyverse_inventory_chunks_total (Counter): Inventory chunks queried
//   - loyverse_inventory_degraded_chunks_total{reason} (Counter): Chunks returning partial sums
//
// Catalog Metrics (pkg/catalog):
//   - loyverse_catalog_accumulations_total{scope, result} (Counter): Upstream accumulation passes
//   - loyverse_catalog_accumulation_duration_seconds{scope} (Histogram): Accumulation duration
//   - loyverse_catalog_shared_accumulations_total{scope} (Counter): Requests joining a pass in flight
//
// Cache Metrics (pkg/cache):
//   - loyverse_cache_hits_total{store} (Counter): Snapshot hits by store
//   - loyverse_cache_misses_total{store} (Counter): Snapshot misses by store
//   - loyverse_cache_evictions_total{store} (Counter): Evicted snapshots
//   - loyverse_cache_entries{store} (Gauge): Live snapshots in memory
//   - loyverse_cache_last_snapshot_bytes{store} (Gauge): Size of the last stored snapshot
//   - loyverse_cache_errors_total{operation} (Counter): Cache operation errors
//   - loyverse_proxy_304_responses_total (Counter): 304 Not Modified responses
//
// Notification Metrics (pkg/notify):
//   - loyverse_proxy_emails_total{kind, result} (Counter): Subscription emails
//
// HTTP Metrics (this package, go-http-metrics):
//   - loyverse_proxy_http_request_duration_seconds{handler, method, code} (Histogram)
//   - loyverse_proxy_http_response_size_bytes{handler, method, code} (Histogram)
//   - loyverse_proxy_http_requests_inflight{handler} (Gauge)
//
// Example Prometheus Queries:
//
//   # Snapshot Hit Rate
//   sum(rate(loyverse_cache_hits_total[5m])) /
//   (sum(rate(loyverse_cache_hits_total[5m])) + sum(rate(loyverse_cache_misses_total[5m])))
//
//   # Upstream Throttling
//   rate(loyverse_rate_limit_throttles_total[5m]) > 0
//
//   # Degraded Stock Lookups
//   rate(loyverse_inventory_degraded_chunks_total[5m])
//
//   # P95 Accumulation Latency
//   histogram_quantile(0.95, rate(loyverse_catalog_accumulation_duration_seconds_bucket[5m]))
