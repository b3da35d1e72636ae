// Package metrics exposes the Prometheus metrics of the exhibit client.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, exhibit, imagecache) and registered through promauto.
//
// This package provides the scrape endpoint and a reference of every metric.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path is where the scrape endpoint is mounted.
const Path = "/metrics"

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing Handler at Path on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - exhibit_rate_limit_blocked_seconds (Gauge): Seconds left in the Retry-After window
//   - exhibit_rate_limit_blocks_total (Counter): Requests refused while the window was open
//   - exhibit_rate_limit_throttles_total (Counter): 429 responses received
//   - exhibit_rate_limit_wait_seconds (Histogram): Time spent waiting for a pacing token
//
// Cache Metrics (pkg/cache):
//   - exhibit_cache_hits_total{freshness} (Counter): Cache hits, fresh or stale
//   - exhibit_cache_misses_total (Counter): Cache misses
//   - exhibit_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - exhibit_cache_304_responses_total (Counter): 304 Not Modified revalidations
//   - exhibit_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - exhibit_catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - exhibit_catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - exhibit_catalog_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - exhibit_catalog_retries_total{error_class} (Counter): Retry attempts
//   - exhibit_catalog_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - exhibit_catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Exhibit Metrics (pkg/exhibit):
//   - exhibit_queries_total{outcome} (Counter): Queries by outcome (ok, empty, failed)
//   - exhibit_groups_loaded_total (Counter): Groups joined
//   - exhibit_group_load_duration_seconds (Histogram): Fan-out to join latency
//   - exhibit_item_failures_total (Counter): Detail fetches dropped from a group
//   - exhibit_stale_completions_total (Counter): Completions of replaced sessions
//
// Image Metrics (pkg/imagecache):
//   - exhibit_image_cache_hits_total (Counter): Resolves served from memory
//   - exhibit_image_cache_misses_total (Counter): Resolves that fetched
//   - exhibit_image_cache_evictions_total (Counter): LRU evictions
//   - exhibit_image_resolve_errors_total{kind} (Counter): Failed resolves by error kind
//   - exhibit_image_assign_cancellations_total (Counter): Surface loads cancelled
//   - exhibit_image_stale_completions_total (Counter): Completions for surfaces that moved on
//
// Example Prometheus Queries:
//
//   # Response Cache Hit Rate
//   sum(rate(exhibit_cache_hits_total[5m])) /
//   (sum(rate(exhibit_cache_hits_total[5m])) + sum(rate(exhibit_cache_misses_total[5m])))
//
//   # Detail Failure Ratio
//   rate(exhibit_item_failures_total[5m]) / rate(exhibit_catalog_requests_total{endpoint="objects"}[5m])
//
//   # P95 Group Load Latency
//   histogram_quantile(0.95, rate(exhibit_group_load_duration_seconds_bucket[5m]))
//
//   # Throttling
//   rate(exhibit_rate_limit_throttles_total[5m]) > 0
