// Package metrics exposes the Prometheus registry used by bom-enricher.
// All metrics are defined in their respective packages (ratelimit, client,
// catalog, cache, fetch, store) to keep those packages self-contained.
//
// This package serves them and documents what is available.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers with via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Limiter Metrics (pkg/ratelimit):
//   - bom_limiter_pending_tasks (Gauge): Tasks waiting for a free slot
//   - bom_limiter_running_tasks (Gauge): Occupied slots, including the pacing delay
//   - bom_limiter_queue_wait_seconds (Histogram): Time from Submit to admission
//   - bom_limiter_cleared_tasks_total (Counter): Queued tasks discarded by Clear
//
// Lookup Metrics (pkg/client):
//   - bom_part_lookups_total{outcome} (Counter): Lookups by outcome (ok, error, cancelled)
//   - bom_part_lookup_duration_seconds (Histogram): Lookup duration including queue time
//   - bom_part_lookup_errors_total{kind} (Counter): Failed lookups by kind (not_found, upstream, network)
//
// Catalog Metrics (pkg/catalog):
//   - bom_catalog_requests_total{source, outcome} (Counter): Upstream calls by source and outcome
//   - bom_catalog_request_duration_seconds{source} (Histogram): Upstream call duration
//
// Cache Metrics (pkg/cache):
//   - bom_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - bom_cache_misses_total (Counter): Cache misses
//   - bom_cache_written_bytes_total{layer="redis"} (Counter): Bytes written to the cache
//   - bom_cache_errors_total{operation} (Counter): Cache operation errors
//
// Run Metrics (pkg/fetch):
//   - bom_fetch_runs_total{result} (Counter): Enrichment runs (completed, cancelled)
//   - bom_fetch_parts_total{outcome} (Counter): Part numbers processed (success, error, cancelled)
//   - bom_fetch_run_duration_seconds (Histogram): Run duration
//
// Row Metrics (pkg/store):
//   - bom_rows{status} (Gauge): Rows by fetch status
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(bom_cache_hits_total[5m])) /
//   (sum(rate(bom_cache_hits_total[5m])) + sum(rate(bom_cache_misses_total[5m])))
//
//   # Lookup Error Rate by Kind
//   rate(bom_part_lookup_errors_total[5m])
//
//   # Queue Backlog
//   bom_limiter_pending_tasks > 10
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(bom_catalog_request_duration_seconds_bucket[5m]))
