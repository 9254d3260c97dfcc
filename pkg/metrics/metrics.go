// Package metrics provides the central Prometheus registry reference for
// the resiliency toolkit. All metrics are defined in their respective
// packages (cache, pool, ratelimit, retry) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the toolkit.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - resilience_cache_hits_total (Counter): Cache hits
//   - resilience_cache_misses_total (Counter): Cache misses
//   - resilience_cache_evictions_total{policy} (Counter): Capacity evictions by policy (lru, oldest)
//   - resilience_cache_entries (Gauge): Current entry count
//   - resilience_cache_sweep_removals_total (Counter): Expired entries removed by the sweep
//
// Pool Metrics (pkg/pool):
//   - resilience_pool_connections{state} (Gauge): Tracked connections by state (active, idle)
//   - resilience_pool_acquires_total{outcome} (Counter): Acquisitions by outcome (reused, created, repurposed, queued)
//   - resilience_pool_timeouts_total (Counter): Queued acquisitions that timed out
//   - resilience_pool_reaped_total (Counter): Idle connections removed by the reaper
//   - resilience_pool_wait_seconds (Histogram): Time queued callers spent waiting
//
// Rate Limit Metrics (pkg/ratelimit):
//   - resilience_ratelimit_admitted_total (Counter): Requests admitted
//   - resilience_ratelimit_throttled_total (Counter): Waits imposed on callers
//   - resilience_ratelimit_window_used (Gauge): Requests in the trailing window
//
// Retry Metrics (pkg/retry):
//   - resilience_retries_total{kind} (Counter): Retry attempts by error kind
//   - resilience_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - resilience_retry_exhausted_total (Counter): Operations that exhausted the attempt budget
//
// Pipeline Metrics (pkg/pipeline):
//   - resilience_pipeline_fetches_total{result} (Counter): Fetches by result (cached, fetched, deduped, error)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(resilience_cache_hits_total[5m]) /
//   (rate(resilience_cache_hits_total[5m]) + rate(resilience_cache_misses_total[5m]))
//
//   # Pool Saturation
//   resilience_pool_connections{state="active"} /
//   (resilience_pool_connections{state="active"} + resilience_pool_connections{state="idle"})
//
//   # Throttle Rate
//   rate(resilience_ratelimit_throttled_total[5m])
//
//   # P95 Queue Wait
//   histogram_quantile(0.95, rate(resilience_pool_wait_seconds_bucket[5m]))
