package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks lookups that returned a live entry.
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// cacheMisses tracks lookups that found no entry or an expired one.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheEvictions tracks entries removed to make room at capacity.
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_cache_evictions_total",
			Help: "Total number of cache evictions by policy",
		},
		[]string{"policy"}, // "lru", "oldest"
	)

	// cacheEntries tracks the current number of stored entries.
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// cacheSweepRemovals tracks entries removed by the background sweep.
	cacheSweepRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_cache_sweep_removals_total",
			Help: "Total number of expired entries removed by the background sweep",
		},
	)
)

// Metrics is a point-in-time snapshot of the per-instance counters.
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	HitRate   float64
	MissRate  float64
}
