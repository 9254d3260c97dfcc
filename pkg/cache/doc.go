// Package cache provides a bounded in-memory key-value store with
// per-entry TTL, optional LRU eviction, and hit/miss/eviction metrics.
//
// The cache is the foundation data structure of the resiliency toolkit:
// callers use it to avoid repeating expensive lookups against the remote
// service. Values are opaque; callers serialize domain objects themselves.
//
// # Basic Usage
//
//	c := cache.New(cache.DefaultConfig())
//	defer c.Close()
//
//	c.Set("quote:AAPL", quote, 30*time.Second)
//
//	if v, ok := c.Get("quote:AAPL"); ok {
//		quote := v.(Quote)
//		// ...
//	}
//
// # Expiry
//
// Entries expire in two redundant ways: lazily, when Get or Has touches
// an expired entry, and via a background sweep that scans all entries on
// a fixed interval. A large, rarely-read cache relies on the sweep; a
// cold cache relies on the lazy check between sweeps.
//
// # Eviction
//
// When the cache is full, Set evicts exactly one entry before inserting:
// the least-recently-used entry when LRU tracking is enabled, otherwise
// the entry with the oldest insertion time.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - resilience_cache_hits_total - Cache hits
//   - resilience_cache_misses_total - Cache misses
//   - resilience_cache_evictions_total{policy} - Capacity evictions
//   - resilience_cache_entries - Current entry count
//   - resilience_cache_sweep_removals_total - Sweep removals
//
// Per-instance counters are also available via Metrics for callers that
// want hit-rate accounting without scraping Prometheus.
package cache
