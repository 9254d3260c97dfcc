package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds cache configuration. Zero-valued numeric fields are
// replaced with the documented defaults at construction; boolean fields
// are taken as-is, so start from DefaultConfig when overriding.
type Config struct {
	// MaxSize is the maximum number of entries (default 1000).
	MaxSize int

	// DefaultTTL is applied when Set is called with ttl <= 0 (default 5m).
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweep scans for expired
	// entries (default 1m).
	SweepInterval time.Duration

	// EnableLRU turns on least-recently-used eviction order tracking.
	EnableLRU bool

	// EnableMetrics turns on the per-instance hit/miss/eviction counters.
	EnableMetrics bool
}

// DefaultConfig returns a safe default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:       1000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: 1 * time.Minute,
		EnableLRU:     true,
		EnableMetrics: true,
	}
}

// Cache is a bounded, expiring in-memory key-value store. All methods
// are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*Entry

	// order holds keys with the most recently used at the front. Only
	// maintained when LRU is enabled; index maps key to list node.
	order *list.List
	index map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	stop   chan struct{}
	closed bool

	logger zerolog.Logger
}

// New creates a cache and starts its background sweep.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 1 * time.Minute
	}

	c := &Cache{
		cfg:     cfg,
		entries: make(map[string]*Entry),
		order:   list.New(),
		index:   make(map[string]*list.Element),
		stop:    make(chan struct{}),
		logger:  log.With().Str("component", "cache").Logger(),
	}

	go c.sweepLoop(c.stop)

	return c
}

// Get returns the value stored under key. Expired entries are purged on
// access before the lookup reports a miss. A hit refreshes the entry's
// access bookkeeping and, when LRU is enabled, its recency.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.IsExpired() {
		c.removeLocked(key, e)
		ok = false
	}
	if !ok {
		if c.cfg.EnableMetrics {
			c.misses++
		}
		cacheMisses.Inc()
		return nil, false
	}

	e.AccessCount++
	e.LastAccessed = time.Now()
	if e.elem != nil {
		c.order.MoveToFront(e.elem)
	}
	if c.cfg.EnableMetrics {
		c.hits++
	}
	cacheHits.Inc()

	return e.Value, true
}

// GetAs returns the value stored under key asserted to type T. A stored
// value of a different type is a resource fault and is reported as a
// *Error with CodeGet.
func GetAs[T any](c *Cache, key string) (T, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false, &Error{Code: CodeGet, Op: "get", Key: key}
	}
	return typed, true, nil
}

// Set stores value under key with the given ttl (ttl <= 0 uses the
// configured default). If the cache is full and key is not already
// present, exactly one entry is evicted first. Replacing an existing key
// resets its TTL and creation time.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, exists := c.entries[key]

	if !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictLocked()
	}

	if exists {
		e.Value = value
		e.CreatedAt = now
		e.ExpiresAt = now.Add(ttl)
		if e.elem != nil {
			c.order.MoveToFront(e.elem)
		}
	} else {
		e = &Entry{
			Value:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		if c.cfg.EnableLRU {
			e.elem = c.order.PushFront(key)
			c.index[key] = e.elem
		}
		c.entries[key] = e
	}

	cacheEntries.Set(float64(len(c.entries)))
}

// Has reports whether key holds a live entry. Like Get it purges an
// expired entry, but it is a read-only probe otherwise: no metrics, no
// LRU reordering, no access bookkeeping.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.IsExpired() {
		c.removeLocked(key, e)
		return false
	}
	return true
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, e)
	return true
}

// Clear removes all entries and resets LRU tracking. Metrics counters
// are left untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Keys returns a snapshot of the currently stored keys.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the per-instance counters. HitRate and
// MissRate are 0 when no lookups have been recorded yet.
func (c *Cache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		m.HitRate = float64(c.hits) / float64(total)
		m.MissRate = float64(c.misses) / float64(total)
	}
	return m
}

// ResetMetrics zeroes the hit/miss/eviction counters without touching
// stored entries.
func (c *Cache) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Close stops the background sweep and clears all entries. It is
// idempotent, and the cache stays usable afterwards; it just runs
// without background cleanup.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.stop)
		c.closed = true
	}
	c.clearLocked()
}

// evictLocked removes exactly one entry to make room. With LRU enabled
// and a non-empty order list, the least-recently-used entry goes. The
// fallback scans for the oldest insertion.
func (c *Cache) evictLocked() {
	if c.cfg.EnableLRU && c.order.Len() > 0 {
		oldest := c.order.Back()
		key := oldest.Value.(string)
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
			c.evictions++
			cacheEvictions.WithLabelValues("lru").Inc()
			c.logger.Debug().Str("key", key).Msg("Evicted least recently used entry")
			return
		}
	}

	var oldestKey string
	var oldestEntry *Entry
	for k, e := range c.entries {
		if oldestEntry == nil || e.CreatedAt.Before(oldestEntry.CreatedAt) {
			oldestKey = k
			oldestEntry = e
		}
	}
	if oldestEntry != nil {
		c.removeLocked(oldestKey, oldestEntry)
		c.evictions++
		cacheEvictions.WithLabelValues("oldest").Inc()
		c.logger.Debug().Str("key", oldestKey).Msg("Evicted oldest entry")
	}
}

// removeLocked deletes an entry and its LRU node, keeping the order
// structure in lockstep with the entry map.
func (c *Cache) removeLocked(key string, e *Entry) {
	delete(c.entries, key)
	if e.elem != nil {
		c.order.Remove(e.elem)
		delete(c.index, key)
	}
	cacheEntries.Set(float64(len(c.entries)))
}

func (c *Cache) clearLocked() {
	c.entries = make(map[string]*Entry)
	c.order.Init()
	c.index = make(map[string]*list.Element)
	cacheEntries.Set(0)
}

// sweepLoop periodically removes expired entries. It is redundant with
// the lazy expiry in Get/Has; both must hold for correctness.
func (c *Cache) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if e.IsExpiredAt(now) {
			c.removeLocked(k, e)
			removed++
		}
	}
	if removed > 0 {
		cacheSweepRemovals.Add(float64(removed))
		c.logger.Debug().Int("removed", removed).Msg("Sweep removed expired entries")
	}
}
