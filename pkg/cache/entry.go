package cache

import (
	"container/list"
	"time"
)

// Entry is a stored cache value with its expiry and access bookkeeping.
// The cache owns the entry once inserted; callers only see the value.
type Entry struct {
	// Value is the opaque cached value.
	Value any

	// ExpiresAt is when the entry stops being observable via Get/Has.
	ExpiresAt time.Time

	// CreatedAt is when the entry was inserted or last replaced.
	CreatedAt time.Time

	// LastAccessed is updated on every Get hit.
	LastAccessed time.Time

	// AccessCount increases monotonically per Get hit.
	AccessCount uint64

	// elem is the entry's node in the LRU order list, nil when LRU
	// tracking is disabled.
	elem *list.Element
}

// IsExpired reports whether the entry has passed its expiry time.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the entry is expired relative to now.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTL returns the remaining time until expiry, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
