package cache

import "fmt"

// Code identifies the cache operation that failed.
type Code string

const (
	// CodeGet marks failures during lookup or typed conversion.
	CodeGet Code = "CACHE_GET_ERROR"

	// CodeSet marks failures during insertion.
	CodeSet Code = "CACHE_SET_ERROR"

	// CodeDelete marks failures during removal.
	CodeDelete Code = "CACHE_DELETE_ERROR"

	// CodeEvict marks failures during capacity eviction.
	CodeEvict Code = "CACHE_EVICT_ERROR"
)

// Error is a cache operation failure carrying the operation code and the
// key it concerned. The cache never retries internally; callers decide.
type Error struct {
	Code Code
	Op   string
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache %s (key=%q, code=%s): %v", e.Op, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("cache %s (key=%q, code=%s)", e.Op, e.Key, e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}
