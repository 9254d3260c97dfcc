package pool

import (
	"time"

	"github.com/google/uuid"
)

// Conn is a logical connection handle. The pool owns it while idle;
// between Acquire and Release it belongs exclusively to the caller.
type Conn struct {
	// ID uniquely identifies the connection for Release/RecordRequest.
	ID string

	// BaseURL is the target endpoint this connection is partitioned by.
	BaseURL string

	// CreatedAt is when the connection was established.
	CreatedAt time.Time

	lastUsed time.Time
	active   bool
	requests int64
}

func newConn(baseURL string, now time.Time) *Conn {
	return &Conn{
		ID:        uuid.NewString(),
		BaseURL:   baseURL,
		CreatedAt: now,
		lastUsed:  now,
		active:    true,
	}
}

// idleFor reports how long the connection has been unused at now.
func (c *Conn) idleFor(now time.Time) time.Duration {
	return now.Sub(c.lastUsed)
}
