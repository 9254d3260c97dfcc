package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrAcquireTimeout is the category of a queued acquisition that waited
// the full acquire timeout without a connection freeing up.
var ErrAcquireTimeout = errors.New("pool: acquire timed out")

// ErrClosed is returned to waiters rejected when the pool closes.
var ErrClosed = errors.New("pool: closed")

// TimeoutError reports a timed-out queued acquisition together with how
// long the caller waited. It unwraps to ErrAcquireTimeout.
type TimeoutError struct {
	BaseURL string
	Waited  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pool: acquire for %s timed out after %v", e.BaseURL, e.Waited)
}

// Unwrap lets errors.Is(err, ErrAcquireTimeout) match.
func (e *TimeoutError) Unwrap() error {
	return ErrAcquireTimeout
}

// Config holds pool configuration. Zero-valued numeric fields are
// replaced with the documented defaults at construction; start from
// DefaultConfig when overriding individual fields.
type Config struct {
	// MaxConnections bounds the tracked connection count (default 10).
	MaxConnections int

	// MaxIdleTime is how long an idle connection survives before the
	// reaper removes it (default 30s). The reaper runs every
	// MaxIdleTime/2.
	MaxIdleTime time.Duration

	// AcquireTimeout bounds how long a queued caller waits (default 5s).
	AcquireTimeout time.Duration

	// Enabled turns pooling on. When false every Acquire returns a
	// fresh untracked connection and no capacity limit applies.
	Enabled bool
}

// DefaultConfig returns a safe default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 10,
		MaxIdleTime:    30 * time.Second,
		AcquireTimeout: 5 * time.Second,
		Enabled:        true,
	}
}

// Pool is a bounded connection pool keyed by base URL. All methods are
// safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	cfg   Config
	conns map[string]*Conn
	queue []*waiter

	totalRequests int64

	stop   chan struct{}
	closed bool

	logger zerolog.Logger
}

// New creates a pool and starts its idle reaper.
func New(cfg Config) *Pool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = 30 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}

	p := &Pool{
		cfg:    cfg,
		conns:  make(map[string]*Conn),
		stop:   make(chan struct{}),
		logger: log.With().Str("component", "pool").Logger(),
	}

	go p.reapLoop(p.stop)

	return p
}

// Acquire returns a connection for baseURL. The lookup order is: idle
// connection for the same URL, fresh connection under capacity, idle
// connection for a different URL repurposed, and finally the wait
// queue. Queued callers fail with a *TimeoutError after AcquireTimeout,
// or earlier if ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context, baseURL string) (*Conn, error) {
	now := time.Now()

	if !p.cfg.Enabled {
		// Pooling disabled: fresh, untracked, uncapped.
		return newConn(baseURL, now), nil
	}

	p.mu.Lock()

	// Step 1: idle connection for the same URL.
	if c := p.idleForURLLocked(baseURL); c != nil {
		c.active = true
		c.lastUsed = now
		p.updateGaugesLocked()
		p.mu.Unlock()
		poolAcquiresTotal.WithLabelValues("reused").Inc()
		return c, nil
	}

	// Step 2: spare capacity.
	if len(p.conns) < p.cfg.MaxConnections {
		c := newConn(baseURL, now)
		p.conns[c.ID] = c
		p.updateGaugesLocked()
		p.mu.Unlock()
		poolAcquiresTotal.WithLabelValues("created").Inc()
		return c, nil
	}

	// Step 3: repurpose an idle connection held for a different URL.
	// This favors the most recent requester over pool-wide fairness.
	if victim := p.anyIdleLocked(); victim != nil {
		delete(p.conns, victim.ID)
		c := newConn(baseURL, now)
		p.conns[c.ID] = c
		p.updateGaugesLocked()
		p.mu.Unlock()
		poolAcquiresTotal.WithLabelValues("repurposed").Inc()
		p.logger.Debug().
			Str("evicted_url", victim.BaseURL).
			Str("base_url", baseURL).
			Msg("Repurposed idle connection")
		return c, nil
	}

	// Step 4: pool exhausted, queue the caller.
	w := &waiter{
		baseURL:  baseURL,
		ch:       make(chan acquireResult, 1),
		enqueued: now,
	}
	p.queue = append(p.queue, w)
	p.mu.Unlock()
	poolAcquiresTotal.WithLabelValues("queued").Inc()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		poolWaitSeconds.Observe(time.Since(now).Seconds())
		return res.conn, res.err

	case <-ctx.Done():
		if res, satisfied := p.abandonWaiter(w); satisfied {
			// Satisfied concurrently with cancellation: hand the
			// connection straight back so it is not leaked.
			if res.err == nil {
				p.Release(res.conn.ID)
			}
		}
		return nil, ctx.Err()

	case <-timer.C:
		if res, satisfied := p.abandonWaiter(w); satisfied {
			poolWaitSeconds.Observe(time.Since(now).Seconds())
			return res.conn, res.err
		}
		poolTimeoutsTotal.Inc()
		waited := time.Since(now)
		p.logger.Warn().
			Str("base_url", baseURL).
			Dur("waited", waited).
			Msg("Connection acquire timed out")
		return nil, &TimeoutError{BaseURL: baseURL, Waited: waited}
	}
}

// Release marks a connection idle and drains the wait queue. Unknown
// IDs are a no-op; the connection may have been repurposed meanwhile.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[id]
	if !ok {
		return
	}
	c.active = false
	c.lastUsed = time.Now()
	p.drainLocked()
	p.updateGaugesLocked()
}

// RecordRequest increments the per-connection and pool-wide request
// counters. Unknown IDs are a no-op.
func (p *Pool) RecordRequest(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[id]
	if !ok {
		return
	}
	c.requests++
	p.totalRequests++
}

// Metrics returns a snapshot of pool state.
func (p *Pool) Metrics() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Total:         len(p.conns),
		QueueDepth:    len(p.queue),
		TotalRequests: p.totalRequests,
	}
	for _, c := range p.conns {
		if c.active {
			s.Active++
		} else {
			s.Idle++
		}
	}
	if s.Total > 0 {
		s.Utilization = float64(s.Active) / float64(s.Total)
		s.AvgRequestsPerConn = float64(s.TotalRequests) / float64(s.Total)
	}
	return s
}

// Clear empties all tracked connections and abandons the pending queue.
// Abandoned waiters still fail with their acquire timeout; use Close to
// reject them immediately.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conns = make(map[string]*Conn)
	p.queue = nil
	p.updateGaugesLocked()
}

// Close stops the idle reaper, rejects pending waiters with ErrClosed,
// and clears all tracked connections. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stop)
		p.closed = true
	}

	for _, w := range p.queue {
		w.ch <- acquireResult{err: ErrClosed}
	}
	p.queue = nil
	p.conns = make(map[string]*Conn)
	p.updateGaugesLocked()
}

// idleForURLLocked returns an idle connection for baseURL, or nil.
func (p *Pool) idleForURLLocked(baseURL string) *Conn {
	for _, c := range p.conns {
		if !c.active && c.BaseURL == baseURL {
			return c
		}
	}
	return nil
}

// anyIdleLocked returns any idle connection, or nil.
func (p *Pool) anyIdleLocked() *Conn {
	for _, c := range p.conns {
		if !c.active {
			return c
		}
	}
	return nil
}

func (p *Pool) updateGaugesLocked() {
	active, idle := 0, 0
	for _, c := range p.conns {
		if c.active {
			active++
		} else {
			idle++
		}
	}
	poolConnections.WithLabelValues("active").Set(float64(active))
	poolConnections.WithLabelValues("idle").Set(float64(idle))
}

// reapLoop periodically removes connections idle longer than MaxIdleTime.
func (p *Pool) reapLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.MaxIdleTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.reap()
		}
	}
}

func (p *Pool) reap() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	reaped := 0
	for id, c := range p.conns {
		if !c.active && c.idleFor(now) > p.cfg.MaxIdleTime {
			delete(p.conns, id)
			reaped++
		}
	}
	if reaped > 0 {
		poolReapedTotal.Add(float64(reaped))
		p.logger.Debug().Int("reaped", reaped).Msg("Reaped idle connections")
		// Reaping frees capacity, which may satisfy queued callers.
		p.drainLocked()
	}
	p.updateGaugesLocked()
}
