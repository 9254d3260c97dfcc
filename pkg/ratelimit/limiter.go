// Package ratelimit implements sliding-window admission control for
// outbound requests. The limiter bounds requests to MaxRequests per
// trailing Window, recomputed continuously rather than in fixed buckets,
// with a small buffer so callers never ride the exact limit.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limit admission.
var (
	limiterAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_ratelimit_admitted_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	limiterThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_ratelimit_throttled_total",
		Help: "Total number of waits imposed by the rate limiter",
	})

	limiterWindowUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilience_ratelimit_window_used",
		Help: "Requests currently counted in the trailing window",
	})
)

// Config holds rate limiter configuration. Zero-valued fields are
// replaced with the documented defaults at construction.
type Config struct {
	// MaxRequests is the admission cap per trailing window (default 100).
	MaxRequests int

	// Window is the trailing duration requests are counted over
	// (default 1m).
	Window time.Duration

	// Buffer is additive headroom on computed waits, never subtracted
	// from capacity (default 100ms).
	Buffer time.Duration
}

// DefaultConfig returns a safe default limiter configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 100,
		Window:      1 * time.Minute,
		Buffer:      100 * time.Millisecond,
	}
}

// Limiter is a sliding-window rate limiter. All methods are safe for
// concurrent use against the same instance.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	stamps []time.Time
	logger zerolog.Logger
}

// New creates a sliding-window limiter.
func New(cfg Config) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 1 * time.Minute
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100 * time.Millisecond
	}
	return &Limiter{
		cfg:    cfg,
		logger: log.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow reports whether a request could proceed right now. Stale
// timestamps are purged before the check.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeLocked(time.Now())
	return len(l.stamps) < l.cfg.MaxRequests
}

// Record appends the current timestamp to the window.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(time.Now())
}

// Wait returns immediately when the window has room. Otherwise it
// suspends the caller until the oldest recorded request leaves the
// window, plus the configured buffer. Only the single oldest timestamp
// is consulted; the window is assumed uniform.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	l.purgeLocked(now)

	if len(l.stamps) < l.cfg.MaxRequests {
		l.mu.Unlock()
		return nil
	}

	wait := l.waitLocked(now)
	l.mu.Unlock()

	return l.sleep(ctx, wait)
}

// Do is the composed admission path: wait for room, record the request,
// then invoke fn. The record happens before fn runs, so concurrent
// callers see each other's reservations and never jointly exceed the
// cap beyond sequential semantics.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.reserve(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// reserve loops until it can atomically claim a window slot.
func (l *Limiter) reserve(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.purgeLocked(now)

		if len(l.stamps) < l.cfg.MaxRequests {
			l.recordLocked(now)
			l.mu.Unlock()
			limiterAdmittedTotal.Inc()
			return nil
		}

		wait := l.waitLocked(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) sleep(ctx context.Context, wait time.Duration) error {
	limiterThrottledTotal.Inc()
	l.logger.Debug().Dur("wait", wait).Msg("Rate limit reached, waiting for window")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status describes the current window occupancy.
type Status struct {
	// Used is the number of requests in the trailing window.
	Used int

	// Capacity is the configured admission cap.
	Capacity int

	// CanProceed reports whether a request would be admitted immediately.
	CanProceed bool

	// ResetIn is the time until the oldest reservation leaves the
	// window; 0 when the window is empty.
	ResetIn time.Duration
}

// Status returns a snapshot of the current window state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.purgeLocked(now)

	s := Status{
		Used:       len(l.stamps),
		Capacity:   l.cfg.MaxRequests,
		CanProceed: len(l.stamps) < l.cfg.MaxRequests,
	}
	if len(l.stamps) > 0 {
		s.ResetIn = l.cfg.Window - now.Sub(l.stamps[0])
		if s.ResetIn < 0 {
			s.ResetIn = 0
		}
	}
	return s
}

// Reset clears all recorded timestamps.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = nil
	limiterWindowUsed.Set(0)
}

// purgeLocked drops timestamps that have left the trailing window, so
// every stored stamp satisfies now - stamp < Window.
func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
	limiterWindowUsed.Set(float64(len(l.stamps)))
}

func (l *Limiter) recordLocked(now time.Time) {
	l.stamps = append(l.stamps, now)
	limiterWindowUsed.Set(float64(len(l.stamps)))
}

// waitLocked computes how long a blocked caller sleeps: the remainder of
// the oldest stamp's window plus the buffer.
func (l *Limiter) waitLocked(now time.Time) time.Duration {
	wait := l.cfg.Window - now.Sub(l.stamps[0]) + l.cfg.Buffer
	if wait < l.cfg.Buffer {
		wait = l.cfg.Buffer
	}
	return wait
}
