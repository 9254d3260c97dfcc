// Package retry executes fallible operations with bounded attempts,
// exponential backoff, and jitter. Errors are classified as retryable or
// fatal; fatal errors surface on first occurrence, while exhausted
// retries surface the last error wrapped with attempt metadata.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfeed/resilience/pkg/apierr"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resilience_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// Context describes the state of one execution for retry predicates.
// It exists only for the duration of a single Do call.
type Context struct {
	// Attempt is the 1-based attempt that just failed.
	Attempt int

	// LastErr is the error from that attempt.
	LastErr error

	// Elapsed is the total time since the first attempt started.
	Elapsed time.Duration
}

// Config holds retry configuration. Zero-valued fields are replaced with
// the documented defaults at construction.
type Config struct {
	// MaxAttempts is the total attempt budget including the first try
	// (default 3).
	MaxAttempts int

	// BaseDelay is the pre-jitter delay after the first failure
	// (default 1s).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth (default 30s).
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor (default 2.0).
	Multiplier float64

	// Jitter is the upper bound of the uniform random offset added to
	// every delay, never subtracted (default 100ms).
	Jitter time.Duration

	// RetryableStatuses overrides the default retryable HTTP status set
	// {429, 500, 502, 503, 504}.
	RetryableStatuses []int

	// ShouldRetry, when set, takes precedence over the default
	// classification.
	ShouldRetry func(err error, rctx Context) bool
}

// DefaultConfig returns a safe default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      100 * time.Millisecond,
	}
}

// ExhaustedError wraps the last error after the attempt budget ran out.
// Its presence distinguishes "gave up after N tries" from "failed fast
// on an unrecoverable error".
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts in %v: %v", e.Attempts, e.Elapsed, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Manager executes operations with the configured retry policy.
// Concurrent Do calls are independent; the Manager itself holds only
// immutable configuration.
type Manager struct {
	cfg       Config
	retryable map[int]struct{}
	logger    zerolog.Logger
}

// New creates a retry manager.
func New(cfg Config) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 100 * time.Millisecond
	}

	statuses := cfg.RetryableStatuses
	if statuses == nil {
		statuses = []int{429, 500, 502, 503, 504}
	}
	retryable := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		retryable[s] = struct{}{}
	}

	return &Manager{
		cfg:       cfg,
		retryable: retryable,
		logger:    log.With().Str("component", "retry").Logger(),
	}
}

// Do runs fn up to MaxAttempts times. It returns nil on the first
// success, the original error for non-retryable failures, and an
// *ExhaustedError once the attempt budget runs out. Backoff waits
// respect ctx cancellation.
func (m *Manager) Do(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				m.logger.Info().Int("attempt", attempt).Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		// Last attempt: no classification, no delay.
		if attempt >= m.cfg.MaxAttempts {
			break
		}

		rctx := Context{Attempt: attempt, LastErr: err, Elapsed: time.Since(start)}
		if !m.shouldRetry(err, rctx) {
			m.logger.Debug().Err(err).Int("attempt", attempt).Msg("Error not retryable, failing fast")
			return err
		}

		kind := kindLabel(err)
		delay := m.backoff(attempt) + m.jitter()

		retriesTotal.WithLabelValues(kind).Inc()
		retryBackoffSeconds.WithLabelValues(kind).Observe(delay.Seconds())

		m.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled on attempt %d: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.Inc()
	m.logger.Warn().
		Err(lastErr).
		Int("max_attempts", m.cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{
		Attempts: m.cfg.MaxAttempts,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// DoValue runs a value-returning operation under m's retry policy.
func DoValue[T any](ctx context.Context, m *Manager, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := m.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// shouldRetry classifies err. A caller-supplied predicate takes
// precedence; otherwise the tagged status and kind decide.
func (m *Manager) shouldRetry(err error, rctx Context) bool {
	if m.cfg.ShouldRetry != nil {
		return m.cfg.ShouldRetry(err, rctx)
	}

	var tagged *apierr.Error
	if errors.As(err, &tagged) {
		if _, ok := m.retryable[tagged.Status]; ok {
			return true
		}
		if tagged.Status == 429 {
			return true
		}
		return tagged.Kind == apierr.KindNetwork || tagged.Kind == apierr.KindTimeout
	}

	return false
}

// backoff computes the pre-jitter delay after attempt n:
// min(BaseDelay * Multiplier^(n-1), MaxDelay).
func (m *Manager) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Exponent cap keeps the float math well clear of overflow.
	exp := attempt - 1
	if exp > 30 {
		exp = 30
	}

	d := time.Duration(float64(m.cfg.BaseDelay) * math.Pow(m.cfg.Multiplier, float64(exp)))
	if d < 0 || d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}

// jitter returns a uniform random offset in [0, Jitter).
func (m *Manager) jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(m.cfg.Jitter)))
}

func kindLabel(err error) string {
	if kind, ok := apierr.KindOf(err); ok {
		return string(kind)
	}
	return "unknown"
}
