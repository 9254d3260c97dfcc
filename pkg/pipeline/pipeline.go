// Package pipeline composes the resiliency components into a single
// request path: rate-limit admission, connection acquisition, retries
// around the operation, and caching of the result. The components stay
// independent; the pipeline wires them by delegation only.
//
// Concurrent fetches of the same key are deduplicated with singleflight,
// so a burst of identical lookups costs one upstream call.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/quantfeed/resilience/pkg/cache"
	"github.com/quantfeed/resilience/pkg/pool"
	"github.com/quantfeed/resilience/pkg/ratelimit"
	"github.com/quantfeed/resilience/pkg/retry"
)

var pipelineFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "resilience_pipeline_fetches_total",
	Help: "Total pipeline fetches by result",
}, []string{"result"}) // "cached", "fetched", "deduped", "error"

// Operation performs the actual request over an acquired connection and
// returns the value to cache. The pipeline owns connection lifecycle;
// the operation must not release conn itself.
type Operation func(ctx context.Context, conn *pool.Conn) (any, error)

// Config holds the pipeline's collaborators. Pool, Limiter, and Retrier
// are required; Cache is optional and skipped when nil.
type Config struct {
	Cache   *cache.Cache
	Pool    *pool.Pool
	Limiter *ratelimit.Limiter
	Retrier *retry.Manager

	// CacheTTL is applied to fetched values (default 1m). Ignored when
	// Cache is nil.
	CacheTTL time.Duration
}

// Pipeline orchestrates one fetch through all resiliency layers.
type Pipeline struct {
	cfg    Config
	group  singleflight.Group
	logger zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pipeline: pool is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("pipeline: rate limiter is required")
	}
	if cfg.Retrier == nil {
		return nil, fmt.Errorf("pipeline: retry manager is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 1 * time.Minute
	}

	return &Pipeline{
		cfg:    cfg,
		logger: log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Fetch returns the cached value for key, or runs op through the
// rate limiter, pool, and retry manager and caches the result. An empty
// key bypasses the cache and deduplication entirely.
func (p *Pipeline) Fetch(ctx context.Context, baseURL, key string, op Operation) (any, error) {
	if key == "" {
		return p.fetch(ctx, baseURL, key, op)
	}

	if p.cfg.Cache != nil {
		if v, ok := p.cfg.Cache.Get(key); ok {
			pipelineFetchesTotal.WithLabelValues("cached").Inc()
			return v, nil
		}
	}

	v, err, shared := p.group.Do(key, func() (any, error) {
		return p.fetch(ctx, baseURL, key, op)
	})
	if shared {
		pipelineFetchesTotal.WithLabelValues("deduped").Inc()
		p.logger.Debug().Str("key", key).Msg("Fetch joined in-flight call")
	}
	return v, err
}

// FetchAs runs Fetch and asserts the result to type T.
func FetchAs[T any](ctx context.Context, p *Pipeline, baseURL, key string, op Operation) (T, error) {
	v, err := p.Fetch(ctx, baseURL, key, op)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("pipeline: fetched %T for key %q, want %T", v, key, zero)
	}
	return typed, nil
}

// fetch is the uncached path: admission, acquisition, retried operation.
func (p *Pipeline) fetch(ctx context.Context, baseURL, key string, op Operation) (any, error) {
	// A concurrent fetch may have populated the cache while this caller
	// waited on the singleflight leader.
	if key != "" && p.cfg.Cache != nil {
		if v, ok := p.cfg.Cache.Get(key); ok {
			pipelineFetchesTotal.WithLabelValues("cached").Inc()
			return v, nil
		}
	}

	var result any
	err := p.cfg.Limiter.Do(ctx, func(ctx context.Context) error {
		conn, err := p.cfg.Pool.Acquire(ctx, baseURL)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		defer p.cfg.Pool.Release(conn.ID)

		return p.cfg.Retrier.Do(ctx, func(ctx context.Context) error {
			p.cfg.Pool.RecordRequest(conn.ID)
			v, err := op(ctx, conn)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
	})
	if err != nil {
		pipelineFetchesTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("key", key).Str("base_url", baseURL).Msg("Fetch failed")
		return nil, err
	}

	if key != "" && p.cfg.Cache != nil {
		p.cfg.Cache.Set(key, result, p.cfg.CacheTTL)
	}
	pipelineFetchesTotal.WithLabelValues("fetched").Inc()
	return result, nil
}
