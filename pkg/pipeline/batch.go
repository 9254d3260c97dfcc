package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/quantfeed/resilience/pkg/pool"
)

// BatchConfig holds batch fetch configuration.
type BatchConfig struct {
	// MaxConcurrency is the number of parallel workers (default 10).
	MaxConcurrency int

	// Timeout bounds each individual fetch (default 15s).
	Timeout time.Duration
}

// DefaultBatchConfig returns safe batch defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// KeyOperation performs the request for one key of a batch.
type KeyOperation func(ctx context.Context, conn *pool.Conn, key string) (any, error)

// BatchResult is the outcome for one key of a batch fetch.
type BatchResult struct {
	Key   string
	Value any
	Err   error
}

// FetchBatch fetches many keys through the pipeline with a bounded
// worker pool. Every key goes through the full resiliency path, so the
// rate limiter and pool still gate the actual concurrency. Failed keys
// carry their error in the result map; one key failing never aborts the
// rest of the batch.
func (p *Pipeline) FetchBatch(ctx context.Context, baseURL string, keys []string, cfg BatchConfig, op KeyOperation) map[string]BatchResult {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	start := time.Now()
	results := make(map[string]BatchResult, len(keys))
	var resultsMu sync.Mutex

	queue := make(chan string, len(keys))
	for _, key := range keys {
		queue <- key
	}
	close(queue)

	workers := cfg.MaxConcurrency
	if workers > len(keys) {
		workers = len(keys)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range queue {
				select {
				case <-ctx.Done():
					resultsMu.Lock()
					results[key] = BatchResult{Key: key, Err: ctx.Err()}
					resultsMu.Unlock()
					continue
				default:
				}

				fetchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
				v, err := p.Fetch(fetchCtx, baseURL, key, func(ctx context.Context, conn *pool.Conn) (any, error) {
					return op(ctx, conn, key)
				})
				cancel()

				resultsMu.Lock()
				results[key] = BatchResult{Key: key, Value: v, Err: err}
				resultsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	p.logger.Debug().
		Int("keys", len(keys)).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}
