package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantfeed/resilience/pkg/apierr"
	"github.com/quantfeed/resilience/pkg/cache"
	"github.com/quantfeed/resilience/pkg/logging"
	"github.com/quantfeed/resilience/pkg/pipeline"
	"github.com/quantfeed/resilience/pkg/pool"
	"github.com/quantfeed/resilience/pkg/ratelimit"
	"github.com/quantfeed/resilience/pkg/retry"
)

// proxiedResponse is what the pipeline caches for one upstream GET.
type proxiedResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	upstreamURL := getEnv("UPSTREAM_URL", "https://api.example.com")
	cacheTTL := getEnvDuration("CACHE_TTL", time.Minute)
	maxConns := getEnvInt("MAX_CONNECTIONS", 10)
	maxRequests := getEnvInt("RATE_LIMIT_MAX", 100)
	window := getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
	})

	c := cache.New(cache.DefaultConfig())
	defer c.Close()

	poolCfg := pool.DefaultConfig()
	poolCfg.MaxConnections = maxConns
	p := pool.New(poolCfg)
	defer p.Close()

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.MaxRequests = maxRequests
	limiterCfg.Window = window
	limiter := ratelimit.New(limiterCfg)

	retrier := retry.New(retry.DefaultConfig())

	pl, err := pipeline.New(pipeline.Config{
		Cache:    c,
		Pool:     p,
		Limiter:  limiter,
		Retrier:  retrier,
		CacheTTL: cacheTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	http.HandleFunc("/health", healthHandler)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/api/", proxyHandler(pl, httpClient, upstreamURL))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("upstream", upstreamURL).
		Dur("cache_ttl", cacheTTL).
		Int("max_connections", maxConns).
		Msg("Starting resilience proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// proxyHandler forwards GET requests to the upstream through the full
// resiliency path. The request path after /api becomes both the
// upstream endpoint and the cache key.
func proxyHandler(pl *pipeline.Pipeline, httpClient *http.Client, upstreamURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
			return
		}

		// Example: /api/quotes/AAPL -> /quotes/AAPL
		endpoint := r.URL.Path[len("/api"):]

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := pipeline.FetchAs[proxiedResponse](ctx, pl, upstreamURL, endpoint, func(ctx context.Context, conn *pool.Conn) (any, error) {
			return fetchUpstream(ctx, httpClient, conn.BaseURL+endpoint)
		})
		if err != nil {
			if status, ok := apierr.StatusOf(err); ok && status >= 400 && status < 500 {
				http.Error(w, err.Error(), status)
				return
			}
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}

		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body)
	}
}

// fetchUpstream performs one upstream GET and classifies failures so the
// retry manager can tell transient errors from fatal ones.
func fetchUpstream(ctx context.Context, httpClient *http.Client, url string) (proxiedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return proxiedResponse{}, apierr.Wrap(apierr.KindClient, 0, "build request", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return proxiedResponse{}, apierr.Wrap(apierr.KindNetwork, 0, "upstream unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return proxiedResponse{}, apierr.Wrap(apierr.KindNetwork, resp.StatusCode, "read response", err)
	}

	if resp.StatusCode >= 400 {
		return proxiedResponse{}, apierr.FromStatus(resp.StatusCode, string(body))
	}

	return proxiedResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
