package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantfeed/resilience/internal/testutil"
	"github.com/quantfeed/resilience/pkg/cache"
	"github.com/quantfeed/resilience/pkg/pipeline"
	"github.com/quantfeed/resilience/pkg/pool"
	"github.com/quantfeed/resilience/pkg/ratelimit"
	"github.com/quantfeed/resilience/pkg/retry"
)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	c := cache.New(cache.DefaultConfig())
	t.Cleanup(c.Close)

	p := pool.New(pool.DefaultConfig())
	t.Cleanup(p.Close)

	retryCfg := retry.DefaultConfig()
	retryCfg.BaseDelay = time.Millisecond
	retryCfg.MaxDelay = 5 * time.Millisecond
	retryCfg.Jitter = time.Millisecond

	pl, err := pipeline.New(pipeline.Config{
		Cache:    c,
		Pool:     p,
		Limiter:  ratelimit.New(ratelimit.DefaultConfig()),
		Retrier:  retry.New(retryCfg),
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return pl
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Creating the pipeline registers all component metrics.
	_ = newTestPipeline(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler := promhttp.Handler()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	if !strings.Contains(bodyStr, "resilience_cache_entries") {
		t.Error("Expected metrics output to contain resilience_cache_entries")
	}
}

func TestProxyHandler(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/quotes/AAPL", testutil.NewHealthyResponse(`{"symbol": "AAPL", "price": 187.32}`))

	pl := newTestPipeline(t)
	handler := proxyHandler(pl, &http.Client{Timeout: 5 * time.Second}, upstream.URL())

	t.Run("passthrough", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/quotes/AAPL", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), "AAPL") {
			t.Errorf("Unexpected body: %s", string(body))
		}
	})

	t.Run("cached_second_request", func(t *testing.T) {
		before := upstream.PathCount("/quotes/AAPL")

		req := httptest.NewRequest("GET", "/api/quotes/AAPL", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
		}
		if got := upstream.PathCount("/quotes/AAPL"); got != before {
			t.Errorf("Expected cached response, upstream hit %d more times", got-before)
		}
	})

	t.Run("client_error_passthrough", func(t *testing.T) {
		upstream.SetResponse("/quotes/UNKNOWN", testutil.NewNotFoundResponse())

		req := httptest.NewRequest("GET", "/api/quotes/UNKNOWN", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Result().StatusCode != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Result().StatusCode)
		}
		// Fatal errors must not be retried.
		if got := upstream.PathCount("/quotes/UNKNOWN"); got != 1 {
			t.Errorf("Expected 1 upstream request, got %d", got)
		}
	})

	t.Run("retries_server_errors", func(t *testing.T) {
		upstream.SetResponseSequence("/quotes/FLAKY",
			testutil.NewServerErrorResponse(),
			testutil.NewServerErrorResponse(),
			testutil.NewHealthyResponse(`{"symbol": "FLAKY"}`),
		)

		req := httptest.NewRequest("GET", "/api/quotes/FLAKY", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("Expected status 200 after retries, got %d", w.Result().StatusCode)
		}
		if got := upstream.PathCount("/quotes/FLAKY"); got != 3 {
			t.Errorf("Expected 3 upstream requests, got %d", got)
		}
	})

	t.Run("method_not_allowed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/quotes/AAPL", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Result().StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected status 405, got %d", w.Result().StatusCode)
		}
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_DUR", "250ms")
	t.Setenv("TEST_BAD_INT", "nope")

	if got := getEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %s", got)
	}
	if got := getEnv("TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback = %s", got)
	}
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt bad value = %d", got)
	}
	if got := getEnvDuration("TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("getEnvDuration = %v", got)
	}
}
