package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"link-router/internal/cache"
	"link-router/internal/common/logging"
	"link-router/internal/common/ratelimit"
	"link-router/internal/metrics"
	"link-router/internal/redis"
)

type testEnv struct {
	router  http.Handler
	orch    *cache.Orchestrator[string]
	mr      *miniredis.Miniredis
	metrics *metrics.Collector
}

func setupTestEnv(t *testing.T, warm func(ctx context.Context) cache.WarmStats) *testEnv {
	t.Helper()
	return setupTestEnvWithLimiter(t, warm, nil)
}

func setupTestEnvWithLimiter(t *testing.T, warm func(ctx context.Context) cache.WarmStats, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr(), KeyPrefix: "lr:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	require.NoError(t, err)

	logger := logging.NewNopLogger()
	orch, err := cache.New[string](cache.DefaultConfig(), client, cache.Options{Logger: logger, Recorder: collector})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	router := NewRouter(Dependencies{
		Cache:       orch,
		Logger:      logger,
		Health:      client.Health,
		Warm:        warm,
		Metrics:     collector.Handler(),
		MetricsPath: collector.Path(),
		RateLimit:   limiter,
	})
	return &testEnv{router: router, orch: orch, mr: mr, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	env.mr.Close()
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestRequestIDPropagates(t *testing.T) {
	env := setupTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestStats(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	env.orch.Set(ctx, "url:a", "https://a.example")
	env.orch.Get(ctx, "url:a")
	env.orch.Get(ctx, "url:missing")

	rec := env.do(t, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats cache.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.DistributedKeys)
	assert.Equal(t, "closed", stats.DistributedBreaker)
}

func TestInvalidate(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.orch.Set(ctx, fmt.Sprintf("url:%d", i), "v")
	}
	env.orch.Set(ctx, "session:1", "v")

	rec := env.do(t, http.MethodPost, "/cache/invalidate", `{"pattern":"url:*"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pattern":"url:*","removed":5}`, rec.Body.String())
	assert.False(t, env.mr.Exists("lr:url:0"))
	assert.True(t, env.mr.Exists("lr:session:1"))
}

func TestInvalidate_OnlyMemory(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.orch.Set(context.Background(), "url:a", "v")

	rec := env.do(t, http.MethodPost, "/cache/invalidate", `{"pattern":"url:*","only_memory":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.mr.Exists("lr:url:a"))
}

func TestInvalidate_BadRequests(t *testing.T) {
	env := setupTestEnv(t, nil)

	tests := []struct {
		name     string
		body     string
		wantType string
	}{
		{"malformed body", `{"pattern":`, "validation"},
		{"empty pattern", `{"pattern":""}`, "validation"},
		{"negative batch size", `{"pattern":"url:*","batch_size":-1}`, "validation"},
		{"control character", `{"pattern":"url:\u0001"}`, "invalid_pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/cache/invalidate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body["type"])
		})
	}

	rec := env.do(t, http.MethodGet, "/cache/invalidate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWarm(t *testing.T) {
	t.Run("not mounted without a warmer", func(t *testing.T) {
		env := setupTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/cache/warm", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("runs a pass", func(t *testing.T) {
		var env *testEnv
		env = setupTestEnv(t, func(ctx context.Context) cache.WarmStats {
			return env.orch.WarmCache(ctx, func(ctx context.Context) ([]cache.Candidate[string], error) {
				return []cache.Candidate[string]{{Key: "url:w", Value: "v", Popularity: 3}}, nil
			}, cache.WarmOptions{})
		})

		rec := env.do(t, http.MethodPost, "/cache/warm", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp warmResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.TotalCandidates)
		assert.Equal(t, 1, resp.CachedCount)
		assert.Empty(t, resp.Error)
		assert.True(t, env.mr.Exists("lr:url:w"))
	})

	t.Run("reports supplier failure", func(t *testing.T) {
		var env *testEnv
		env = setupTestEnv(t, func(ctx context.Context) cache.WarmStats {
			return env.orch.WarmCache(ctx, func(ctx context.Context) ([]cache.Candidate[string], error) {
				return nil, fmt.Errorf("history unavailable")
			}, cache.WarmOptions{})
		})

		rec := env.do(t, http.MethodPost, "/cache/warm", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "popular item supplier failed")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	env.orch.Set(ctx, "url:a", "v")
	env.orch.Get(ctx, "url:a")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "linkrouter_cache_operations_total")
	assert.Contains(t, body, `tier="memory"`)
	assert.Contains(t, body, "linkrouter_cache_hit_ratio")
}

func TestRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: 0.001,
		BurstSize:         2,
		Enabled:           true,
	})
	require.NoError(t, err)
	env := setupTestEnvWithLimiter(t, nil, limiter)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/cache/invalidate", `{"pattern":"url:*"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/cache/invalidate", `{"pattern":"url:*"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// Reads are not throttled
	rec = env.do(t, http.MethodGet, "/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
