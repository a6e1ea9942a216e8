package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"link-router/internal/circuitbreaker"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
)

type link struct {
	Target string `json:"target" msgpack:"target"`
	Clicks int    `json:"clicks" msgpack:"clicks"`
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DistributedTimeout = 100 * time.Millisecond
	cfg.DistributedBulkTimeout = time.Second
	cfg.WarmInitialDelay = 10 * time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T, backend Backend) (*Orchestrator[string], *recordingRecorder) {
	t.Helper()
	return newTestOrchestratorWithConfig(t, testConfig(), backend)
}

func newTestOrchestratorWithConfig(t *testing.T, cfg Config, backend Backend) (*Orchestrator[string], *recordingRecorder) {
	t.Helper()
	recorder := newRecordingRecorder()
	logger := logging.NewNopLogger()
	o, err := New[string](cfg, backend, Options{
		Logger:   logger,
		Recorder: recorder,
		Breaker:  circuitbreaker.New(TierDistributed, circuitbreaker.DefaultConfig(), logger),
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o, recorder
}

func TestNew(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		o, err := New[string](Config{PopularThreshold: 4}, nil, Options{Logger: logging.NewNopLogger()})
		require.NoError(t, err)

		cfg := o.Config()
		assert.Equal(t, int64(4), cfg.PopularThreshold)
		assert.Equal(t, int64(20), cfg.ExtremeThreshold)
		assert.Equal(t, DefaultConfig().MemoryTTL, cfg.MemoryTTL)
	})

	t.Run("rejects extreme below popular", func(t *testing.T) {
		_, err := New[string](Config{PopularThreshold: 10, ExtremeThreshold: 5}, nil, Options{})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("rejects negative sizes", func(t *testing.T) {
		_, err := New[string](Config{HotMaxItems: -1}, nil, Options{})
		require.Error(t, err)
	})
}

func TestOrchestrator_SetGetRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	o.Set(ctx, "url:abc", "https://example.com")

	v, ok := o.Get(ctx, "url:abc")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", v)
	assert.True(t, backend.has("url:abc"))
	assert.Equal(t, 0, backend.callCount("get"), "memory hit must not reach the distributed tier")

	stats := o.Stats(ctx)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestOrchestrator_StructValues(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			backend := newFakeBackend()
			o, err := New[link](testConfig(), backend, Options{Logger: logging.NewNopLogger(), Codec: codec})
			require.NoError(t, err)
			ctx := context.Background()

			want := link{Target: "https://example.com/a", Clicks: 3}
			o.Set(ctx, "url:a", want)

			// drop the local copy so the value is decoded from the backend
			o.memory.Delete("url:a")

			got, ok := o.Get(ctx, "url:a")
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestOrchestrator_GetMiss(t *testing.T) {
	backend := newFakeBackend()
	o, recorder := newTestOrchestrator(t, backend)

	v, ok := o.Get(context.Background(), "missing")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 1, backend.callCount("get"))
	assert.Equal(t, 1, recorder.count("get", resultMiss, TierAll))
	assert.False(t, o.Popularity().Tracked("missing"), "misses are not hits")
}

func TestOrchestrator_DistributedHitPromotesToMemory(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Set(context.Background(), "url:x", `"https://x.example"`, time.Hour))
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	v, ok := o.Get(ctx, "url:x")
	require.True(t, ok)
	assert.Equal(t, "https://x.example", v)

	_, inMemory := o.memory.Get("url:x")
	assert.True(t, inMemory)
	_, inHot := o.hot.Get("url:x")
	assert.False(t, inHot, "only extreme keys are promoted to hot")

	v, ok = o.Get(ctx, "url:x")
	require.True(t, ok)
	assert.Equal(t, "https://x.example", v)
	assert.Equal(t, 1, backend.callCount("get"))

	stats := o.Stats(ctx)
	assert.Equal(t, int64(1), stats.DistributedHits)
	assert.Equal(t, int64(1), stats.MemoryHits)
}

func TestOrchestrator_DeleteIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	o.Set(ctx, "url:gone", "v")
	o.Get(ctx, "url:gone")
	require.True(t, o.Popularity().Tracked("url:gone"))

	o.Delete(ctx, "url:gone")
	o.Delete(ctx, "url:gone")

	_, ok := o.Get(ctx, "url:gone")
	assert.False(t, ok)
	assert.False(t, backend.has("url:gone"))
	assert.False(t, o.Popularity().Tracked("url:gone"))
	assert.Equal(t, int64(2), o.Stats(ctx).Deletes)
}

func TestOrchestrator_PopularKeysGetLongerTTL(t *testing.T) {
	backend := newFakeBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()
	cfg := o.Config()

	o.Set(ctx, "url:p", "v")
	assert.Equal(t, cfg.DistributedTTL, backend.ttl("url:p"))

	for i := int64(0); i < cfg.PopularThreshold; i++ {
		_, ok := o.Get(ctx, "url:p")
		require.True(t, ok)
	}
	assert.Equal(t, ClassPopular, o.Popularity().Classify("url:p"))

	o.Set(ctx, "url:p", "v2")
	assert.Equal(t, cfg.DistributedPopularTTL, backend.ttl("url:p"))

	entry, ok := o.memory.(*MemoryStore[string]).lru.Peek("url:p")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(cfg.MemoryPopularTTL), entry.expiresAt, 5*time.Second)
}

func TestOrchestrator_SetDoesNotChangeClass(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeBackend())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		o.Set(ctx, "url:w", "v")
	}
	assert.Equal(t, ClassDefault, o.Popularity().Classify("url:w"))
	assert.False(t, o.Popularity().Tracked("url:w"))
}

func TestOrchestrator_SetTTLOverride(t *testing.T) {
	backend := newFakeBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	o.SetTTL(ctx, "url:t", "v", 42*time.Second)
	assert.Equal(t, 42*time.Second, backend.ttl("url:t"))

	entry, ok := o.memory.(*MemoryStore[string]).lru.Peek("url:t")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(42*time.Second), entry.expiresAt, 5*time.Second)
}

func TestOrchestrator_ExtremeKeysServedFromHot(t *testing.T) {
	backend := newFakeBackend()
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()
	extreme := o.Config().ExtremeThreshold

	o.Set(ctx, "url:hot", "v")
	for i := int64(0); i < extreme; i++ {
		_, ok := o.Get(ctx, "url:hot")
		require.True(t, ok)
	}
	assert.Equal(t, ClassExtreme, o.Popularity().Classify("url:hot"))

	// with Memory emptied and Distributed down only Hot can answer
	o.memory.Delete("url:hot")
	backend.setFail(true)

	v, ok := o.Get(ctx, "url:hot")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, int64(1), o.Stats(ctx).HotHits)
}

func TestOrchestrator_FailOpen(t *testing.T) {
	backend := newFakeBackend()
	o, recorder := newTestOrchestrator(t, backend)
	ctx := context.Background()
	backend.setFail(true)

	assert.NotPanics(t, func() {
		o.Set(ctx, "url:a", "v")
		o.Delete(ctx, "url:b")
	})

	_, ok := o.Get(ctx, "url:c")
	assert.False(t, ok)

	values := o.GetMultiple(ctx, []string{"url:d", "url:e"})
	assert.Empty(t, values)

	stats := o.Stats(ctx)
	assert.GreaterOrEqual(t, stats.Errors, int64(4))
	assert.Equal(t, int64(-1), stats.DistributedKeys)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Positive(t, recorder.count("get", resultError, TierDistributed))

	// the local write still happened
	v, ok := o.Get(ctx, "url:a")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOrchestrator_DistributedTimeoutIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Set(context.Background(), "url:slow", `"v"`, time.Hour))
	backend.delay = time.Second

	cfg := testConfig()
	cfg.DistributedTimeout = 20 * time.Millisecond
	o, _ := newTestOrchestratorWithConfig(t, cfg, backend)

	start := time.Now()
	_, ok := o.Get(context.Background(), "url:slow")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(1), o.stats.errors.Load())
}

func TestOrchestrator_BreakerStopsCallingBackend(t *testing.T) {
	backend := newFakeBackend()
	backend.setFail(true)
	o, _ := newTestOrchestrator(t, backend)
	ctx := context.Background()

	maxFailures := circuitbreaker.DefaultConfig().MaxFailures
	for i := 0; i < maxFailures+5; i++ {
		o.Get(ctx, "url:down")
	}

	assert.Equal(t, maxFailures, backend.callCount("get"))
	assert.Equal(t, circuitbreaker.StateOpen.String(), o.Stats(ctx).DistributedBreaker)
}

func TestOrchestrator_CorruptValueIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Set(context.Background(), "url:bad", "not-json", time.Hour))
	o, _ := newTestOrchestrator(t, backend)

	_, ok := o.Get(context.Background(), "url:bad")
	assert.False(t, ok)
	assert.Equal(t, int64(1), o.stats.errors.Load())
}

func TestOrchestrator_GetMultiple(t *testing.T) {
	t.Run("empty input makes no calls", func(t *testing.T) {
		backend := newFakeBackend()
		o, _ := newTestOrchestrator(t, backend)

		values := o.GetMultiple(context.Background(), nil)
		assert.Empty(t, values)
		assert.Equal(t, 0, backend.totalCalls())
	})

	t.Run("resolves each tier", func(t *testing.T) {
		backend := newFakeBackend()
		require.NoError(t, backend.Set(context.Background(), "k4", `"v4"`, time.Hour))
		o, _ := newTestOrchestrator(t, backend)
		ctx := context.Background()

		o.hot.Set("k1", "v1", time.Minute)
		o.memory.Set("k2", "v2", time.Minute)

		values := o.GetMultiple(ctx, []string{"k1", "k2", "k3", "k4", "k1"})
		assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2", "k4": "v4"}, values)
		assert.Equal(t, 1, backend.callCount("multi_get"))

		stats := o.Stats(ctx)
		assert.Equal(t, int64(1), stats.HotHits)
		assert.Equal(t, int64(1), stats.MemoryHits)
		assert.Equal(t, int64(1), stats.DistributedHits)
		assert.Equal(t, int64(1), stats.Misses)

		for _, key := range []string{"k1", "k2", "k4"} {
			assert.Equal(t, int64(1), o.Popularity().Count(key), key)
		}
		_, promoted := o.memory.Get("k4")
		assert.True(t, promoted)
	})

	t.Run("local hits skip the backend", func(t *testing.T) {
		backend := newFakeBackend()
		o, _ := newTestOrchestrator(t, backend)
		o.memory.Set("k1", "v1", time.Minute)

		values := o.GetMultiple(context.Background(), []string{"k1"})
		assert.Equal(t, map[string]string{"k1": "v1"}, values)
		assert.Equal(t, 0, backend.callCount("multi_get"))
	})
}

func TestOrchestrator_LocalOnly(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	o.Set(ctx, "k", "v")
	v, ok := o.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	n, err := o.InvalidatePattern(ctx, "*", InvalidateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats := o.Stats(ctx)
	assert.Equal(t, "none", stats.DistributedBreaker)
	assert.Equal(t, int64(-1), stats.DistributedKeys)
	assert.Equal(t, int64(-1), stats.DistributedMemoryBytes)
}

func TestOrchestrator_Stats(t *testing.T) {
	backend := newFakeBackend()
	o, recorder := newTestOrchestrator(t, backend)
	ctx := context.Background()

	o.Set(ctx, "a", "1")
	o.Set(ctx, "b", "2")
	o.Get(ctx, "a")
	o.memory.Delete("b")
	o.Get(ctx, "b")
	o.Get(ctx, "c")

	stats := o.Stats(ctx)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio, 0.0001)
	assert.Equal(t, 2, stats.MemoryItems)
	assert.Equal(t, 2, stats.TrackedKeys)
	assert.Equal(t, int64(2), stats.DistributedKeys)
	assert.Equal(t, int64(1024), stats.DistributedMemoryBytes)
	assert.Equal(t, circuitbreaker.StateClosed.String(), stats.DistributedBreaker)

	assert.Equal(t, 2, recorder.sizes[TierMemory])
	assert.Equal(t, 2, recorder.sizes[TierDistributed])
	assert.InDelta(t, 2.0/3.0, recorder.ratio, 0.0001)
}
