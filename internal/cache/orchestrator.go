package cache

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"link-router/internal/circuitbreaker"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
)

// Options carries the optional collaborators of an Orchestrator.
type Options struct {
	// Logger defaults to the global logger named "cache".
	Logger logging.Logger
	// Recorder defaults to NopRecorder.
	Recorder Recorder
	// Codec serializes values for the Distributed tier; defaults to JSON.
	Codec Codec
	// Breaker guards the Distributed tier; defaults to circuitbreaker.DefaultConfig.
	Breaker *circuitbreaker.Breaker
}

// Orchestrator is the three-tier cache for values of type V. It owns its
// tiers, popularity counters, statistics and warm schedules; two
// orchestrators never share state.
//
// Every read, write and delete fails open: tier faults are logged, counted
// and turned into misses or skipped writes, never returned to the caller.
type Orchestrator[V any] struct {
	config      Config
	hot         LocalStore[V]
	memory      LocalStore[V]
	distributed *DistributedStore[V]
	popularity  *PopularityTracker

	stats    counters
	recorder Recorder
	logger   logging.Logger

	schedMu   sync.Mutex
	schedules map[int]func()
	nextID    int
}

// New builds an Orchestrator. A nil backend runs the cache with the two
// process-local tiers only.
func New[V any](config Config, backend Backend, opts Options) (*Orchestrator[V], error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger().Named("cache")
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}

	memory, err := NewMemoryStore[V](config.MemoryMaxItems)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	o := &Orchestrator[V]{
		config:     config,
		hot:        NewHotStore[V](config.HotTTL, config.HotMaxItems),
		memory:     memory,
		popularity: NewPopularityTracker(config.PopularThreshold, config.ExtremeThreshold),
		recorder:   recorder,
		logger:     logger,
		schedules:  make(map[int]func()),
	}

	if backend != nil {
		breaker := opts.Breaker
		if breaker == nil {
			breaker = circuitbreaker.New(TierDistributed, circuitbreaker.DefaultConfig(), logger)
		}
		o.distributed = NewDistributedStore[V](backend, opts.Codec, breaker,
			config.DistributedTimeout, config.DistributedBulkTimeout)
	}

	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator[V]) Config() Config {
	return o.config
}

// Popularity exposes the popularity tracker.
func (o *Orchestrator[V]) Popularity() *PopularityTracker {
	return o.popularity
}

// Get looks key up in Hot, then Memory, then Distributed, stopping at the
// first hit. A Distributed hit is copied into Memory, and any hit that
// leaves the key Extreme is copied into Hot. A fault in the Distributed
// tier counts as an error and a miss for that tier.
func (o *Orchestrator[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := o.hot.Get(key); ok {
		o.recordHit(TierHot, key)
		return v, true
	}

	if v, ok := o.memory.Get(key); ok {
		if o.recordHit(TierMemory, key) == ClassExtreme {
			o.hot.Set(key, v, o.config.HotTTL)
		}
		return v, true
	}

	if o.distributed != nil {
		v, ok, err := o.distributed.Get(ctx, key)
		switch {
		case err != nil:
			o.recordFailure(ctx, "get", key, err)
		case ok:
			o.promote(key, v, o.recordHit(TierDistributed, key))
			return v, true
		}
	}

	o.recordMiss("get")
	var zero V
	return zero, false
}

// promote copies a value found in the Distributed tier into the faster tiers.
func (o *Orchestrator[V]) promote(key string, v V, class Class) {
	memoryTTL, _ := o.ttlFor(class)
	o.memory.Set(key, v, memoryTTL)
	if class == ClassExtreme {
		o.hot.Set(key, v, o.config.HotTTL)
	}
}

// Set writes value to Memory and Distributed with the TTL of the key's
// current class, and to Hot when the key is already Extreme. Set never
// changes the class.
func (o *Orchestrator[V]) Set(ctx context.Context, key string, value V) {
	o.write(ctx, key, value, 0, o.popularity.Classify(key) == ClassExtreme)
}

// SetTTL is Set with an explicit TTL that overrides the class-derived ones.
// The Hot copy of an Extreme key never outlives ttl.
func (o *Orchestrator[V]) SetTTL(ctx context.Context, key string, value V, ttl time.Duration) {
	o.write(ctx, key, value, ttl, o.popularity.Classify(key) == ClassExtreme)
}

func (o *Orchestrator[V]) write(ctx context.Context, key string, value V, ttl time.Duration, toHot bool) {
	memoryTTL, distributedTTL := o.ttlFor(o.popularity.Classify(key))
	if ttl > 0 {
		memoryTTL, distributedTTL = ttl, ttl
	}

	o.memory.Set(key, value, memoryTTL)
	o.recorder.RecordOperation("set", resultSuccess, TierMemory)

	if toHot {
		hotTTL := o.config.HotTTL
		if ttl > 0 && ttl < hotTTL {
			hotTTL = ttl
		}
		o.hot.Set(key, value, hotTTL)
		o.recorder.RecordOperation("set", resultSuccess, TierHot)
	}

	if o.distributed != nil {
		if err := o.distributed.Set(ctx, key, value, distributedTTL); err != nil {
			o.recordFailure(ctx, "set", key, err)
		} else {
			o.recorder.RecordOperation("set", resultSuccess, TierDistributed)
		}
	}

	o.stats.sets.Add(1)
}

// ttlFor returns the Memory and Distributed TTLs for class.
func (o *Orchestrator[V]) ttlFor(class Class) (time.Duration, time.Duration) {
	if class >= ClassPopular {
		return o.config.MemoryPopularTTL, o.config.DistributedPopularTTL
	}
	return o.config.MemoryTTL, o.config.DistributedTTL
}

// Delete removes key from every tier and discards its popularity counter.
// Deleting an absent key is a no-op.
func (o *Orchestrator[V]) Delete(ctx context.Context, key string) {
	o.hot.Delete(key)
	o.memory.Delete(key)
	o.popularity.Reset(key)

	if o.distributed != nil {
		if _, err := o.distributed.Delete(ctx, key); err != nil {
			o.recordFailure(ctx, "delete", key, err)
		} else {
			o.recorder.RecordOperation("delete", resultSuccess, TierDistributed)
		}
	}

	o.stats.deletes.Add(1)
	o.recorder.RecordOperation("delete", resultSuccess, TierAll)
}

// GetMultiple resolves keys from Hot and Memory, then fetches the remainder
// with a single Distributed multi-get. Keys found nowhere are absent from
// the returned map. An empty input makes no tier calls.
func (o *Orchestrator[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	result := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return result
	}

	var pending []string
	for _, key := range lo.Uniq(keys) {
		if v, ok := o.hot.Get(key); ok {
			o.recordHit(TierHot, key)
			result[key] = v
			continue
		}
		if v, ok := o.memory.Get(key); ok {
			if o.recordHit(TierMemory, key) == ClassExtreme {
				o.hot.Set(key, v, o.config.HotTTL)
			}
			result[key] = v
			continue
		}
		pending = append(pending, key)
	}

	if len(pending) > 0 && o.distributed != nil {
		values, err := o.distributed.MultiGet(ctx, pending)
		if err != nil {
			o.recordFailure(ctx, "get_multiple", "", err)
		}
		for key, v := range values {
			o.promote(key, v, o.recordHit(TierDistributed, key))
			result[key] = v
		}
	}

	for _, key := range pending {
		if _, ok := result[key]; !ok {
			o.recordMiss("get_multiple")
		}
	}
	return result
}

// Stats returns the process-lifetime counters and the current tier sizes.
// The Distributed probe is best effort.
func (o *Orchestrator[V]) Stats(ctx context.Context) Statistics {
	s := o.stats.snapshot()
	s.HotItems = o.hot.Len()
	s.MemoryItems = o.memory.Len()
	s.TrackedKeys = o.popularity.Len()
	s.DistributedKeys, s.DistributedMemoryBytes = -1, -1
	s.DistributedBreaker = "none"

	if o.distributed != nil {
		s.DistributedBreaker = o.distributed.BreakerState()
		if keys, mem, err := o.distributed.Info(ctx); err == nil {
			s.DistributedKeys, s.DistributedMemoryBytes = keys, mem
		} else {
			o.logger.Debug("Distributed stats probe failed", logging.Err(err))
		}
	}

	o.recorder.SetTierSize(TierHot, s.HotItems)
	o.recorder.SetTierSize(TierMemory, s.MemoryItems)
	if s.DistributedKeys >= 0 {
		o.recorder.SetTierSize(TierDistributed, int(s.DistributedKeys))
	}
	o.recorder.SetHitRatio(s.HitRatio)
	return s
}

// recordHit counts a hit in tier and returns the key's class after it.
func (o *Orchestrator[V]) recordHit(tier, key string) Class {
	switch tier {
	case TierHot:
		o.stats.hotHits.Add(1)
	case TierMemory:
		o.stats.memoryHits.Add(1)
	case TierDistributed:
		o.stats.distributedHits.Add(1)
	}
	o.recorder.RecordOperation("get", resultHit, tier)
	o.recorder.SetHitRatio(o.stats.hitRatio())

	count, crossed := o.popularity.RecordHit(key)
	if crossed != ClassDefault {
		o.logger.Debug("Key reached popularity class",
			logging.String("key", key),
			logging.String("class", crossed.String()),
			logging.Int64("hits", count),
		)
	}
	return o.popularity.ClassOf(count)
}

func (o *Orchestrator[V]) recordMiss(operation string) {
	o.stats.misses.Add(1)
	o.recorder.RecordOperation(operation, resultMiss, TierAll)
	o.recorder.SetHitRatio(o.stats.hitRatio())
}

func (o *Orchestrator[V]) recordFailure(ctx context.Context, operation, key string, err error) {
	o.stats.errors.Add(1)
	o.recorder.RecordOperation(operation, resultError, TierDistributed)

	fields := []logging.Field{
		logging.String("operation", operation),
		logging.String("tier", TierDistributed),
		logging.String("error_type", string(errors.GetType(err))),
	}
	if key != "" {
		fields = append(fields, logging.String("key", key))
	}

	logger := o.logger.WithContext(ctx)
	if errors.IsType(err, errors.ErrTypeTierUnavailable) && o.distributed.BreakerState() == circuitbreaker.StateOpen.String() {
		// An open breaker rejects every call; one warning per transition is logged by the breaker.
		logger.Debug("Distributed tier skipped", append(fields, logging.Err(err))...)
		return
	}
	logger.Warn("Distributed tier call failed", append(fields, logging.Err(err))...)
}
