package cache

import (
	"context"
	"time"
)

// Tier names used in statistics, metrics labels and log fields.
const (
	TierHot         = "hot"
	TierMemory      = "memory"
	TierDistributed = "distributed"
	// TierAll labels outcomes that span every tier, such as a full miss.
	TierAll = "all"
)

// LocalStore is a synchronous, bounded, process-local tier.
type LocalStore[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string) bool
	// Keys returns a snapshot of the unexpired keys.
	Keys() []string
	Len() int
}

// Backend is the string-level primitive of the shared Distributed tier.
// A missing key is reported as found=false with a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	// MultiGet omits missing keys from the result.
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	// Scan runs one cursor step; a returned cursor of 0 ends the iteration.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// Info returns the approximate key count and memory usage in bytes.
	Info(ctx context.Context) (keys int64, memoryBytes int64, err error)
}

// Recorder receives labeled observations for every cache operation.
type Recorder interface {
	RecordOperation(operation, result, tier string)
	SetHitRatio(ratio float64)
	SetTierSize(tier string, size int)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(operation, result, tier string) {}
func (NopRecorder) SetHitRatio(ratio float64)                      {}
func (NopRecorder) SetTierSize(tier string, size int)              {}

// Operation results used as metric labels.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultSuccess = "success"
	resultError   = "error"
)
