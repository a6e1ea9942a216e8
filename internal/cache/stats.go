package cache

import "sync/atomic"

// counters are the process-lifetime statistics of one Orchestrator.
type counters struct {
	hotHits         atomic.Int64
	memoryHits      atomic.Int64
	distributedHits atomic.Int64
	misses          atomic.Int64
	errors          atomic.Int64
	sets            atomic.Int64
	deletes         atomic.Int64
	invalidated     atomic.Int64
	warmRuns        atomic.Int64
	warmFailures    atomic.Int64
}

func (c *counters) hits() int64 {
	return c.hotHits.Load() + c.memoryHits.Load() + c.distributedHits.Load()
}

func (c *counters) hitRatio() float64 {
	hits := c.hits()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Statistics is a snapshot of the orchestrator counters and tier sizes.
// DistributedKeys and DistributedMemoryBytes are -1 when the probe failed
// or no Distributed tier is configured.
type Statistics struct {
	HotHits         int64   `json:"hot_hits"`
	MemoryHits      int64   `json:"memory_hits"`
	DistributedHits int64   `json:"distributed_hits"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Errors          int64   `json:"errors"`
	HitRatio        float64 `json:"hit_ratio"`
	Sets            int64   `json:"sets"`
	Deletes         int64   `json:"deletes"`
	Invalidated     int64   `json:"invalidated"`
	WarmRuns        int64   `json:"warm_runs"`
	WarmFailures    int64   `json:"warm_failures"`

	HotItems               int    `json:"hot_items"`
	MemoryItems            int    `json:"memory_items"`
	TrackedKeys            int    `json:"tracked_keys"`
	DistributedKeys        int64  `json:"distributed_keys"`
	DistributedMemoryBytes int64  `json:"distributed_memory_bytes"`
	DistributedBreaker     string `json:"distributed_breaker"`
}

func (c *counters) snapshot() Statistics {
	return Statistics{
		HotHits:         c.hotHits.Load(),
		MemoryHits:      c.memoryHits.Load(),
		DistributedHits: c.distributedHits.Load(),
		Hits:            c.hits(),
		Misses:          c.misses.Load(),
		Errors:          c.errors.Load(),
		HitRatio:        c.hitRatio(),
		Sets:            c.sets.Load(),
		Deletes:         c.deletes.Load(),
		Invalidated:     c.invalidated.Load(),
		WarmRuns:        c.warmRuns.Load(),
		WarmFailures:    c.warmFailures.Load(),
	}
}
