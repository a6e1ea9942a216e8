// Package cache provides the multi-tier cache that sits in front of the
// link store.
//
// Three tiers are consulted from fastest to slowest:
//
// 1. Hot (L0) - github.com/patrickmn/go-cache, bounded, short TTL
//   - only keys in the Extreme popularity class are promoted here
//
// 2. Memory (L1) - github.com/hashicorp/golang-lru/v2 with a TTL per entry
//   - every write lands here
//
// 3. Distributed (L2) - a Backend, normally internal/redis
//   - shared by every instance
//   - values pass through a Codec (JSON or MessagePack)
//   - calls have their own deadline and run behind a circuit breaker
//
// A per-key hit counter moves keys from Default to Popular (longer TTLs) to
// Extreme (Hot eligible). Invalidation takes * globs and clears the local
// tiers before paging through the Distributed keyspace with SCAN.
//
// Usage:
//
//	orch, err := cache.New[Link](cache.DefaultConfig(), redisClient, cache.Options{})
//	orch.Set(ctx, "url:abc", link)
//	link, found := orch.Get(ctx, "url:abc")
//	removed, err := orch.InvalidatePattern(ctx, "url:*", cache.InvalidateOptions{})
//	cancel := orch.ScheduleWarmCache(supplier, time.Hour, cache.WarmOptions{MaxItems: 500})
//
// The Orchestrator fails open: a tier fault is logged and counted and the
// caller sees a miss.
package cache
