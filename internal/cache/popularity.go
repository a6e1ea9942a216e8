package cache

import (
	"sync"
	"sync/atomic"
)

// Class is the popularity bucket of a key, derived from its hit count.
type Class int

const (
	ClassDefault Class = iota
	ClassPopular
	ClassExtreme
)

func (c Class) String() string {
	switch c {
	case ClassDefault:
		return "default"
	case ClassPopular:
		return "popular"
	case ClassExtreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// PopularityTracker keeps an in-memory hit counter per key.
//
// Counters only grow until Reset, so a key's class moves Default -> Popular
// -> Extreme and never back. Counters are not persisted.
type PopularityTracker struct {
	counters sync.Map // string -> *atomic.Int64
	popular  int64
	extreme  int64
}

// NewPopularityTracker creates a tracker with the given thresholds.
func NewPopularityTracker(popular, extreme int64) *PopularityTracker {
	return &PopularityTracker{popular: popular, extreme: extreme}
}

func (p *PopularityTracker) counter(key string) *atomic.Int64 {
	if c, ok := p.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := p.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// RecordHit increments the counter of key, creating it at 1. It returns the
// new count and the class this hit moved the key into, or ClassDefault when
// no threshold was crossed.
func (p *PopularityTracker) RecordHit(key string) (int64, Class) {
	n := p.counter(key).Add(1)
	switch {
	case n-1 < p.extreme && n >= p.extreme:
		return n, ClassExtreme
	case n-1 < p.popular && n >= p.popular:
		return n, ClassPopular
	}
	return n, ClassDefault
}

// Seed raises the counter of key to at least popularity. It never lowers a counter.
func (p *PopularityTracker) Seed(key string, popularity int64) {
	if popularity <= 0 {
		return
	}
	c := p.counter(key)
	for {
		current := c.Load()
		if current >= popularity || c.CompareAndSwap(current, popularity) {
			return
		}
	}
}

// Count returns the hit count of key, 0 when untracked.
func (p *PopularityTracker) Count(key string) int64 {
	if c, ok := p.counters.Load(key); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}

// Classify returns the class of key from its current count.
func (p *PopularityTracker) Classify(key string) Class {
	return p.ClassOf(p.Count(key))
}

// ClassOf maps a count to its class.
func (p *PopularityTracker) ClassOf(count int64) Class {
	switch {
	case count >= p.extreme:
		return ClassExtreme
	case count >= p.popular:
		return ClassPopular
	default:
		return ClassDefault
	}
}

// Tracked reports whether key has a counter.
func (p *PopularityTracker) Tracked(key string) bool {
	_, ok := p.counters.Load(key)
	return ok
}

// Reset discards the counter of key; the key becomes indistinguishable from
// one never seen.
func (p *PopularityTracker) Reset(key string) {
	p.counters.Delete(key)
}

// Keys returns the tracked keys.
func (p *PopularityTracker) Keys() []string {
	var keys []string
	p.counters.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}

// Len returns the number of tracked keys.
func (p *PopularityTracker) Len() int {
	n := 0
	p.counters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
