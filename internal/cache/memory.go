package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryStore is the larger process-local tier (L1): a size-bounded LRU with
// a TTL per entry. Expired entries are dropped lazily on access.
type MemoryStore[V any] struct {
	lru *lru.Cache[string, memoryEntry[V]]
	now func() time.Time
}

// NewMemoryStore creates a Memory tier holding at most maxItems entries.
func NewMemoryStore[V any](maxItems int) (*MemoryStore[V], error) {
	c, err := lru.New[string, memoryEntry[V]](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}
	return &MemoryStore[V]{lru: c, now: time.Now}, nil
}

// Get returns the value stored under key and marks it recently used
func (m *MemoryStore[V]) Get(key string) (V, bool) {
	entry, ok := m.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if m.expired(entry) {
		m.lru.Remove(key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores value for ttl. A non-positive ttl keeps the entry until evicted.
func (m *MemoryStore[V]) Set(key string, value V, ttl time.Duration) {
	entry := memoryEntry[V]{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, entry)
}

// Delete removes key and reports whether it was present
func (m *MemoryStore[V]) Delete(key string) bool {
	return m.lru.Remove(key)
}

// Keys returns the unexpired keys from oldest to newest without touching recency
func (m *MemoryStore[V]) Keys() []string {
	all := m.lru.Keys()
	keys := all[:0]
	for _, key := range all {
		if entry, ok := m.lru.Peek(key); ok && !m.expired(entry) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of entries, including expired ones not yet dropped
func (m *MemoryStore[V]) Len() int {
	return m.lru.Len()
}

// Purge removes every entry
func (m *MemoryStore[V]) Purge() {
	m.lru.Purge()
}

func (m *MemoryStore[V]) expired(entry memoryEntry[V]) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}
