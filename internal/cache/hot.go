package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// HotStore is the ultra-fast tier (L0). It wraps patrickmn/go-cache and adds
// an item bound: when full, expired items are purged first and then the item
// closest to expiry is evicted.
type HotStore[V any] struct {
	items    *gocache.Cache
	ttl      time.Duration
	maxItems int

	// evictMu serializes the full-check and eviction so concurrent writers
	// cannot overshoot the bound. Reads never take it.
	evictMu sync.Mutex
}

// NewHotStore creates a Hot tier holding at most maxItems entries for ttl each.
func NewHotStore[V any](ttl time.Duration, maxItems int) *HotStore[V] {
	cleanup := ttl
	if cleanup < 30*time.Second {
		cleanup = 30 * time.Second
	}
	return &HotStore[V]{
		items:    gocache.New(ttl, cleanup),
		ttl:      ttl,
		maxItems: maxItems,
	}
}

// Get returns the value stored under key
func (h *HotStore[V]) Get(key string) (V, bool) {
	raw, found := h.items.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := raw.(V)
	return v, ok
}

// Set stores value for ttl, or for the store TTL when ttl is not positive.
func (h *HotStore[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = h.ttl
	}

	h.evictMu.Lock()
	defer h.evictMu.Unlock()

	if h.maxItems > 0 && h.items.ItemCount() >= h.maxItems {
		if _, exists := h.items.Get(key); !exists {
			h.evictOne()
		}
	}
	h.items.Set(key, value, ttl)
}

func (h *HotStore[V]) evictOne() {
	h.items.DeleteExpired()
	if h.items.ItemCount() < h.maxItems {
		return
	}

	var victim string
	var earliest int64
	for key, item := range h.items.Items() {
		if victim == "" || item.Expiration < earliest {
			victim, earliest = key, item.Expiration
		}
	}
	if victim != "" {
		h.items.Delete(victim)
	}
}

// Delete removes key and reports whether it was present
func (h *HotStore[V]) Delete(key string) bool {
	_, found := h.items.Get(key)
	h.items.Delete(key)
	return found
}

// Keys returns the unexpired keys
func (h *HotStore[V]) Keys() []string {
	items := h.items.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of stored items, including expired ones not yet purged
func (h *HotStore[V]) Len() int {
	return h.items.ItemCount()
}

// Flush removes every item
func (h *HotStore[V]) Flush() {
	h.items.Flush()
}
