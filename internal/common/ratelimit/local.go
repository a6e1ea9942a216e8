// Package ratelimit throttles callers with token buckets from
// golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per caller key.
type Limiter struct {
	mu       sync.Mutex
	config   Config
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewLimiter creates a keyed limiter.
func NewLimiter(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		config:   config,
		limiters: make(map[string]*limiterEntry),
	}, nil
}

// Allow reports whether key may proceed now.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.config.MaxKeys {
			l.cleanup(now)
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize),
		}
		l.limiters[key] = entry
	}
	entry.lastUsed = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// cleanup drops idle keys. If every key is recent the oldest one goes so the
// map stays bounded. Caller holds mu.
func (l *Limiter) cleanup(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range l.limiters {
		if now.Sub(entry.lastUsed) > l.config.IdleTTL {
			delete(l.limiters, key)
			continue
		}
		if oldestKey == "" || entry.lastUsed.Before(oldest) {
			oldestKey, oldest = key, entry.lastUsed
		}
	}
	if len(l.limiters) >= l.config.MaxKeys && oldestKey != "" {
		delete(l.limiters, oldestKey)
	}
}
