// Package models defines the records held by the link router cache.
package models

import "time"

// Link is a resolved short link as served by the redirect path.
type Link struct {
	Code       string     `json:"code" msgpack:"code"`
	TargetURL  string     `json:"target_url" msgpack:"target_url"`
	Owner      string     `json:"owner,omitempty" msgpack:"owner,omitempty"`
	StatusCode int        `json:"status_code" msgpack:"status_code"`
	CreatedAt  time.Time  `json:"created_at" msgpack:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" msgpack:"expires_at,omitempty"`
}

// CacheKey returns the cache key of the link.
func (l Link) CacheKey() string {
	return LinkKey(l.Code)
}

// LinkKey returns the cache key for a short code.
func LinkKey(code string) string {
	return "url:" + code
}

// Expired reports whether the link has passed its expiry at now.
func (l Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
