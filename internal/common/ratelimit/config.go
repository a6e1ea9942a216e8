package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
	Enabled           bool    `json:"enabled" yaml:"enabled"`

	// Cleanup settings for per-key limiters
	MaxKeys int           `json:"max_keys,omitempty" yaml:"max_keys,omitempty"`
	IdleTTL time.Duration `json:"idle_ttl,omitempty" yaml:"idle_ttl,omitempty"`
}

// DefaultConfig returns the limits applied to the admin write endpoints.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		BurstSize:         10,
		Enabled:           true,
		MaxKeys:           10000,
		IdleTTL:           10 * time.Minute,
	}
}

// Validate validates the rate limiter configuration and fills unset cleanup
// settings.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got %v", c.RequestsPerSecond)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive, got %d", c.BurstSize)
	}

	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	return nil
}
