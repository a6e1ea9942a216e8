package cache

import (
	"fmt"
	"time"
)

// Config holds the tier TTLs, size bounds, popularity thresholds and
// maintenance settings of an Orchestrator. Zero values are replaced by
// DefaultConfig values in New.
type Config struct {
	HotTTL      time.Duration `yaml:"hot_ttl"`
	HotMaxItems int           `yaml:"hot_max_items"`

	MemoryTTL        time.Duration `yaml:"memory_ttl"`
	MemoryPopularTTL time.Duration `yaml:"memory_popular_ttl"`
	MemoryMaxItems   int           `yaml:"memory_max_items"`

	DistributedTTL        time.Duration `yaml:"distributed_ttl"`
	DistributedPopularTTL time.Duration `yaml:"distributed_popular_ttl"`
	// DistributedTimeout bounds a single read or write against the Distributed tier.
	DistributedTimeout time.Duration `yaml:"distributed_timeout"`
	// DistributedBulkTimeout bounds one SCAN page or one delete batch.
	DistributedBulkTimeout time.Duration `yaml:"distributed_bulk_timeout"`

	PopularThreshold int64 `yaml:"popular_threshold"`
	ExtremeThreshold int64 `yaml:"extreme_threshold"`

	InvalidateBatchSize   int   `yaml:"invalidate_batch_size"`
	InvalidateConcurrency int   `yaml:"invalidate_concurrency"`
	ScanCount             int64 `yaml:"scan_count"`

	WarmInterval time.Duration `yaml:"warm_interval"`
	// WarmInitialDelay is the wait before the first scheduled pass. Zero
	// means the default; a negative value runs the first pass at once.
	WarmInitialDelay time.Duration `yaml:"warm_initial_delay"`
	WarmTimeout      time.Duration `yaml:"warm_timeout"`
	WarmMaxItems     int           `yaml:"warm_max_items"`
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		HotTTL:      time.Minute,
		HotMaxItems: 1000,

		MemoryTTL:        5 * time.Minute,
		MemoryPopularTTL: 30 * time.Minute,
		MemoryMaxItems:   10000,

		DistributedTTL:         time.Hour,
		DistributedPopularTTL:  24 * time.Hour,
		DistributedTimeout:     50 * time.Millisecond,
		DistributedBulkTimeout: 5 * time.Second,

		PopularThreshold: 10,
		ExtremeThreshold: 50,

		InvalidateBatchSize:   50,
		InvalidateConcurrency: 4,
		ScanCount:             100,

		WarmInterval:     30 * time.Minute,
		WarmInitialDelay: 5 * time.Second,
		WarmTimeout:      5 * time.Minute,
		WarmMaxItems:     1000,
	}
}

// WithDefaults fills every zero field from DefaultConfig. An unset
// ExtremeThreshold becomes five times the PopularThreshold.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.HotTTL == 0 {
		c.HotTTL = d.HotTTL
	}
	if c.HotMaxItems == 0 {
		c.HotMaxItems = d.HotMaxItems
	}
	if c.MemoryTTL == 0 {
		c.MemoryTTL = d.MemoryTTL
	}
	if c.MemoryPopularTTL == 0 {
		c.MemoryPopularTTL = d.MemoryPopularTTL
	}
	if c.MemoryMaxItems == 0 {
		c.MemoryMaxItems = d.MemoryMaxItems
	}
	if c.DistributedTTL == 0 {
		c.DistributedTTL = d.DistributedTTL
	}
	if c.DistributedPopularTTL == 0 {
		c.DistributedPopularTTL = d.DistributedPopularTTL
	}
	if c.DistributedTimeout == 0 {
		c.DistributedTimeout = d.DistributedTimeout
	}
	if c.DistributedBulkTimeout == 0 {
		c.DistributedBulkTimeout = d.DistributedBulkTimeout
	}
	if c.PopularThreshold == 0 {
		c.PopularThreshold = d.PopularThreshold
	}
	if c.ExtremeThreshold == 0 {
		c.ExtremeThreshold = 5 * c.PopularThreshold
	}
	if c.InvalidateBatchSize == 0 {
		c.InvalidateBatchSize = d.InvalidateBatchSize
	}
	if c.InvalidateConcurrency == 0 {
		c.InvalidateConcurrency = d.InvalidateConcurrency
	}
	if c.ScanCount == 0 {
		c.ScanCount = d.ScanCount
	}
	if c.WarmInterval == 0 {
		c.WarmInterval = d.WarmInterval
	}
	if c.WarmInitialDelay == 0 {
		c.WarmInitialDelay = d.WarmInitialDelay
	}
	if c.WarmTimeout == 0 {
		c.WarmTimeout = d.WarmTimeout
	}
	if c.WarmMaxItems == 0 {
		c.WarmMaxItems = d.WarmMaxItems
	}
	return c
}

// Validate checks ranges and cross-field constraints
func (c Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"HotTTL", c.HotTTL},
		{"MemoryTTL", c.MemoryTTL},
		{"MemoryPopularTTL", c.MemoryPopularTTL},
		{"DistributedTTL", c.DistributedTTL},
		{"DistributedPopularTTL", c.DistributedPopularTTL},
		{"DistributedTimeout", c.DistributedTimeout},
		{"DistributedBulkTimeout", c.DistributedBulkTimeout},
		{"WarmInterval", c.WarmInterval},
		{"WarmTimeout", c.WarmTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}
	if c.HotMaxItems <= 0 {
		return fmt.Errorf("HotMaxItems must be positive, got %d", c.HotMaxItems)
	}
	if c.MemoryMaxItems <= 0 {
		return fmt.Errorf("MemoryMaxItems must be positive, got %d", c.MemoryMaxItems)
	}
	if c.PopularThreshold <= 0 {
		return fmt.Errorf("PopularThreshold must be positive, got %d", c.PopularThreshold)
	}
	if c.ExtremeThreshold <= c.PopularThreshold {
		return fmt.Errorf("ExtremeThreshold (%d) must be greater than PopularThreshold (%d)",
			c.ExtremeThreshold, c.PopularThreshold)
	}
	if c.InvalidateBatchSize <= 0 {
		return fmt.Errorf("InvalidateBatchSize must be positive, got %d", c.InvalidateBatchSize)
	}
	if c.InvalidateConcurrency <= 0 {
		return fmt.Errorf("InvalidateConcurrency must be positive, got %d", c.InvalidateConcurrency)
	}
	if c.ScanCount <= 0 {
		return fmt.Errorf("ScanCount must be positive, got %d", c.ScanCount)
	}
	if c.WarmMaxItems < 0 {
		return fmt.Errorf("WarmMaxItems must not be negative, got %d", c.WarmMaxItems)
	}
	return nil
}
