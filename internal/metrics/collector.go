// Package metrics exports cache observability as Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "linkrouter",
		Subsystem: "cache",
		Labels:    make(map[string]string),
	}
}

// Collector records cache operations into a private Prometheus registry.
// A disabled collector accepts every call and records nothing.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	hitRatio   prometheus.Gauge
	tierItems  *prometheus.GaugeVec
}

// NewCollector creates a collector and registers its metrics
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operations_total",
			Help:        "Cache operations by operation, result and tier",
			ConstLabels: config.Labels,
		}, []string{"operation", "result", "tier"}),
		hitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "hit_ratio",
			Help:        "Process-lifetime ratio of hits to lookups",
			ConstLabels: config.Labels,
		}),
		tierItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tier_items",
			Help:        "Approximate number of entries held by each tier",
			ConstLabels: config.Labels,
		}, []string{"tier"}),
	}

	for _, collector := range []prometheus.Collector{c.operations, c.hitRatio, c.tierItems} {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// RecordOperation increments the operation counter
func (c *Collector) RecordOperation(operation, result, tier string) {
	if !c.config.Enabled {
		return
	}
	c.operations.WithLabelValues(operation, result, tier).Inc()
}

// SetHitRatio updates the hit ratio gauge
func (c *Collector) SetHitRatio(ratio float64) {
	if !c.config.Enabled {
		return
	}
	c.hitRatio.Set(ratio)
}

// SetTierSize updates the entry count of a tier
func (c *Collector) SetTierSize(tier string, size int) {
	if !c.config.Enabled {
		return
	}
	c.tierItems.WithLabelValues(tier).Set(float64(size))
}

// Registry returns the underlying registry, or nil when disabled
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Path returns the configured HTTP path
func (c *Collector) Path() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}
