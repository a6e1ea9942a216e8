// Package config provides configuration management for the link router cache
// service. Values come from built-in defaults, optionally overlaid by a YAML
// file, and finally by environment variables.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Admin server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - CACHE_DISTRIBUTED_ENABLED: Use Redis as the Distributed tier (default: true)
//   - CACHE_KEY_PREFIX: Prefix of every Distributed key (default: linkrouter:cache:)
//
// Cache Tiers:
//   - CACHE_HOT_TTL, CACHE_HOT_MAX_ITEMS (default: 1m, 1000)
//   - CACHE_MEMORY_TTL, CACHE_MEMORY_POPULAR_TTL, CACHE_MEMORY_MAX_ITEMS (default: 5m, 30m, 10000)
//   - CACHE_DISTRIBUTED_TTL, CACHE_DISTRIBUTED_POPULAR_TTL (default: 1h, 24h)
//   - CACHE_DISTRIBUTED_TIMEOUT: Per-call deadline (default: 50ms)
//   - CACHE_POPULAR_THRESHOLD, CACHE_EXTREME_THRESHOLD (default: 10, 5x the popular threshold)
//   - CACHE_INVALIDATE_BATCH_SIZE (default: 50)
//   - CACHE_CODEC: json or msgpack (default: json)
//
// Warming:
//   - CACHE_WARM_ENABLED (default: true)
//   - CACHE_WARM_INTERVAL (default: 30m)
//   - CACHE_WARM_MAX_ITEMS (default: 1000)
//   - WARM_SOURCE_PREFIX: Key prefix of the usage history (default: linkrouter:usage:)
//   - CACHE_WARM_EXCLUSIVE: Let one instance per interval run the scheduled pass (default: false)
//
// Admin Rate Limiting:
//   - ADMIN_RATE_LIMIT_ENABLED (default: true)
//   - ADMIN_RATE_LIMIT_RPS, ADMIN_RATE_LIMIT_BURST (default: 5, 10)
//
// Metrics:
//   - METRICS_ENABLED (default: true)
//   - METRICS_NAMESPACE (default: linkrouter)
//   - METRICS_PATH (default: /metrics)
//
// Example usage:
//
//	cfg, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
//	if err != nil {
//		log.Fatalf("Failed to load configuration: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
	"link-router/internal/cache"
	"link-router/internal/common/ratelimit"
	"link-router/internal/metrics"
	"link-router/internal/redis"
	"link-router/internal/warmsource"
)

// Config holds all configuration values of the service.
type Config struct {
	// Application settings
	Port     string `yaml:"port"`      // Admin server port number
	LogLevel string `yaml:"log_level"` // Logging level (debug, info, warn, error)

	// Redis configuration for the Distributed tier
	RedisAddress       string `yaml:"redis_address"`   // Redis server address (host:port)
	RedisPassword      string `yaml:"redis_password"`  // Redis authentication password
	RedisDB            string `yaml:"redis_db"`        // Redis database number (0-15)
	RedisPoolSize      string `yaml:"redis_pool_size"` // Redis connection pool size
	DistributedEnabled bool   `yaml:"distributed_enabled"`
	KeyPrefix          string `yaml:"key_prefix"`

	// Cache tier settings
	Cache cache.Config `yaml:"cache"`
	Codec string       `yaml:"codec"`

	// Warming
	WarmEnabled      bool   `yaml:"warm_enabled"`
	WarmSourcePrefix string `yaml:"warm_source_prefix"`
	WarmExclusive    bool   `yaml:"warm_exclusive"`

	// Admin write endpoint throttling
	RateLimitEnabled bool    `yaml:"rate_limit_enabled"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps"`
	RateLimitBurst   int     `yaml:"rate_limit_burst"`

	// Metrics
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	MetricsPath      string `yaml:"metrics_path"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Port:     "8080",
		LogLevel: "info",

		RedisAddress:       "localhost:6379",
		RedisDB:            "0",
		RedisPoolSize:      "10",
		DistributedEnabled: true,
		KeyPrefix:          "linkrouter:cache:",

		Cache: defaultCacheConfig(),
		Codec: "json",

		WarmEnabled:      true,
		WarmSourcePrefix: warmsource.DefaultConfig().Prefix,

		RateLimitEnabled: ratelimit.DefaultConfig().Enabled,
		RateLimitRPS:     ratelimit.DefaultConfig().RequestsPerSecond,
		RateLimitBurst:   ratelimit.DefaultConfig().BurstSize,

		MetricsEnabled:   true,
		MetricsNamespace: metrics.DefaultConfig().Namespace,
		MetricsPath:      metrics.DefaultConfig().Path,
	}
}

// defaultCacheConfig leaves ExtremeThreshold unset so the cache derives it
// from whatever PopularThreshold ends up configured.
func defaultCacheConfig() cache.Config {
	c := cache.DefaultConfig()
	c.ExtremeThreshold = 0
	return c
}

// Load creates a new Config from the defaults and environment variables.
//
// This function does not validate the configuration; call Validate() on the
// returned Config before use.
func Load() *Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path on the defaults, then applies
// environment variables on top. An empty path is the same as Load.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides every field whose environment variable is set. The
// current value is the fallback, so file values survive unset variables.
func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.RedisAddress = getEnv("REDIS_ADDRESS", c.RedisAddress)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnv("REDIS_DB", c.RedisDB)
	c.RedisPoolSize = getEnv("REDIS_POOL_SIZE", c.RedisPoolSize)
	c.DistributedEnabled = getBoolEnv("CACHE_DISTRIBUTED_ENABLED", c.DistributedEnabled)
	c.KeyPrefix = getEnv("CACHE_KEY_PREFIX", c.KeyPrefix)

	c.Cache.HotTTL = getDurationEnv("CACHE_HOT_TTL", c.Cache.HotTTL)
	c.Cache.HotMaxItems = getIntEnv("CACHE_HOT_MAX_ITEMS", c.Cache.HotMaxItems)
	c.Cache.MemoryTTL = getDurationEnv("CACHE_MEMORY_TTL", c.Cache.MemoryTTL)
	c.Cache.MemoryPopularTTL = getDurationEnv("CACHE_MEMORY_POPULAR_TTL", c.Cache.MemoryPopularTTL)
	c.Cache.MemoryMaxItems = getIntEnv("CACHE_MEMORY_MAX_ITEMS", c.Cache.MemoryMaxItems)
	c.Cache.DistributedTTL = getDurationEnv("CACHE_DISTRIBUTED_TTL", c.Cache.DistributedTTL)
	c.Cache.DistributedPopularTTL = getDurationEnv("CACHE_DISTRIBUTED_POPULAR_TTL", c.Cache.DistributedPopularTTL)
	c.Cache.DistributedTimeout = getDurationEnv("CACHE_DISTRIBUTED_TIMEOUT", c.Cache.DistributedTimeout)
	c.Cache.PopularThreshold = int64(getIntEnv("CACHE_POPULAR_THRESHOLD", int(c.Cache.PopularThreshold)))
	c.Cache.ExtremeThreshold = int64(getIntEnv("CACHE_EXTREME_THRESHOLD", int(c.Cache.ExtremeThreshold)))
	c.Cache.InvalidateBatchSize = getIntEnv("CACHE_INVALIDATE_BATCH_SIZE", c.Cache.InvalidateBatchSize)
	c.Cache.WarmInterval = getDurationEnv("CACHE_WARM_INTERVAL", c.Cache.WarmInterval)
	c.Cache.WarmMaxItems = getIntEnv("CACHE_WARM_MAX_ITEMS", c.Cache.WarmMaxItems)
	c.Codec = getEnv("CACHE_CODEC", c.Codec)

	c.WarmEnabled = getBoolEnv("CACHE_WARM_ENABLED", c.WarmEnabled)
	c.WarmSourcePrefix = getEnv("WARM_SOURCE_PREFIX", c.WarmSourcePrefix)
	c.WarmExclusive = getBoolEnv("CACHE_WARM_EXCLUSIVE", c.WarmExclusive)

	c.RateLimitEnabled = getBoolEnv("ADMIN_RATE_LIMIT_ENABLED", c.RateLimitEnabled)
	c.RateLimitRPS = getFloatEnv("ADMIN_RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getIntEnv("ADMIN_RATE_LIMIT_BURST", c.RateLimitBurst)

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.MetricsEnabled)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.MetricsPath = getEnv("METRICS_PATH", c.MetricsPath)
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
//
// This function accepts common boolean representations:
//   - "true", "1", "t", "TRUE", "True" -> true
//   - "false", "0", "f", "FALSE", "False" -> false
//   - Any other value or parsing error -> returns defaultValue
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a
// default value when unset or unparsable.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getFloatEnv retrieves a float environment variable value or returns a
// default value when unset or unparsable.
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable ("50ms", "5m")
// or returns a default value when unset or unparsable.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks that the configuration can start the service.
//
// This method checks:
//   - Field format validation (ports, Redis numbers)
//   - The cache tier settings
//   - The codec name
func (c *Config) Validate() error {
	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	// Validate Redis config if the Distributed tier is used
	if c.DistributedEnabled {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when the distributed tier is enabled")
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if err := c.Cache.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if _, err := cache.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("CACHE_CODEC must be 'json' or 'msgpack'")
	}

	rl := c.RateLimitConfig()
	if err := rl.Validate(); err != nil {
		return fmt.Errorf("invalid admin rate limit: %w", err)
	}

	return nil
}

// RedisConfig returns the Distributed tier connection settings. Call after
// Validate; unparsable numbers fall back to zero values.
func (c *Config) RedisConfig() *redis.Config {
	db, _ := strconv.Atoi(c.RedisDB)
	poolSize, _ := strconv.Atoi(c.RedisPoolSize)
	return &redis.Config{
		Address:   c.RedisAddress,
		Password:  c.RedisPassword,
		DB:        db,
		PoolSize:  poolSize,
		KeyPrefix: c.KeyPrefix,
	}
}

// MetricsConfig returns the metrics collector settings.
func (c *Config) MetricsConfig() *metrics.Config {
	mc := metrics.DefaultConfig()
	mc.Enabled = c.MetricsEnabled
	mc.Namespace = c.MetricsNamespace
	if c.MetricsPath != "" {
		mc.Path = c.MetricsPath
	}
	return mc
}

// WarmSourceConfig returns the usage history settings.
func (c *Config) WarmSourceConfig() warmsource.Config {
	return warmsource.Config{
		Prefix: c.WarmSourcePrefix,
		Limit:  c.Cache.WarmMaxItems,
	}
}

// CacheCodec returns the configured Distributed codec.
func (c *Config) CacheCodec() (cache.Codec, error) {
	return cache.CodecByName(c.Codec)
}

// RateLimitConfig returns the admin write endpoint limits.
func (c *Config) RateLimitConfig() ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Enabled = c.RateLimitEnabled
	rl.RequestsPerSecond = c.RateLimitRPS
	rl.BurstSize = c.RateLimitBurst
	return rl
}
