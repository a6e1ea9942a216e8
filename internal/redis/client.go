// Package redis implements the shared Distributed cache tier primitive on top of go-redis.
//
// Values cross this boundary as strings; encoding and decoding of cached
// records happens in the cache package. Every key is stored under the
// configured KeyPrefix, and keys returned by Scan have it stripped again.
package redis

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is a prefixed key/value client for the Distributed tier.
type Client struct {
	rdb    *redis.Client
	config *Config
}

// Config holds the connection settings.
type Config struct {
	Address      string        `json:"address" yaml:"address"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Cmdable exposes the raw go-redis commands for collaborators that share the
// connection pool, such as the warm-source supplier.
func (c *Client) Cmdable() redis.Cmdable {
	return c.rdb
}

// Universal returns the underlying client for libraries that take a
// go-redis UniversalClient, such as the redsync pool.
func (c *Client) Universal() redis.UniversalClient {
	return c.rdb
}

// Get returns the value stored under key. A missing key is reported as
// found=false with a nil error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefixed(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores value under key with the given TTL. A zero TTL means no expiry.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefixed(key), value, ttl).Err()
}

// Delete removes keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefixed(k)
	}
	return c.rdb.Del(ctx, full...).Result()
}

// MultiGet fetches keys with a single MGET. Missing keys are absent from the result.
func (c *Client) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefixed(k)
	}

	values, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		switch s := v.(type) {
		case string:
			result[keys[i]] = s
		case []byte:
			result[keys[i]] = string(s)
		}
	}
	return result, nil
}

// Scan runs one SCAN step. match is a Redis glob relative to the key prefix.
// The returned keys have the prefix stripped; a returned cursor of 0 means
// the iteration is complete.
func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	keys, next, err := c.rdb.Scan(ctx, cursor, EscapeGlob(c.config.KeyPrefix)+match, count).Result()
	if err != nil {
		return nil, 0, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, c.config.KeyPrefix)
	}
	return keys, next, nil
}

// Info returns the approximate key count of the selected database and the
// server's used memory in bytes. Memory is reported as 0 when the server
// does not expose it.
func (c *Client) Info(ctx context.Context) (int64, int64, error) {
	keys, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return 0, 0, err
	}

	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return keys, 0, nil
	}
	return keys, parseUsedMemory(info), nil
}

func (c *Client) prefixed(key string) string {
	return c.config.KeyPrefix + key
}

func parseUsedMemory(info string) int64 {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// EscapeGlob escapes the Redis glob metacharacters ?, [, ] and \ in s,
// leaving * untouched.
func EscapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
