// Package warmsource keeps link usage history in Redis and turns it into
// cache warming candidates.
//
// Hit counts live in the sorted set <prefix>hits and the last known value of
// each link in the hash <prefix>values. Supplier reads the highest scores
// first, so a warming pass sees the most requested links.
package warmsource

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"link-router/internal/cache"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
)

// Config holds the key layout and read limit.
type Config struct {
	Prefix string `yaml:"prefix"`
	// Limit caps how many candidates one Supplier call returns.
	Limit int `yaml:"limit"`
}

// DefaultConfig returns the default warm source configuration
func DefaultConfig() Config {
	return Config{
		Prefix: "linkrouter:usage:",
		Limit:  1000,
	}
}

// Source records usage and supplies warming candidates of type V.
type Source[V any] struct {
	rdb    redis.Cmdable
	config Config
	codec  cache.Codec
	logger logging.Logger
}

// New creates a Source on rdb. A nil codec defaults to JSON.
func New[V any](rdb redis.Cmdable, config Config, codec cache.Codec, logger logging.Logger) *Source[V] {
	d := DefaultConfig()
	if config.Prefix == "" {
		config.Prefix = d.Prefix
	}
	if config.Limit <= 0 {
		config.Limit = d.Limit
	}
	if codec == nil {
		codec = cache.JSONCodec{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger().Named("warmsource")
	}
	return &Source[V]{rdb: rdb, config: config, codec: codec, logger: logger}
}

func (s *Source[V]) hitsKey() string   { return s.config.Prefix + "hits" }
func (s *Source[V]) valuesKey() string { return s.config.Prefix + "values" }

// RecordHit adds one request to the usage history of key.
func (s *Source[V]) RecordHit(ctx context.Context, key string) error {
	if err := s.rdb.ZIncrBy(ctx, s.hitsKey(), 1, key).Err(); err != nil {
		return errors.WarmSourceError(err).WithContext("key", key)
	}
	return nil
}

// Put stores the value that warming should load for key.
func (s *Source[V]) Put(ctx context.Context, key string, value V) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return errors.SerializationError("failed to encode value", err).WithContext("key", key)
	}
	if err := s.rdb.HSet(ctx, s.valuesKey(), key, string(data)).Err(); err != nil {
		return errors.WarmSourceError(err).WithContext("key", key)
	}
	return nil
}

// Forget removes key from the usage history and the value hash.
func (s *Source[V]) Forget(ctx context.Context, key string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.hitsKey(), key)
		pipe.HDel(ctx, s.valuesKey(), key)
		return nil
	})
	if err != nil {
		return errors.WarmSourceError(err).WithContext("key", key)
	}
	return nil
}

// Candidates returns up to Limit of the most requested keys that have a
// stored value, most popular first. Keys without a value or with a value
// that no longer decodes are skipped.
func (s *Source[V]) Candidates(ctx context.Context) ([]cache.Candidate[V], error) {
	ranked, err := s.rdb.ZRevRangeWithScores(ctx, s.hitsKey(), 0, int64(s.config.Limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage history: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ranked))
	for i, z := range ranked {
		keys[i] = fmt.Sprint(z.Member)
	}

	values, err := s.rdb.HMGet(ctx, s.valuesKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}

	candidates := make([]cache.Candidate[V], 0, len(keys))
	skipped := 0
	for i, raw := range values {
		data, ok := raw.(string)
		if !ok {
			skipped++
			continue
		}
		var v V
		if err := s.codec.Unmarshal([]byte(data), &v); err != nil {
			s.logger.Warn("Skipping undecodable warm value",
				logging.Field{"key", keys[i]},
				logging.Field{"error", err.Error()},
			)
			skipped++
			continue
		}
		candidates = append(candidates, cache.Candidate[V]{
			Key:        keys[i],
			Value:      v,
			Popularity: int64(ranked[i].Score),
		})
	}

	s.logger.Debug("Loaded warm candidates",
		logging.Field{"candidates", len(candidates)},
		logging.Field{"skipped", skipped},
	)
	return candidates, nil
}

// Supplier adapts the source to cache.Supplier.
func (s *Source[V]) Supplier() cache.Supplier[V] {
	return s.Candidates
}
