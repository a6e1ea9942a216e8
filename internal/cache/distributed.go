package cache

import (
	"context"
	stderrors "errors"
	"time"

	"link-router/internal/circuitbreaker"
	"link-router/internal/common/errors"
)

// DistributedStore adapts a Backend into the typed Distributed tier (L2).
// It owns serialization, per-call timeouts and the circuit breaker, and
// reports every failure as an error; converting failures into misses is
// the Orchestrator's job.
type DistributedStore[V any] struct {
	backend     Backend
	codec       Codec
	breaker     *circuitbreaker.Breaker
	timeout     time.Duration
	bulkTimeout time.Duration
}

// NewDistributedStore wraps backend. A nil codec defaults to JSON.
func NewDistributedStore[V any](backend Backend, codec Codec, breaker *circuitbreaker.Breaker, timeout, bulkTimeout time.Duration) *DistributedStore[V] {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &DistributedStore[V]{
		backend:     backend,
		codec:       codec,
		breaker:     breaker,
		timeout:     timeout,
		bulkTimeout: bulkTimeout,
	}
}

// call runs fn under the breaker with its own deadline and classifies the failure.
func (d *DistributedStore[V]) call(ctx context.Context, operation string, timeout time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := func() error { return fn(callCtx) }
	var err error
	if d.breaker != nil {
		err = d.breaker.Execute(run)
	} else {
		err = run()
	}
	if err == nil {
		return nil
	}

	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		timeoutErr := errors.TimeoutError("distributed " + operation)
		timeoutErr.Cause = err
		return timeoutErr
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.TierUnavailableError(TierDistributed, err).WithContext("operation", operation)
}

// Get fetches and decodes key.
func (d *DistributedStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	var raw string
	var found bool

	err := d.call(ctx, "get", d.timeout, func(ctx context.Context) error {
		var err error
		raw, found, err = d.backend.Get(ctx, key)
		return err
	})
	if err != nil || !found {
		return zero, false, err
	}

	v, err := d.decode(key, raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set encodes value and stores it for ttl.
func (d *DistributedStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	data, err := d.codec.Marshal(value)
	if err != nil {
		return errors.SerializationError("failed to encode value", err).WithContext("key", key)
	}
	return d.call(ctx, "set", d.timeout, func(ctx context.Context) error {
		return d.backend.Set(ctx, key, string(data), ttl)
	})
}

// Delete removes keys as one backend call and returns how many existed.
func (d *DistributedStore[V]) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	timeout := d.timeout
	if len(keys) > 1 {
		timeout = d.bulkTimeout
	}

	var n int64
	err := d.call(ctx, "delete", timeout, func(ctx context.Context) error {
		var err error
		n, err = d.backend.Delete(ctx, keys...)
		return err
	})
	return n, err
}

// MultiGet fetches keys in one backend call. Entries that fail to decode are
// left out of the result and reported through a Serialization error
// alongside the entries that did decode.
func (d *DistributedStore[V]) MultiGet(ctx context.Context, keys []string) (map[string]V, error) {
	result := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var raw map[string]string
	err := d.call(ctx, "multi_get", d.timeout, func(ctx context.Context) error {
		var err error
		raw, err = d.backend.MultiGet(ctx, keys)
		return err
	})
	if err != nil {
		return result, err
	}

	var corrupt []string
	for key, data := range raw {
		v, err := d.decode(key, data)
		if err != nil {
			corrupt = append(corrupt, key)
			continue
		}
		result[key] = v
	}
	if len(corrupt) > 0 {
		return result, errors.SerializationError("failed to decode values", nil).WithContext("keys", corrupt)
	}
	return result, nil
}

// ScanKeys pages through the keyspace with the backend cursor until it
// returns to 0. Each page has its own deadline, so one slow page does not
// consume the budget of the others.
func (d *DistributedStore[V]) ScanKeys(ctx context.Context, match string, count int64) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var page []string
		var next uint64
		err := d.call(ctx, "scan", d.bulkTimeout, func(ctx context.Context) error {
			var err error
			page, next, err = d.backend.Scan(ctx, cursor, match, count)
			return err
		})
		if err != nil {
			return keys, err
		}

		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
		if err := ctx.Err(); err != nil {
			return keys, errors.TierUnavailableError(TierDistributed, err).WithContext("operation", "scan")
		}
	}
}

// Info probes the backend for its approximate key count and memory usage.
func (d *DistributedStore[V]) Info(ctx context.Context) (int64, int64, error) {
	var keys, mem int64
	err := d.call(ctx, "info", d.bulkTimeout, func(ctx context.Context) error {
		var err error
		keys, mem, err = d.backend.Info(ctx)
		return err
	})
	return keys, mem, err
}

// BreakerState returns the breaker state, or "none" without a breaker.
func (d *DistributedStore[V]) BreakerState() string {
	if d.breaker == nil {
		return "none"
	}
	return d.breaker.State().String()
}

func (d *DistributedStore[V]) decode(key, raw string) (V, error) {
	var v V
	if err := d.codec.Unmarshal([]byte(raw), &v); err != nil {
		return v, errors.SerializationError("failed to decode value", err).WithContext("key", key)
	}
	return v, nil
}
