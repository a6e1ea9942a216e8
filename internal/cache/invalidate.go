package cache

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"link-router/internal/common/logging"
)

// InvalidateOptions tunes InvalidatePattern.
type InvalidateOptions struct {
	// OnlyMemory limits the invalidation to the process-local Hot and Memory tiers.
	OnlyMemory bool
	// BatchSize is the number of keys per Distributed delete; defaults to
	// Config.InvalidateBatchSize.
	BatchSize int
}

// InvalidatePattern removes every key matching glob from the tiers holding
// it and resets its popularity counter. It returns the number of distinct
// keys removed across all tiers.
//
// Hot and Memory are cleared before the first Distributed call is issued.
// Distributed failures are counted and logged, and the keys of failed
// batches are not counted. A malformed glob is the only error returned.
func (o *Orchestrator[V]) InvalidatePattern(ctx context.Context, glob string, opts InvalidateOptions) (int, error) {
	pattern, err := CompilePattern(glob)
	if err != nil {
		o.recorder.RecordOperation("invalidate", resultError, TierAll)
		return 0, err
	}

	removed := make(map[string]struct{})
	for _, store := range []LocalStore[V]{o.hot, o.memory} {
		for _, key := range store.Keys() {
			if pattern.Match(key) && store.Delete(key) {
				removed[key] = struct{}{}
			}
		}
	}

	if !opts.OnlyMemory && o.distributed != nil {
		batchSize := opts.BatchSize
		if batchSize <= 0 {
			batchSize = o.config.InvalidateBatchSize
		}
		for _, key := range o.invalidateDistributed(ctx, pattern, batchSize) {
			removed[key] = struct{}{}
		}
	}

	for key := range removed {
		o.popularity.Reset(key)
	}
	// Counters can outlive every tier copy; they would otherwise resurrect an
	// old class the next time the key is written.
	for _, key := range o.popularity.Keys() {
		if pattern.Match(key) {
			o.popularity.Reset(key)
		}
	}

	o.stats.invalidated.Add(int64(len(removed)))
	o.recorder.RecordOperation("invalidate", resultSuccess, TierAll)
	o.logger.Info("Invalidated cache keys",
		logging.String("pattern", glob),
		logging.Int("removed", len(removed)),
		logging.Bool("only_memory", opts.OnlyMemory),
	)
	return len(removed), nil
}

// invalidateDistributed scans the Distributed tier for pattern and deletes
// the matches in batches with bounded concurrency. It returns the keys of
// the batches that were deleted.
func (o *Orchestrator[V]) invalidateDistributed(ctx context.Context, pattern *Pattern, batchSize int) []string {
	scanned, err := o.distributed.ScanKeys(ctx, pattern.RedisMatch(), o.config.ScanCount)
	if err != nil {
		o.recordFailure(ctx, "invalidate_scan", "", err)
		if len(scanned) == 0 {
			return nil
		}
	}

	matched := lo.Uniq(lo.Filter(scanned, func(key string, _ int) bool {
		return pattern.Match(key)
	}))
	if len(matched) == 0 {
		return nil
	}

	batches := lo.Chunk(matched, batchSize)

	var mu sync.Mutex
	var deleted []string

	var g errgroup.Group
	g.SetLimit(o.config.InvalidateConcurrency)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			if _, err := o.distributed.Delete(ctx, batch...); err != nil {
				o.recordFailure(ctx, "invalidate_delete", "", err)
				return err
			}
			mu.Lock()
			deleted = append(deleted, batch...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return deleted
}
