package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
)

// Candidate is one item offered for warming.
type Candidate[V any] struct {
	Key        string `json:"key"`
	Value      V      `json:"value"`
	Popularity int64  `json:"popularity"`
}

// Supplier returns the items expected to be requested soon, typically read
// from a store of usage history.
type Supplier[V any] func(ctx context.Context) ([]Candidate[V], error)

// WarmOptions tunes one warming pass.
type WarmOptions struct {
	// MinPopularity drops candidates below it.
	MinPopularity int64
	// MaxItems keeps only the most popular candidates; defaults to Config.WarmMaxItems.
	MaxItems int
	// TTL overrides the class-derived TTLs when positive.
	TTL time.Duration
	// PreloadHot also writes candidates whose seeded popularity is Extreme to Hot.
	PreloadHot bool
}

// WarmStats reports the outcome of one warming pass.
type WarmStats struct {
	TotalCandidates int           `json:"total_candidates"`
	CachedCount     int           `json:"cached_count"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
}

// WarmCache pre-populates the tiers from supplier. Candidates are filtered
// by MinPopularity and truncated to the MaxItems most popular. Each kept
// candidate seeds its popularity counter, so it is classified correctly
// before its first read, and is then written through Memory and Distributed.
// Keys that were Extreme before the pass are refreshed in Hot as Set would;
// PreloadHot also puts keys that only the seed made Extreme into Hot.
//
// A supplier failure aborts the pass and is returned in WarmStats.Err as a
// WarmSource error.
func (o *Orchestrator[V]) WarmCache(ctx context.Context, supplier Supplier[V], opts WarmOptions) WarmStats {
	start := time.Now()
	stats := WarmStats{}
	o.stats.warmRuns.Add(1)

	candidates, err := callSupplier(ctx, supplier)
	if err != nil {
		stats.Err = errors.WarmSourceError(err)
		stats.Duration = time.Since(start)
		o.stats.warmFailures.Add(1)
		o.recorder.RecordOperation("warm", resultError, TierAll)
		o.logger.WithContext(ctx).Error("Cache warming failed", stats.Err)
		return stats
	}
	stats.TotalCandidates = len(candidates)

	selected := selectCandidates(candidates, opts.MinPopularity, o.maxWarmItems(opts.MaxItems))
	for _, c := range selected {
		wasExtreme := o.popularity.Classify(c.Key) == ClassExtreme
		o.popularity.Seed(c.Key, c.Popularity)
		// A key already Extreme from real hits may be in Hot and must not
		// keep serving the old value there.
		hot := o.popularity.Classify(c.Key) == ClassExtreme && (opts.PreloadHot || wasExtreme)
		o.write(ctx, c.Key, c.Value, opts.TTL, hot)
		stats.CachedCount++
	}

	stats.Duration = time.Since(start)
	o.recorder.RecordOperation("warm", resultSuccess, TierAll)
	o.logger.Info("Cache warming finished",
		logging.Int("candidates", stats.TotalCandidates),
		logging.Int("cached", stats.CachedCount),
		logging.Duration("duration", stats.Duration),
	)
	return stats
}

func (o *Orchestrator[V]) maxWarmItems(requested int) int {
	if requested > 0 {
		return requested
	}
	return o.config.WarmMaxItems
}

// callSupplier turns a supplier panic into an error so a scheduled pass
// cannot take the process down.
func callSupplier[V any](ctx context.Context, supplier Supplier[V]) (candidates []Candidate[V], err error) {
	if supplier == nil {
		return nil, fmt.Errorf("no supplier configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("supplier panicked: %v", r)
		}
	}()
	return supplier(ctx)
}

// selectCandidates filters by minimum popularity and keeps the maxItems most
// popular, ties broken by supplier order. maxItems <= 0 keeps everything.
func selectCandidates[V any](candidates []Candidate[V], minPopularity int64, maxItems int) []Candidate[V] {
	selected := make([]Candidate[V], 0, len(candidates))
	for _, c := range candidates {
		if c.Key == "" || c.Popularity < minPopularity {
			continue
		}
		selected = append(selected, c)
	}

	if maxItems > 0 && len(selected) > maxItems {
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Popularity > selected[j].Popularity
		})
		selected = selected[:maxItems]
	}
	return selected
}

// ScheduleWarmCache runs a warming pass WarmInitialDelay after arming and
// then every interval (Config.WarmInterval when not positive) until cancel
// is called. A tick that arrives while a pass is still running is skipped.
// cancel stops future passes; it does not abort one in flight.
func (o *Orchestrator[V]) ScheduleWarmCache(supplier Supplier[V], interval time.Duration, opts WarmOptions) (cancel func()) {
	if interval <= 0 {
		interval = o.config.WarmInterval
	}

	log := cronLogger{o.logger.Named("warmer")}
	job := o.warmJob(supplier, opts, log)

	scheduler := cron.New(cron.WithLogger(log))
	scheduler.Schedule(cron.Every(interval), job)
	scheduler.Start()
	initial := time.AfterFunc(max(o.config.WarmInitialDelay, 0), job.Run)

	o.schedMu.Lock()
	id := o.nextID
	o.nextID++
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			initial.Stop()
			scheduler.Stop()
			o.schedMu.Lock()
			delete(o.schedules, id)
			o.schedMu.Unlock()
		})
	}
	o.schedules[id] = cancel
	o.schedMu.Unlock()

	o.logger.Info("Cache warming scheduled",
		logging.Duration("interval", interval),
		logging.Duration("initial_delay", max(o.config.WarmInitialDelay, 0)),
	)
	return cancel
}

// warmJob wraps one warming pass with the in-flight guard shared by the
// initial run and every tick.
func (o *Orchestrator[V]) warmJob(supplier Supplier[V], opts WarmOptions, log cron.Logger) cron.Job {
	return cron.NewChain(
		cron.Recover(log),
		cron.SkipIfStillRunning(log),
	).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.config.WarmTimeout)
		defer cancel()
		o.WarmCache(ctx, supplier, opts)
	}))
}

// Close cancels every warm schedule armed on this orchestrator.
func (o *Orchestrator[V]) Close() {
	o.schedMu.Lock()
	cancels := make([]func(), 0, len(o.schedules))
	for _, cancel := range o.schedules {
		cancels = append(cancels, cancel)
	}
	o.schedMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, err, kvFields(keysAndValues)...)
}

func kvFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, logging.Any(key, keysAndValues[i+1]))
	}
	return fields
}
