package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory Backend that records calls and TTLs.
type fakeBackend struct {
	mu    sync.Mutex
	data  map[string]string
	ttls  map[string]time.Duration
	calls map[string]int

	fail     bool
	delay    time.Duration
	pageSize int
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data:     make(map[string]string),
		ttls:     make(map[string]time.Duration),
		calls:    make(map[string]int),
		pageSize: 2,
	}
}

func (f *fakeBackend) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	fail, delay := f.fail, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errBackendDown
	}
	return nil
}

func (f *fakeBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := f.enter(ctx, "set"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := f.enter(ctx, "delete"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return n, nil
}

func (f *fakeBackend) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	if err := f.enter(ctx, "multi_get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]string)
	for _, key := range keys {
		if v, ok := f.data[key]; ok {
			result[key] = v
		}
	}
	return result, nil
}

// Scan ignores match and pages through every key in order;
// the Orchestrator re-filters every key client-side.
func (f *fakeBackend) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := f.enter(ctx, "scan"); err != nil {
		return nil, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.data))
	for key := range f.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	start := int(cursor)
	if start >= len(keys) {
		return nil, 0, nil
	}
	end := start + f.pageSize
	if end >= len(keys) {
		return keys[start:], 0, nil
	}
	return keys[start:end], uint64(end), nil
}

func (f *fakeBackend) Info(ctx context.Context) (int64, int64, error) {
	if err := f.enter(ctx, "info"); err != nil {
		return 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), 1024, nil
}

func (f *fakeBackend) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeBackend) ttl(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *fakeBackend) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeBackend) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// recordingRecorder counts observations per operation/result/tier.
type recordingRecorder struct {
	mu    sync.Mutex
	ops   map[string]int
	sizes map[string]int
	ratio float64
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{ops: make(map[string]int), sizes: make(map[string]int)}
}

func (r *recordingRecorder) RecordOperation(operation, result, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[operation+"/"+result+"/"+tier]++
}

func (r *recordingRecorder) SetHitRatio(ratio float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratio = ratio
}

func (r *recordingRecorder) SetTierSize(tier string, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes[tier] = size
}

func (r *recordingRecorder) count(operation, result, tier string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[operation+"/"+result+"/"+tier]
}
