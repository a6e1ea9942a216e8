// Package locks provides fleet-wide mutual exclusion on top of the Redlock
// implementation in go-redsync/redsync/v4.
//
// The cache uses it to elect one instance per warming interval when several
// instances share the same Distributed tier.
package locks

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"link-router/internal/common/errors"
)

// DefaultPrefix namespaces lock keys in Redis.
const DefaultPrefix = "linkrouter:lock:"

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = stderrors.New("lock held elsewhere")

// Manager hands out Redlock mutexes.
type Manager struct {
	rs     *redsync.Redsync
	prefix string
}

// NewManager creates a lock manager on the given go-redis client.
func NewManager(client redis.UniversalClient, prefix string) (*Manager, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Manager{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
	}, nil
}

// Lock is an acquired mutex.
type Lock struct {
	mutex *redsync.Mutex
	name  string
}

// Name returns the lock name without the key prefix.
func (l *Lock) Name() string {
	return l.name
}

// Until returns when the lock expires unless extended.
func (l *Lock) Until() time.Time {
	return l.mutex.Until()
}

// Release gives the lock up before its expiry.
func (l *Lock) Release(ctx context.Context) error {
	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return errors.TierUnavailableError("lock", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// TryAcquire makes a single attempt at the named lock. It returns
// ErrNotAcquired when the lock is taken and a tier_unavailable error when
// Redis cannot be reached.
func (m *Manager) TryAcquire(ctx context.Context, name string, expiry time.Duration) (*Lock, error) {
	mutex := m.rs.NewMutex(m.prefix+name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(1),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if stderrors.Is(err, redsync.ErrFailed) || stderrors.As(err, &taken) {
			return nil, ErrNotAcquired
		}
		return nil, errors.TierUnavailableError("lock", err)
	}
	return &Lock{mutex: mutex, name: name}, nil
}
