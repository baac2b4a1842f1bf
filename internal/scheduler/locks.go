package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another replica owns the job lock.
var ErrLockHeld = errors.New("scheduler_lock_held")

const lockPrefix = "bizbooks:scheduler:"

// Locker grants exclusive leases on a job name.
type Locker interface {
	Obtain(ctx context.Context, job string, ttl time.Duration) (release func(context.Context), err error)
}

// NewLocker uses Redis when a client is configured so that only one replica
// runs a sweep at a time, and an in-process lock otherwise.
func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return newLocalLocker()
	}
	return &redisLocker{client: redislock.New(client)}
}

type redisLocker struct {
	client *redislock.Client
}

func (l *redisLocker) Obtain(ctx context.Context, job string, ttl time.Duration) (func(context.Context), error) {
	lock, err := l.client.Obtain(ctx, lockPrefix+job, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func newLocalLocker() *localLocker {
	return &localLocker{held: make(map[string]time.Time)}
}

func (l *localLocker) Obtain(_ context.Context, job string, ttl time.Duration) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expires, ok := l.held[job]; ok && now.Before(expires) {
		return nil, ErrLockHeld
	}
	l.held[job] = now.Add(ttl)
	return func(context.Context) {
		l.mu.Lock()
		delete(l.held, job)
		l.mu.Unlock()
	}, nil
}
