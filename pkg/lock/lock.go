package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch/pkg/logger"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the lock is held by another owner.
var ErrNotAcquired = errors.New("lock not acquired")

const lockKeyPrefix = "lock:"

// Release and extend must only act on the acquisition that created the
// fence token, never on a lock reacquired by someone else. Both checks run
// atomically server-side.
const (
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

	extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`
)

// Locker acquires distributed locks backed by Redis SET NX with a lease.
type Locker struct {
	redis *redisclient.Client
}

// NewLocker creates a lock manager on top of the shared Redis client.
func NewLocker(redis *redisclient.Client) *Locker {
	return &Locker{redis: redis}
}

// Lock is a held lock bound to a fence token.
type Lock struct {
	locker  *Locker
	key     string
	token   string
	lease   time.Duration
	expires time.Time
}

// Acquire attempts to take the lock once.
func (l *Locker) Acquire(ctx context.Context, key string, lease time.Duration) (*Lock, error) {
	token := uuid.NewString()
	fullKey := lockKeyPrefix + key

	ok, err := l.redis.SetIfNotExists(ctx, fullKey, token, lease)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lock{
		locker:  l,
		key:     fullKey,
		token:   token,
		lease:   lease,
		expires: time.Now().Add(lease),
	}, nil
}

// AcquireWithRetry attempts to take the lock up to attempts times, sleeping
// retryDelay between attempts.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, lease time.Duration, attempts int, retryDelay time.Duration) (*Lock, error) {
	for i := 0; i < attempts; i++ {
		lock, err := l.Acquire(ctx, key, lease)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, ErrNotAcquired
}

// Token returns the fence token bound to this acquisition.
func (lk *Lock) Token() string {
	return lk.token
}

// Release deletes the lock only if the fence token still matches.
func (lk *Lock) Release(ctx context.Context) error {
	res, err := lk.locker.redis.Eval(ctx, releaseScript, []string{lk.key}, lk.token).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		logger.WarnContext(ctx, "lock already reacquired, skipping release",
			zap.String("key", lk.key),
		)
	}
	return nil
}

// Extend renews the lease if the fence token still matches.
func (lk *Lock) Extend(ctx context.Context, lease time.Duration) error {
	res, err := lk.locker.redis.Eval(ctx, extendScript, []string{lk.key}, lk.token, lease.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrNotAcquired
	}
	lk.expires = time.Now().Add(lease)
	return nil
}

// ExtendIfExpiring renews the lease when less than threshold remains.
func (lk *Lock) ExtendIfExpiring(ctx context.Context, threshold time.Duration) error {
	if time.Until(lk.expires) >= threshold {
		return nil
	}
	return lk.Extend(ctx, lk.lease)
}
