package lock

import (
	"context"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

func newTestLocker(t *testing.T) (*Locker, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return NewLocker(redisclient.Wrap(client)), mock
}

func TestAcquireSetsKeyWithLease(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, 5*time.Second).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", 5*time.Second)
	require.NoError(t, err)

	assert.NotEmpty(t, lock.Token())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireHeldElsewhere(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, 5*time.Second).SetVal(false)

	_, err := locker.Acquire(context.Background(), "ride:abc", 5*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestAcquireWithRetryEventuallySucceeds(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(false)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(true)

	lock, err := locker.AcquireWithRetry(context.Background(), "ride:abc", time.Second, 3, time.Millisecond)
	require.NoError(t, err)

	assert.NotEmpty(t, lock.Token())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireWithRetryExhaustsAttempts(t *testing.T) {
	locker, mock := newTestLocker(t)
	for i := 0; i < 3; i++ {
		mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(false)
	}

	_, err := locker.AcquireWithRetry(context.Background(), "ride:abc", time.Second, 3, time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseOnlyDeletesOwnToken(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", time.Second)
	require.NoError(t, err)

	mock.ExpectEval(releaseScript, []string{"lock:ride:abc"}, lock.Token()).SetVal(int64(1))
	assert.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseAfterReacquisitionIsQuiet(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", time.Second)
	require.NoError(t, err)

	// Token no longer matches: the script returns 0 and Release stays nil.
	mock.ExpectEval(releaseScript, []string{"lock:ride:abc"}, lock.Token()).SetVal(int64(0))
	assert.NoError(t, lock.Release(context.Background()))
}

func TestExtendFailsWhenLockLost(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Second).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", time.Second)
	require.NoError(t, err)

	mock.ExpectEval(extendScript, []string{"lock:ride:abc"}, lock.Token(), int64(2000)).SetVal(int64(0))
	assert.ErrorIs(t, lock.Extend(context.Background(), 2*time.Second), ErrNotAcquired)
}

func TestExtendIfExpiringSkipsFreshLock(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, time.Minute).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", time.Minute)
	require.NoError(t, err)

	// Well over the threshold remaining: no round-trip at all.
	assert.NoError(t, lock.ExtendIfExpiring(context.Background(), time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendIfExpiringRenewsNearExpiry(t *testing.T) {
	locker, mock := newTestLocker(t)
	mock.Regexp().ExpectSetNX("lock:ride:abc", `.*`, 50*time.Millisecond).SetVal(true)

	lock, err := locker.Acquire(context.Background(), "ride:abc", 50*time.Millisecond)
	require.NoError(t, err)

	// Remaining lease is under the threshold, so the original lease is
	// renewed in place.
	mock.ExpectEval(extendScript, []string{"lock:ride:abc"}, lock.Token(), int64(50)).SetVal(int64(1))
	assert.NoError(t, lock.ExtendIfExpiring(context.Background(), time.Second))
	assert.NoError(t, mock.ExpectationsWereMet())
}
