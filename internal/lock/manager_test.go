package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roombook/internal/lock"
	"roombook/internal/lock/locktest"
	"roombook/pkg/clock"
	"roombook/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "booking_lock:5:2024-01-10:2024-01-12"

func fastPolicy() lock.RetryPolicy {
	return lock.RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newManager(t *testing.T, c clock.Clock) (*lock.Manager, *locktest.Memory) {
	t.Helper()
	backend := locktest.NewMemory(c)
	m := lock.NewManager(backend, logger.Discard(), lock.Options{Policy: fastPolicy(), Clock: c})
	return m, backend
}

func TestManager_AcquireAndStatus(t *testing.T) {
	m, _ := newManager(t, clock.Real())
	ctx := context.Background()

	grant, err := m.Acquire(ctx, key, "user:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "user:1", grant.Holder)
	assert.False(t, grant.Reentered)
	assert.Equal(t, "user:1", lock.HolderOf(grant.Token))

	st, err := m.Status(ctx, key)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, "user:1", st.Holder)
	assert.Greater(t, st.ExpiresIn, time.Duration(0))
}

func TestManager_Reentrant(t *testing.T) {
	m, _ := newManager(t, clock.Real())
	ctx := context.Background()

	first, err := m.Acquire(ctx, key, "user:1", time.Minute)
	require.NoError(t, err)

	second, err := m.Acquire(ctx, key, "user:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Reentered)
	assert.Equal(t, first.Token, second.Token)
}

func TestManager_ContentionAfterRetries(t *testing.T) {
	m, backend := newManager(t, clock.Real())
	ctx := context.Background()

	_, err := m.Acquire(ctx, key, "user:1", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, key, "user:2", time.Minute)
	var contention *lock.ContentionError
	require.ErrorAs(t, err, &contention)
	assert.Equal(t, "user:1", contention.Holder)
	assert.Greater(t, contention.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, contention.RetryAfter, time.Minute)
	assert.Equal(t, 1+3, backend.Calls())
}

func TestManager_ReleaseRequiresOwnToken(t *testing.T) {
	m, _ := newManager(t, clock.Real())
	ctx := context.Background()

	grant, err := m.Acquire(ctx, key, "user:1", time.Minute)
	require.NoError(t, err)

	released, err := m.Release(ctx, key, "user:2/forged")
	require.NoError(t, err)
	assert.False(t, released)

	locked, err := m.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	released, err = m.Release(ctx, key, grant.Token)
	require.NoError(t, err)
	assert.True(t, released)

	locked, err = m.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestManager_ExpiresWithoutRenewal(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m, _ := newManager(t, fake)
	ctx := context.Background()

	_, err := m.Acquire(ctx, key, "user:1", 10*time.Second)
	require.NoError(t, err)

	fake.Advance(9 * time.Second)
	locked, err := m.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	fake.Advance(time.Second)
	locked, err = m.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)

	grant, err := m.Acquire(ctx, key, "user:2", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "user:2", grant.Holder)
}

func TestManager_StoreDownFailsClosed(t *testing.T) {
	m, backend := newManager(t, clock.Real())
	backend.FailWith(errors.New("connection refused"))

	_, err := m.Acquire(context.Background(), key, "user:1", time.Minute)
	assert.ErrorIs(t, err, lock.ErrStoreUnavailable)

	_, err = m.Status(context.Background(), key)
	assert.ErrorIs(t, err, lock.ErrStoreUnavailable)
}

func TestManager_RejectsBadRequests(t *testing.T) {
	m, _ := newManager(t, clock.Real())
	ctx := context.Background()

	_, err := m.Acquire(ctx, "", "user:1", time.Minute)
	assert.ErrorIs(t, err, lock.ErrInvalidRequest)
	_, err = m.Acquire(ctx, key, "user/1", time.Minute)
	assert.ErrorIs(t, err, lock.ErrInvalidRequest)
	_, err = m.Acquire(ctx, key, "user:1", 0)
	assert.ErrorIs(t, err, lock.ErrInvalidRequest)
}

func TestManager_ConcurrentAcquireHasOneWinner(t *testing.T) {
	backend := locktest.NewMemory(nil)
	m := lock.NewManager(backend, logger.Discard(), lock.Options{
		Policy: lock.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
	})

	const n = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, contended := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Acquire(context.Background(), key, "req:"+string(rune('a'+i)), time.Minute)
			mu.Lock()
			defer mu.Unlock()
			var contention *lock.ContentionError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &contention):
				contended++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, contended)
}

func TestManager_WithLock(t *testing.T) {
	m, backend := newManager(t, clock.Real())
	ctx, cancel := context.WithCancel(context.Background())

	err := m.WithLock(ctx, key, "req:1", time.Minute, func(lockCtx context.Context) error {
		assert.NotEmpty(t, backend.Token(key))
		cancel()
		assert.NoError(t, lockCtx.Err(), "critical section outlives the caller")
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, backend.Token(key), "lock released after the critical section")
}

func TestManager_WithLockPropagatesError(t *testing.T) {
	m, backend := newManager(t, clock.Real())
	boom := errors.New("boom")

	err := m.WithLock(context.Background(), key, "req:1", time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.Token(key))
}
