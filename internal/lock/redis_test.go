package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "booking_lock:5:2024-01-10:2024-01-12"

func TestRedisBackend_TryAcquire(t *testing.T) {
	tests := []struct {
		name    string
		reply   []interface{}
		outcome Outcome
		token   string
		ttl     time.Duration
	}{
		{"free key", []interface{}{int64(1), "user:1/a", int64(0)}, Acquired, "user:1/a", 0},
		{"same holder", []interface{}{int64(2), "user:1/old", int64(0)}, Extended, "user:1/old", 0},
		{"other holder", []interface{}{int64(0), "user:2/b", int64(4200)}, Denied, "user:2/b", 4200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			backend := NewRedisBackend(db)

			mock.ExpectEvalSha(acquireScript.Hash(), []string{testKey}, "user:1", "user:1/a", int64(30000)).
				SetVal(tt.reply)

			res, err := backend.TryAcquire(context.Background(), testKey, "user:1", "user:1/a", 30*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.token, res.Token)
			assert.Equal(t, tt.ttl, res.TTL)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisBackend_TryAcquire_StoreError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backend := NewRedisBackend(db)

	mock.ExpectEvalSha(acquireScript.Hash(), []string{testKey}, "user:1", "user:1/a", int64(1000)).
		SetErr(errors.New("dial tcp: connection refused"))

	_, err := backend.TryAcquire(context.Background(), testKey, "user:1", "user:1/a", time.Second)
	assert.Error(t, err)
}

func TestRedisBackend_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backend := NewRedisBackend(db)

	mock.ExpectEvalSha(releaseScript.Hash(), []string{testKey}, "user:1/a").SetVal(int64(1))
	mock.ExpectEvalSha(releaseScript.Hash(), []string{testKey}, "user:1/stale").SetVal(int64(0))

	ok, err := backend.Release(context.Background(), testKey, "user:1/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = backend.Release(context.Background(), testKey, "user:1/stale")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBackend_Inspect(t *testing.T) {
	db, mock := redismock.NewClientMock()
	backend := NewRedisBackend(db)

	mock.ExpectGet(testKey).SetVal("user:9/x")
	mock.ExpectPTTL(testKey).SetVal(1500 * time.Millisecond)

	token, ttl, err := backend.Inspect(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "user:9/x", token)
	assert.Equal(t, 1500*time.Millisecond, ttl)

	mock.ExpectGet(testKey).RedisNil()
	mock.ExpectPTTL(testKey).SetVal(-2 * time.Millisecond)

	token, _, err = backend.Inspect(context.Background(), testKey)
	require.NoError(t, err)
	assert.Empty(t, token)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_OverRedis_FailsClosed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewManager(NewRedisBackend(db), testLogger(), Options{
		NewToken: func(holder string) string { return holder + "/t" },
	})

	mock.ExpectEvalSha(acquireScript.Hash(), []string{testKey}, "user:1", "user:1/t", int64(60000)).
		SetErr(errors.New("i/o timeout"))

	_, err := m.Acquire(context.Background(), testKey, "user:1", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
