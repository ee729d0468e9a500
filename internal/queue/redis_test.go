package queue

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queueKey = "booking_queue:5:2024-01-10:2024-01-12"

func TestRedisStore_Push(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)
	raw := []byte(`{"requestId":"r1"}`)

	mock.ExpectTxPipeline()
	mock.ExpectLPush(queueKey, raw).SetVal(3)
	mock.ExpectExpire(queueKey, time.Hour).SetVal(true)
	mock.ExpectTxPipelineExec()

	n, err := store.Push(context.Background(), queueKey, raw, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_PopEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	mock.ExpectRPop(queueKey).RedisNil()
	mock.ExpectRPop(queueKey).SetVal(`{"requestId":"r1"}`)

	raw, err := store.Pop(context.Background(), queueKey)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = store.Pop(context.Background(), queueKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":"r1"}`, string(raw))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_PurgeReturnsOldestFirst(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	mock.ExpectTxPipeline()
	mock.ExpectLRange(queueKey, 0, -1).SetVal([]string{"newest", "middle", "oldest"})
	mock.ExpectDel(queueKey).SetVal(1)
	mock.ExpectTxPipelineExec()

	rest, err := store.Purge(context.Background(), queueKey)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, "oldest", string(rest[0]))
	assert.Equal(t, "newest", string(rest[2]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Lease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)
	lease := "booking_queue_worker:5:2024-01-10:2024-01-12"

	mock.ExpectSetNX(lease, "i1", 30*time.Second).SetVal(true)
	mock.ExpectEvalSha(renewLeaseScript.Hash(), []string{lease}, "i1", int64(30000)).SetVal(int64(1))
	mock.ExpectEvalSha(renewLeaseScript.Hash(), []string{lease}, "i2", int64(30000)).SetVal(int64(0))
	mock.ExpectEvalSha(releaseLeaseScript.Hash(), []string{lease}, "i1").SetVal(int64(1))

	ctx := context.Background()
	ok, err := store.AcquireLease(ctx, lease, "i1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RenewLease(ctx, lease, "i1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RenewLease(ctx, lease, "i2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseLease(ctx, lease, "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
