package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var renewLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Push(ctx context.Context, queueKey string, raw []byte, ttl time.Duration) (int64, error) {
	var push *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.LPush(ctx, queueKey, raw)
		pipe.Expire(ctx, queueKey, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return push.Val(), nil
}

func (s *RedisStore) PushFront(ctx context.Context, queueKey string, raw []byte) error {
	return s.rdb.RPush(ctx, queueKey, raw).Err()
}

func (s *RedisStore) Pop(ctx context.Context, queueKey string) ([]byte, error) {
	raw, err := s.rdb.RPop(ctx, queueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *RedisStore) Purge(ctx context.Context, queueKey string) ([][]byte, error) {
	var rest *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rest = pipe.LRange(ctx, queueKey, 0, -1)
		pipe.Del(ctx, queueKey)
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals := rest.Val()
	out := make([][]byte, 0, len(vals))
	// LRANGE lists newest first; hand entries back oldest first.
	for i := len(vals) - 1; i >= 0; i-- {
		out = append(out, []byte(vals[i]))
	}
	return out, nil
}

func (s *RedisStore) Len(ctx context.Context, queueKey string) (int64, error) {
	return s.rdb.LLen(ctx, queueKey).Result()
}

func (s *RedisStore) AcquireLease(ctx context.Context, leaseKey, owner string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, leaseKey, owner, ttl).Result()
}

func (s *RedisStore) RenewLease(ctx context.Context, leaseKey, owner string, ttl time.Duration) (bool, error) {
	n, err := renewLeaseScript.Run(ctx, s.rdb, []string{leaseKey}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, leaseKey, owner string) error {
	return releaseLeaseScript.Run(ctx, s.rdb, []string{leaseKey}, owner).Err()
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, out: make(chan []byte, 16), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
