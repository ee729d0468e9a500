package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tokens are "<holder>/<nonce>"; the holder part drives reentrancy.
var acquireScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return {1, ARGV[2], 0}
end
local holder = current
local sep = string.find(current, '/', 1, true)
if sep then
	holder = string.sub(current, 1, sep - 1)
end
if holder == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return {2, current, 0}
end
return {0, current, redis.call('PTTL', KEYS[1])}
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisBackend struct {
	rdb redis.UniversalClient
}

func NewRedisBackend(rdb redis.UniversalClient) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) TryAcquire(ctx context.Context, key, holder, token string, ttl time.Duration) (Attempt, error) {
	res, err := acquireScript.Run(ctx, b.rdb, []string{key}, holder, token, ttl.Milliseconds()).Slice()
	if err != nil {
		return Attempt{}, err
	}
	if len(res) != 3 {
		return Attempt{}, fmt.Errorf("unexpected acquire reply of length %d", len(res))
	}

	code, _ := res[0].(int64)
	live, _ := res[1].(string)
	pttl, _ := res[2].(int64)

	switch code {
	case 1:
		return Attempt{Outcome: Acquired, Token: live}, nil
	case 2:
		return Attempt{Outcome: Extended, Token: live}, nil
	case 0:
		return Attempt{Outcome: Denied, Token: live, TTL: time.Duration(pttl) * time.Millisecond}, nil
	default:
		return Attempt{}, fmt.Errorf("unexpected acquire reply code %v", res[0])
	}
}

func (b *RedisBackend) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, b.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (b *RedisBackend) Inspect(ctx context.Context, key string) (string, time.Duration, error) {
	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, err
	}

	token, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return token, pttl.Val(), nil
}
