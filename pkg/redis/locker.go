package redis

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "link-tracker:lock:"

// Locker 基于 redislock 的分布式锁
type Locker struct {
	client  *redislock.Client
	backoff time.Duration
	retries int
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{
		client:  redislock.New(rdb),
		backoff: 50 * time.Millisecond,
		retries: 20,
	}
}

// Obtain 获取锁，锁被占用时按固定间隔重试。返回的锁需由调用方 Release。
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	return l.client.Obtain(ctx, lockKeyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
}
