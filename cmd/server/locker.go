package main

import (
	"context"
	"time"

	"link-tracker/internal/store"
	"link-tracker/pkg/redis"
)

var _ store.Locker = upsertLocker{}

// upsertLocker 把 redis 分布式锁接到 store 的 upsert 上
type upsertLocker struct {
	locker *redis.Locker
}

func (l upsertLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (store.Unlocker, error) {
	lock, err := l.locker.Obtain(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
