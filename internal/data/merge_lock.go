package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisMergeLock is a per-PR merge lock built on SET NX with a TTL.
type RedisMergeLock struct {
	client *redis.Client
	logger *log.Helper
}

// NewRedisMergeLock creates a merge lock. A nil client makes every Acquire fail.
func NewRedisMergeLock(client *redis.Client, logger log.Logger) *RedisMergeLock {
	return &RedisMergeLock{
		client: client,
		logger: log.NewHelper(logger),
	}
}

func lockKey(prNumber int) string {
	return BuildCacheKey(CacheKeyMergeLock, strconv.Itoa(prNumber))
}

// Acquire takes the lock for owner. It returns false when someone else holds it.
func (l *RedisMergeLock) Acquire(ctx context.Context, prNumber int, owner string, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return false, errors.New("merge lock: redis client is nil")
	}
	if ttl <= 0 {
		ttl = TTLMergeLock
	}

	ok, err := l.client.SetNX(ctx, lockKey(prNumber), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("merge lock: failed to acquire lock for PR #%d: %w", prNumber, err)
	}
	if !ok {
		l.logger.Infow("msg", "merge lock held by another owner", "pr_number", prNumber)
	}
	return ok, nil
}

// Release drops the lock if owner still holds it; a lock that expired or
// changed hands is left alone.
func (l *RedisMergeLock) Release(ctx context.Context, prNumber int, owner string) error {
	if l.client == nil {
		return errors.New("merge lock: redis client is nil")
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{lockKey(prNumber)}, owner).Int()
	if err != nil {
		return fmt.Errorf("merge lock: failed to release lock for PR #%d: %w", prNumber, err)
	}
	if deleted == 0 {
		l.logger.Warnw("msg", "merge lock was no longer held at release",
			"pr_number", prNumber,
			"owner", owner)
	}
	return nil
}
