package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants the single-writer right to extend the chain. TryLock returns
// ok=false, without error, when another writer holds it.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// MutexLocker serializes runners inside one process.
type MutexLocker struct {
	mu sync.Mutex
}

func (l *MutexLocker) TryLock(_ context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// DefaultLeaseKey is the Redis key holding the chain writer lease.
const DefaultLeaseKey = "endorser:chain:writer"

// releaseScript deletes the lease only if this writer still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease shared by every process pointed at the same Redis.
// The lease expires after ttl so a crashed writer cannot block the chain.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLeaseKey
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire chain lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may already be cancelled when the run ends.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{l.key}, token)
	}
	return release, true, nil
}
