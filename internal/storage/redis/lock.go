package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// DefaultLockPrefix namespaces per-artist lease keys.
	DefaultLockPrefix = "lock:artist:"
	lockValue         = "locked"
)

// Lock implements catalog.EntityLock with SET NX EX.
type Lock struct {
	client goredis.Cmdable
	prefix string
}

// NewLock constructs a Lock. An empty prefix uses DefaultLockPrefix.
func NewLock(client goredis.Cmdable, prefix string) *Lock {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &Lock{client: client, prefix: prefix}
}

// TryAcquire sets the lease key only when it is absent.
func (l *Lock) TryAcquire(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+id, lockValue, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", id, err)
	}
	return ok, nil
}

// Release deletes the lease key. It does not check ownership.
func (l *Lock) Release(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, l.prefix+id).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", id, err)
	}
	return nil
}
