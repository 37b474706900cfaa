package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProductLockKey builds redis keys for ledger critical sections.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("ledger:product:%d:lock", productID)
}

// ProductLocker serializes ledger writers per product. Writers on different
// products never contend.
type ProductLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductLocker constructs the locker. ttl bounds how long a crashed writer
// can hold a product hostage.
func NewProductLocker(client *redis.Client, ttl time.Duration) *ProductLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ProductLocker{client: client, ttl: ttl}
}

// releaseScript deletes the lock only when still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the per-product lock, retrying briefly before giving up with
// ErrStorageConflict. Returns a release function.
func (l *ProductLocker) Acquire(ctx context.Context, productID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := ProductLockKey(productID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl / 2)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire product lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrStorageConflict
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
