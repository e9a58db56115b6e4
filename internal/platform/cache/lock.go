package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("platform/cache: lock held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short-lived exclusive locks keyed by name.
type Locker struct {
	client redis.UniversalClient
}

// NewLocker wraps a redis client.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes key for ttl or fails with ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release drops the lock only if it is still owned by this holder.
func (k *Lock) Release(ctx context.Context) error {
	if k == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/cache: release %s: %w", k.key, err)
	}
	return nil
}
