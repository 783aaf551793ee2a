package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards the booking critical section per slot so that concurrent
// bookers on different instances cannot both pass the availability check.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type slotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker keyed per slot. The TTL bounds both
// the lock lifetime and the critical section: if the holder dies, the key
// expires and the slot becomes contestable again.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &slotLocker{client: client, ttl: ttl}
}

func (l *slotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slotID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer l.release(ctx, key, token)

	// The critical section must finish before the key expires, otherwise a
	// second booker could enter while the first still holds the DB tx.
	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// Compare-and-delete: only the holder's token may release the key, so a
// slow holder cannot drop a lock re-acquired by someone else after expiry.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *slotLocker) release(ctx context.Context, key, token string) {
	// A failed release is tolerable: the key expires at TTL anyway.
	_, _ = unlockScript.Run(ctx, l.client, []string{key}, token).Result()
}
