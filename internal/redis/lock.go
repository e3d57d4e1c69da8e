package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

var (
	ErrLockNotAcquired = errors.New("provider lock not acquired")
)

const lockRetryInterval = 25 * time.Millisecond

// ProviderDayLocker implements appointment.Locker with one Redis key per
// provider and day, so API instances serialise bookings for the same calendar.
type ProviderDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

var _ appointment.Locker = (*ProviderDayLocker)(nil)

// NewProviderDayLocker creates a locker whose keys expire after ttl. A held
// lock is polled for up to wait before ErrLockNotAcquired is returned.
func NewProviderDayLocker(client *redis.Client, ttl, wait time.Duration) *ProviderDayLocker {
	return &ProviderDayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(providerID uuid.UUID, date time.Time) string {
	return "lock:provider-day:" + appointment.ProviderDayKey(providerID, date)
}

func (l *ProviderDayLocker) WithProviderDayLock(ctx context.Context, providerID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := lockKey(providerID, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	// The critical section may not outlive the key, otherwise a second holder
	// could enter while this one is still writing.
	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *ProviderDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire provider lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *ProviderDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release provider lock: %w", err)
	}
	return nil
}
