package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aimd54/storefront-badges/pkg/logger"
)

// ErrLockTimeout is returned when the lease is still held by someone else after the
// configured wait.
var ErrLockTimeout = fmt.Errorf("lease wait exceeded: %w", context.DeadlineExceeded)

const lockRetryInterval = 25 * time.Millisecond

// Locker hands out short-lived exclusive leases keyed by string.
type Locker struct {
	cache Cache
	ttl   time.Duration
	wait  time.Duration
	log   *logger.Logger
}

// NewLocker creates a locker. Leases expire after ttl even if never released;
// Lock gives up after wait.
func NewLocker(cache Cache, ttl, wait time.Duration, log *logger.Logger) *Locker {
	return &Locker{cache: cache, ttl: ttl, wait: wait, log: log}
}

// Lock blocks until the lease for key is held, wait elapses, or ctx is done.
// The returned func releases the lease if it is still ours.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := l.cache.CompareAndDelete(ctx, key, token)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("Failed to release lease")
		return
	}
	if !released {
		l.log.Debug().Str("key", key).Msg("Lease expired before release")
	}
}
