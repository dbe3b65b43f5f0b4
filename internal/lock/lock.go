// Package lock provides scoped mutual exclusion keyed by payment hash.
//
// Settlement runs under WithLock so two reconciliation passes, in the same
// process or across processes, cannot mutate the same payment concurrently.
// The lock is always released when the critical section returns, on every
// path, and the redis implementation carries a lease so a crashed holder
// cannot leak the lock indefinitely.
package lock

import (
	"context"
	"errors"
)

var (
	ErrLockNotAcquired = errors.New("lock: not acquired")
	ErrLockLost        = errors.New("lock: lease expired before release")
)

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
