// Package locks provides named in-process locks that admit a bounded number
// of concurrent holders.
package locks

import (
	"context"
)

// Provider defines the interface for obtaining named locks
type Provider interface {
	// Lock returns the lock for key, creating it on first use. Options only
	// take effect when the lock is created; later calls get the same lock
	Lock(key string, opts ...Option) *Lock
}

// Locker is satisfied by *Lock.
type Locker interface {
	// Acquire blocks until a slot is free or ctx is done
	Acquire(ctx context.Context) (*Hold, error)
	// TryAcquire takes a slot only if one is free
	TryAcquire() (*Hold, bool)
}

// Option configures a lock when it is created.
type Option func(*lockOptions)

type lockOptions struct {
	concurrency int
}

// WithConcurrency sets how many holders the lock admits at once. Values
// below one are ignored.
func WithConcurrency(n int) Option {
	return func(o *lockOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}
