package lock

import (
	"context"
	"time"
)

// Locker hands out exclusive, expiring leases on a named resource.
// Acquire returns an error wrapping domain.ErrConflict when the lease is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call after expiry.
// Extend resets the expiry to ttl and fails with domain.ErrConflict once the lease was lost.
type Lease interface {
	Token() string
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}
