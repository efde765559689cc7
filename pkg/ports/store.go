package ports

import (
	"context"
	"time"

	"github.com/aretw0/tabloop/pkg/domain"
)

// LedgerStore persists loop outcomes.
type LedgerStore interface {
	// Append stores an entry. Entries are never updated.
	Append(ctx context.Context, entry domain.LedgerEntry) error

	// List returns the stored entries in append order.
	List(ctx context.Context) ([]domain.LedgerEntry, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets ledgers in several replicas coordinate writes to a shared store.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is done.
	// The returned UnlockFunc MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
