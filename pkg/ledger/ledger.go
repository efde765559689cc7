package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tabloop/internal/logging"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed ledger lock may be held.
const DefaultLockTTL = 30 * time.Second

// lockKey is the distributed lock name shared by all writers of one store.
const lockKey = "ledger"

// Ledger serialises access to a LedgerStore. It implements ports.LedgerStore
// itself, so it can be handed to the engine directly.
type Ledger struct {
	store ports.LedgerStore

	mu sync.Mutex

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(l *Ledger) {
		l.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Ledger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger over store. A nil store makes every call fail with
// domain.ErrLedgerUnavailable.
func New(store ports.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one loop outcome.
func (l *Ledger) Append(ctx context.Context, entry domain.LedgerEntry) error {
	return l.withLock(ctx, func(ctx context.Context) error {
		if err := l.store.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return nil
	})
}

// List returns every entry in append order.
func (l *Ledger) List(ctx context.Context) ([]domain.LedgerEntry, error) {
	if l == nil || l.store == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	entries, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// Clear removes every entry.
func (l *Ledger) Clear(ctx context.Context) error {
	return l.withLock(ctx, func(ctx context.Context) error {
		if err := l.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
		return nil
	})
}

// Summary aggregates the stored entries.
func (l *Ledger) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	return domain.Summarize(entries), nil
}

// withLock runs fn while holding the local mutex and, if configured, the
// distributed lock.
func (l *Ledger) withLock(ctx context.Context, fn func(context.Context) error) error {
	if l == nil || l.store == nil {
		return domain.ErrLedgerUnavailable
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, lockKey, l.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				l.logger.Warn("Failed to release distributed lock (will expire via TTL)", "err", err)
			}
		}()
	}

	return fn(ctx)
}
