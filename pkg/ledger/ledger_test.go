package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ledger"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore detects overlapping writes.
type SlowStore struct {
	memory.LedgerStore
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (s *SlowStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(2 * time.Millisecond) // Simulate IO
	return s.LedgerStore.Append(ctx, e)
}

type countingLocker struct {
	locks, unlocks atomic.Int32
	err            error
}

func (c *countingLocker) Lock(_ context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.locks.Add(1)
	return func(context.Context) error {
		c.unlocks.Add(1)
		return nil
	}, nil
}

func TestLedger_Contract(t *testing.T) {
	ports.RunLedgerStoreContract(t, ledger.New(memory.NewLedgerStore()))
}

func TestLedger_SerialisesAppends(t *testing.T) {
	store := &SlowStore{}
	l := ledger.New(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(ctx, domain.LedgerEntry{RunID: "run", Success: i%2 == 0}))
		}()
	}
	wg.Wait()

	assert.False(t, store.overlap.Load(), "appends must not overlap")
	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerSummary{TotalNodes: 10, SuccessCount: 5, FailureCount: 5, SuccessRate: 0.5}, summary)
}

func TestLedger_DistributedLock(t *testing.T) {
	locker := &countingLocker{}
	l := ledger.New(memory.NewLedgerStore(), ledger.WithLocker(locker))
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, domain.LedgerEntry{Success: true}))
	require.NoError(t, l.Clear(ctx))
	assert.Equal(t, int32(2), locker.locks.Load())
	assert.Equal(t, int32(2), locker.unlocks.Load())

	locker.err = errors.New("redis down")
	err := l.Append(ctx, domain.LedgerEntry{})
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
	assert.ErrorContains(t, err, "redis down")
}

func TestLedger_Unavailable(t *testing.T) {
	l := ledger.New(nil)
	ctx := context.Background()

	assert.ErrorIs(t, l.Append(ctx, domain.LedgerEntry{}), domain.ErrLedgerUnavailable)
	assert.ErrorIs(t, l.Clear(ctx), domain.ErrLedgerUnavailable)
	_, err := l.Summary(ctx)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestLedger_EmptySummary(t *testing.T) {
	summary, err := ledger.New(memory.NewLedgerStore()).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerSummary{}, summary)
}
