package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLedgerStoreContract runs a suite of tests to verify that a LedgerStore
// implementation adheres to the defined interface contract.
// The store must be empty when the suite starts.
func RunLedgerStoreContract(t *testing.T, store LedgerStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	entry := func(i int, success bool) domain.LedgerEntry {
		return domain.LedgerEntry{
			ID:             uuid.NewString(),
			RunID:          fmt.Sprintf("%s-%d", runID, i),
			Question:       fmt.Sprintf("question %d", i),
			Success:        success,
			IterationsUsed: i + 1,
			Answer:         "answer",
			CreatedAt:      time.Now().UTC().Truncate(time.Millisecond).Add(time.Duration(i) * time.Millisecond),
		}
	}

	t.Run("Append and List", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))

		first := entry(0, true)
		second := entry(1, false)
		second.Reason = domain.ReasonMaxIterations
		require.NoError(t, store.Append(ctx, first))
		require.NoError(t, store.Append(ctx, second))

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, first.Question, entries[0].Question)
		assert.True(t, entries[0].Success)
		assert.True(t, first.CreatedAt.Equal(entries[0].CreatedAt))
		assert.Equal(t, second.ID, entries[1].ID)
		assert.Equal(t, domain.ReasonMaxIterations, entries[1].Reason)
		assert.Equal(t, 2, entries[1].IterationsUsed)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, entry(2, true)))
		require.NoError(t, store.Clear(ctx))

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Concurrent Append", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.Append(ctx, entry(i, i%2 == 0)))
			}(i)
		}
		wg.Wait()

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 10)
		assert.Equal(t, 5, domain.Summarize(entries).SuccessCount)
	})
}
