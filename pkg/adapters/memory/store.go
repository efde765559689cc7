// Package memory provides in-process implementations of the ports.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/tabloop/pkg/domain"
)

// LedgerStore implements ports.LedgerStore in memory.
// Safe for concurrent use.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

// NewLedgerStore creates an empty store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Append implements ports.LedgerStore.
func (s *LedgerStore) Append(_ context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List implements ports.LedgerStore.
func (s *LedgerStore) List(_ context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), nil
}

// Clear implements ports.LedgerStore.
func (s *LedgerStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
