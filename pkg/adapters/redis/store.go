// Package redis provides Redis-backed ledger storage, distributed locking and
// event publishing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tabloop/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the adapters write.
const DefaultPrefix = "tabloop:ledger:"

// LedgerStore implements ports.LedgerStore using Redis.
//
// Each entry is a JSON string key (optionally expiring) and an index ZSET
// scored by creation time keeps append order. Index members whose key has
// expired are pruned lazily by List.
type LedgerStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*LedgerStore)

// WithTTL sets the expiration for entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *LedgerStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for entries.
func WithPrefix(prefix string) Option {
	return func(s *LedgerStore) {
		s.prefix = prefix
	}
}

// New creates a new Redis ledger store with options.
func New(address, password string, db int, opts ...Option) *LedgerStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis ledger store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *LedgerStore {
	store := &LedgerStore{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, for sharing with a Locker or Publisher.
func (s *LedgerStore) Client() *backend.Client {
	return s.client
}

func (s *LedgerStore) key(id string) string {
	return s.prefix + "entry:" + id
}

func (s *LedgerStore) indexKey() string {
	return s.prefix + "index"
}

// Append persists the entry to Redis.
func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(entry.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(created.UnixMicro()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// List returns the live entries in creation order.
func (s *LedgerStore) List(ctx context.Context) ([]domain.LedgerEntry, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(vals))
	var expired []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var e domain.LedgerEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger entry %s: %w", ids[i], err)
		}
		entries = append(entries, e)
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil && !errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("failed to prune expired entries: %w", err)
		}
	}
	return entries, nil
}

// Clear removes every entry and the index.
func (s *LedgerStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list ledger index: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.key(id))
	}
	pipe.Del(ctx, s.indexKey())
	_, err = pipe.Exec(ctx)
	return err
}

// Close closes the redis client.
func (s *LedgerStore) Close() error {
	return s.client.Close()
}
