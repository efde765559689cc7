// Package sqlite provides a SQLite-backed ledger store using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aretw0/tabloop/pkg/domain"
	_ "modernc.org/sqlite"
)

// LedgerStore implements ports.LedgerStore on a SQLite table.
type LedgerStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and prepares the schema.
// Use ":memory:" for a throwaway ledger.
func Open(path string) (*LedgerStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and writes serialised.
	db.SetMaxOpenConns(1)

	store, err := NewLedgerStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewLedgerStore uses an already opened database and creates the schema.
func NewLedgerStore(db *sql.DB) (*LedgerStore, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			run_id          TEXT NOT NULL,
			question        TEXT NOT NULL,
			success         INTEGER NOT NULL,
			iterations_used INTEGER NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			answer          TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

// Append implements ports.LedgerStore.
func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, run_id, question, success, iterations_used, reason, answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Question, e.Success, e.IterationsUsed, e.Reason, e.Answer,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// List implements ports.LedgerStore.
func (s *LedgerStore) List(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, question, success, iterations_used, reason, answer, created_at
		FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e       domain.LedgerEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Question, &e.Success, &e.IterationsUsed, &e.Reason, &e.Answer, &created); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear implements ports.LedgerStore.
func (s *LedgerStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
		return fmt.Errorf("clear ledger entries: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}
