// Package postgres stores milestone sets in PostgreSQL, one row per network.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iotaledger/explorer-sub006/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS milestones (
	network    TEXT PRIMARY KEY,
	indexes    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectSet = `SELECT indexes FROM milestones WHERE network = $1`
	upsertSet = `
INSERT INTO milestones (network, indexes, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (network) DO UPDATE SET indexes = EXCLUDED.indexes, updated_at = EXCLUDED.updated_at`
)

// Querier is the subset of *pgxpool.Pool used by Store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a MilestoneStore backed by a pgx pool.
type Store struct {
	db Querier
}

// New wraps an open pool. Close closes it if it has a Close method.
func New(db Querier) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the milestones table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create milestones table: %w", err)
	}
	return nil
}

// Get loads the set for network.
func (s *Store) Get(ctx context.Context, network string) (*store.MilestoneSet, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, selectSet, network).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select milestones: %w", err)
	}

	set := &store.MilestoneSet{Network: network}
	if err := json.Unmarshal(raw, &set.Indexes); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	return set, nil
}

// Set upserts the set for set.Network.
func (s *Store) Set(ctx context.Context, set *store.MilestoneSet) error {
	if err := store.Validate(set); err != nil {
		return err
	}
	raw, err := json.Marshal(set.Indexes)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertSet, set.Network, raw); err != nil {
		return fmt.Errorf("upsert milestones: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
