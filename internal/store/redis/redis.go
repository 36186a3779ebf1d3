// Package redis stores milestone sets in Redis as msgpack-encoded values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

// Commander is the subset of *goredis.Client used by Store.
type Commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// Store is a MilestoneStore backed by Redis.
type Store struct {
	rdb    Commander
	prefix string
}

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(rdb, cfg.KeyPrefix), nil
}

// New wraps an existing client.
func New(rdb Commander, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Key returns the Redis key holding network's set.
func (s *Store) Key(network string) string {
	return s.prefix + network
}

// Get loads the set for network.
func (s *Store) Get(ctx context.Context, network string) (*store.MilestoneSet, error) {
	raw, err := s.rdb.Get(ctx, s.Key(network)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var set store.MilestoneSet
	if err := msgpack.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	set.Network = network
	return &set, nil
}

// Set writes the set without expiry.
func (s *Store) Set(ctx context.Context, set *store.MilestoneSet) error {
	if err := store.Validate(set); err != nil {
		return err
	}
	raw, err := msgpack.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	if err := s.rdb.Set(ctx, s.Key(set.Network), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the client if it owns one.
func (s *Store) Close() error {
	if c, ok := s.rdb.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
