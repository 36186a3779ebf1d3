// Package store defines the milestone persistence contract and the
// in-process backends.
//
// Backends:
//   - Memory: process-local map, used in tests and when storage is disabled
//   - File: one JSON document per network under a directory
//
// Database backends live in the postgres, redis and mongo subpackages.
// Callers treat any error as "no persisted state".
package store

import (
	"context"
	"errors"
	"sync"
)

// Errors
var (
	ErrNotFound   = errors.New("record not found")
	ErrNilRecord  = errors.New("nil record")
	ErrNoNetwork  = errors.New("record has no network")
	ErrStoreClose = errors.New("store closed")
)

// MilestoneRecord is one tracked milestone.
type MilestoneRecord struct {
	ID             string `json:"id" bson:"id" msgpack:"id"`
	MilestoneIndex uint32 `json:"milestoneIndex" bson:"milestoneIndex" msgpack:"milestoneIndex"`
}

// MilestoneSet is the persisted milestone history of one network,
// newest first.
type MilestoneSet struct {
	Network string            `json:"network" bson:"_id" msgpack:"network"`
	Indexes []MilestoneRecord `json:"indexes" bson:"indexes" msgpack:"indexes"`
}

// Clone returns a deep copy of s.
func (s *MilestoneSet) Clone() *MilestoneSet {
	if s == nil {
		return nil
	}
	out := &MilestoneSet{Network: s.Network, Indexes: make([]MilestoneRecord, len(s.Indexes))}
	copy(out.Indexes, s.Indexes)
	return out
}

// MilestoneStore persists milestone sets keyed by network.
type MilestoneStore interface {
	// Get returns the set stored for network, or ErrNotFound.
	Get(ctx context.Context, network string) (*MilestoneSet, error)

	// Set replaces the set stored for set.Network.
	Set(ctx context.Context, set *MilestoneSet) error

	// Close releases backend resources.
	Close() error
}

// Validate checks that set can be stored.
func Validate(set *MilestoneSet) error {
	if set == nil {
		return ErrNilRecord
	}
	if set.Network == "" {
		return ErrNoNetwork
	}
	return nil
}

// Memory is an in-process MilestoneStore.
type Memory struct {
	mu     sync.RWMutex
	sets   map[string]*MilestoneSet
	closed bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]*MilestoneSet)}
}

// Get returns a copy of the stored set.
func (m *Memory) Get(ctx context.Context, network string) (*MilestoneSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClose
	}
	set, ok := m.sets[network]
	if !ok {
		return nil, ErrNotFound
	}
	return set.Clone(), nil
}

// Set stores a copy of set.
func (m *Memory) Set(ctx context.Context, set *MilestoneSet) error {
	if err := Validate(set); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClose
	}
	m.sets[set.Network] = set.Clone()
	return nil
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
