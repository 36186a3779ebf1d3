// Package mongo stores milestone sets in MongoDB, one document per network.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/store"
)

const connectTimeout = 5 * time.Second

// Collection is the subset of *mgo.Collection used by Store.
type Collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mgo.SingleResult
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mgo.UpdateResult, error)
}

// Store is a MilestoneStore backed by a MongoDB collection.
type Store struct {
	col    Collection
	client *mgo.Client
}

// Open connects to cfg.URI and selects the configured collection.
func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mgo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client.Database(cfg.Database).Collection(cfg.Collection))
	s.client = client
	return s, nil
}

// New wraps a collection.
func New(col Collection) *Store {
	return &Store{col: col}
}

// Get finds the document whose _id is network.
func (s *Store) Get(ctx context.Context, network string) (*store.MilestoneSet, error) {
	var set store.MilestoneSet
	err := s.col.FindOne(ctx, bson.M{"_id": network}).Decode(&set)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find milestones: %w", err)
	}
	return &set, nil
}

// Set replaces the document for set.Network, inserting it if missing.
func (s *Store) Set(ctx context.Context, set *store.MilestoneSet) error {
	if err := store.Validate(set); err != nil {
		return err
	}
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": set.Network}, set, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace milestones: %w", err)
	}
	return nil
}

// Close disconnects the client opened by Open.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
