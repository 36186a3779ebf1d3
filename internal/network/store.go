package network

import (
	"context"
	"fmt"

	"github.com/iotaledger/explorer-sub006/internal/config"
	"github.com/iotaledger/explorer-sub006/internal/database"
	"github.com/iotaledger/explorer-sub006/internal/store"
	"github.com/iotaledger/explorer-sub006/internal/store/mongo"
	"github.com/iotaledger/explorer-sub006/internal/store/postgres"
	"github.com/iotaledger/explorer-sub006/internal/store/redis"
)

// OpenStore opens the milestone store selected by cfg.Type.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (store.MilestoneStore, error) {
	switch cfg.Type {
	case "", "memory":
		return store.NewMemory(), nil
	case "file":
		s, err := store.NewFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := postgres.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongo.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
