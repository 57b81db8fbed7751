package repository

import (
	"context"
	"fmt"

	"loan-queue/internal/config"
)

// Open connects to the configured storage driver
func Open(ctx context.Context, cfg config.StorageConfig) (JobRepository, error) {
	switch cfg.Driver {
	case "sqlite":
		repo, err := NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mongo":
		repo, err := NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
