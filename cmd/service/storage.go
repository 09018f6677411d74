package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/memory"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/mongo"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/postgres"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// storeCloseTimeout bounds disconnecting from the database on exit.
const storeCloseTimeout = 5 * time.Second

// openStore connects the configured storage driver and prepares its schema.
func openStore(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (ports.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		client, err := mongo.Connect(ctx, mongo.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
			RetryAttempts:  cfg.RetryAttempts,
			RetryInterval:  cfg.RetryInterval,
		})
		if err != nil {
			return nil, err
		}

		store := mongo.New(client, cfg.Mongo.Database)
		if err := store.EnsureIndexes(ctx); err != nil {
			closeStore(store, logger)
			return nil, fmt.Errorf("ensuring mongo indexes: %w", err)
		}

		logger.Info("connected to mongo", slog.String("database", cfg.Mongo.Database))

		return store, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			RetryAttempts:   cfg.RetryAttempts,
			RetryInterval:   cfg.RetryInterval,
			MigrationsTable: cfg.Postgres.MigrationsTable,
		})
		if err != nil {
			return nil, err
		}

		if err := postgres.Migrate(ctx, pool, cfg.Postgres.MigrationsTable, logger); err != nil {
			pool.Close()
			return nil, err
		}

		logger.Info("connected to postgres")

		return postgres.New(pool), nil

	case config.DriverMemory:
		logger.Warn("using in-memory identity store; data is lost on exit")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func closeStore(store ports.Store, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()

	if err := store.Close(ctx); err != nil {
		logger.Error("store close error", slog.Any("error", err))
	}
}
