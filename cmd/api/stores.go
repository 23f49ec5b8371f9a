package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/api/http/handlers"
	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/persistence"
	"github.com/spec-kit/factory-support/internal/repository"
	"github.com/spec-kit/factory-support/internal/repository/dynamo"
	"github.com/spec-kit/factory-support/internal/repository/embedded"
)

// stores is the storage selected by CHAT_STORE_DRIVER plus its readiness probes.
type stores struct {
	repos   *repository.Store
	pingers map[string]handlers.Pinger
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{pingers: map[string]handlers.Pinger{}}

	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := embedded.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		st.pingers["sqlite"] = db
		st.repos = db.Store()
		logger.Info("using sqlite store", zap.String("path", cfg.Store.SQLitePath))
		return st, nil

	case config.StoreDriverPostgres, config.StoreDriverDynamoDB:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pg.Close)
		st.pingers["postgres"] = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				st.Close()
				return nil, err
			}
		}
		st.repos = repository.NewPostgresStore(pg.PoolHandle())
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Store.Driver == config.StoreDriverDynamoDB {
		client, err := dynamo.NewClient(ctx, cfg.Store)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		tables := dynamo.TablesWithPrefix(cfg.Store.DynamoTablePrefix)
		if cfg.Store.DynamoCreateTables {
			if err := dynamo.EnsureTables(ctx, client, tables, logger); err != nil {
				st.Close()
				return nil, err
			}
		}
		ds := dynamo.NewStore(client, tables)
		st.repos.Channels = ds.Channels()
		st.repos.Messages = ds.Messages()
		st.pingers["dynamodb"] = ds
		logger.Info("using dynamodb chat store", zap.String("table_prefix", cfg.Store.DynamoTablePrefix))
	}
	return st, nil
}
