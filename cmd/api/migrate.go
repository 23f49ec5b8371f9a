package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spec-kit/factory-support/internal/config"
	"github.com/spec-kit/factory-support/internal/observability"
	"github.com/spec-kit/factory-support/internal/persistence"
	"github.com/spec-kit/factory-support/internal/repository/dynamo"
	"github.com/spec-kit/factory-support/internal/repository/embedded"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema for the configured store driver and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.App, cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			ctx := cmd.Context()

			if cfg.Store.Driver == config.StoreDriverSQLite {
				db, err := embedded.Open(cfg.Store.SQLitePath)
				if err != nil {
					return err
				}
				logger.Info("sqlite schema ready", zap.String("path", cfg.Store.SQLitePath))
				return db.Close()
			}

			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				return err
			}

			if cfg.Store.Driver == config.StoreDriverDynamoDB {
				client, err := dynamo.NewClient(ctx, cfg.Store)
				if err != nil {
					return err
				}
				return dynamo.EnsureTables(ctx, client, dynamo.TablesWithPrefix(cfg.Store.DynamoTablePrefix), logger)
			}
			return nil
		},
	}
}
