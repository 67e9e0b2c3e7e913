package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/config"
	"respondeo-service/internal/infra/memory"
	"respondeo-service/internal/infra/store"
	"respondeo-service/internal/logging"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogOptions())
	defer log.Sync()

	if cfg.Database.Dialect == config.DialectMemory {
		log.Info("in-memory store has no schema, nothing to migrate")
		return nil
	}
	db, err := store.Open(cfg.StoreOptions(), log.Named("store"))
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}

// openStore connects the configured store and brings its schema up to date.
// The returned func releases it.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (app.Store, func(), error) {
	if cfg.Database.Dialect == config.DialectMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	db, err := store.Open(cfg.StoreOptions(), log.Named("store"))
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect %s: %w", cfg.Database.Dialect, err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}, nil
}
