package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/app"
	"github.com/danielkorkin/tiktok-depression-survey/internal/config"
)

// migrate applies pending migrations for the configured database. Opening a
// store runs them, so this opens and closes one.
func migrate(ctx context.Context, cfg config.DatabaseConfig) error {
	logger := log.WithFields(log.Fields{"prefix": "migrate", "driver": cfg.Driver})
	if cfg.Driver == "memory" {
		logger.Info("memory driver has no schema, nothing to migrate")
		return nil
	}
	logger.Info("applying migrations")
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close database")
	}
	logger.Info("migrations complete")
	return nil
}
