// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
)

// InitializeDatabases opens the price history database read-only when it is the
// configured price source. CSV sources need no database.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg, Log: log}

	if cfg.PriceSource != config.PriceSourceSQLite {
		return container, nil
	}

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDB,
		Profile: database.ProfileReadOnly,
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	log.Info().Str("path", historyDB.Path()).Msg("History database opened")
	return container, nil
}
