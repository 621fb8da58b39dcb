// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/config"
	"github.com/aristath/newsbell/internal/database"
	"github.com/aristath/newsbell/internal/ledger"
)

// InitializeDatabases opens newsbell.db and the seen-item ledger.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// newsbell.db - delivery log and quote history
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "newsbell",
		Driver:  cfg.DBDriver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize newsbell database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate newsbell database: %w", err)
	}
	container.DB = db

	// sent_links.txt - append-only seen-item log
	l, err := ledger.Open(cfg.LedgerPath(), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	container.Ledger = l

	log.Info().
		Str("database", db.Path()).
		Str("driver", db.Driver()).
		Int("seen_items", l.Len()).
		Msg("Storage initialized")

	return container, nil
}
