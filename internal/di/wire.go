// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Open the database and the ledger
// 2. Build the engine (sources, notifier, quote chain, monitor, scheduler)
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	return WireWithClock(cfg, clock.NewReal(), log)
}

// WireWithClock is Wire with an explicit clock, for tests.
func WireWithClock(cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize storage
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize services
	if err := InitializeServices(container, cfg, clk, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 3: Register jobs
	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
