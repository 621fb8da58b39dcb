// Package main is the entry point for newsbell, which watches news and
// video sources for a tracked company, sends Telegram alerts for new items
// and a daily digest with the current stock quote.
//
// Startup sequence:
//  1. Load configuration and build the logger
//  2. Wire every component via the DI container
//  3. Re-arm alert timers spooled by the previous run
//  4. Announce startup and send the digest once
//  5. Start the HTTP status API and the scheduler loop
//  6. On SIGINT/SIGTERM, stop the loop, drain or spool pending alerts, stop
//     the HTTP server and close the database
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/newsbell/internal/config"
	"github.com/aristath/newsbell/internal/di"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/server"
	"github.com/aristath/newsbell/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("entity", cfg.Sources.Entity).
		Str("timezone", cfg.Timezone).
		Str("data_dir", cfg.DataDir).
		Msg("Starting newsbell")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if restored, err := container.Alerts.Restore(cfg.SpoolPath()); err != nil {
		log.Error().Err(err).Msg("Failed to restore spooled alerts")
	} else if restored > 0 {
		log.Info().Int("count", restored).Msg("Spooled alerts re-armed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container.Notifier.Broadcast(ctx, notify.KindStartup, notify.RenderStartup(cfg.Sources.Entity))

	var srv *server.Server
	if cfg.HTTP {
		srv = server.New(server.Config{
			Log:        log,
			Port:       cfg.Port,
			LogFile:    cfg.LogFile,
			Jobs:       container.Scheduler,
			Ledger:     container.Ledger,
			Alerts:     container.Alerts,
			Quote:      container.Monitor,
			Deliveries: container.Deliveries,
			Database:   container.DB,
			Bus:        container.EventBus,
		})

		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
	}

	// The digest runs once at startup, then the loop takes over. Both run
	// on the loop goroutine so jobs never overlap.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := container.Scheduler.RunNow(context.WithoutCancel(ctx), di.JobDailySummary); err != nil {
			log.Error().Err(err).Msg("Startup digest failed")
		}
		container.Scheduler.Run(ctx)
	}()

	log.Info().Msg("newsbell running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Stop the loop; a job already running finishes first.
	cancel()
	<-loopDone
	log.Info().Msg("Scheduler stopped")

	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer graceCancel()
	if err := container.Alerts.Shutdown(graceCtx, cfg.SpoolPath()); err != nil {
		log.Error().Err(err).Msg("Failed to spool pending alerts")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}

	log.Info().Msg("newsbell stopped")
}
