// Package di provides dependency injection for scheduler jobs.
package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/config"
	"github.com/aristath/newsbell/internal/scheduler"
)

// Job names.
const (
	JobDailySummary  = "daily_summary"
	JobRealtimeCheck = "realtime_check"
	JobQuoteRefresh  = "quote_refresh" // suffixed with _HHMM per configured time
	JobMaintenance   = "db_maintenance"
	JobLedgerBackup  = "ledger_backup"
)

// RegisterJobs registers every job with the scheduler.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.Scheduler == nil {
		return fmt.Errorf("container cannot be nil")
	}
	loc := cfg.Location
	m := container.Monitor

	var specs []scheduler.JobSpec

	// ==========================================
	// Digest and real-time alerts
	// ==========================================
	summaryAt, err := scheduler.ParseDailyAt(cfg.Schedule.SummaryAt, loc)
	if err != nil {
		return fmt.Errorf("daily summary trigger: %w", err)
	}
	specs = append(specs, scheduler.JobSpec{
		Name:    JobDailySummary,
		Trigger: summaryAt,
		Handler: m.DailySummary,
	})

	specs = append(specs, scheduler.JobSpec{
		Name:    JobRealtimeCheck,
		Trigger: scheduler.Every(cfg.Schedule.RealtimeEvery),
		Handler: func(ctx context.Context) error {
			_, err := m.RealtimeCheck(ctx)
			return err
		},
	})

	// ==========================================
	// Quote refreshes, one job per time of day
	// ==========================================
	for _, hhmm := range cfg.Schedule.QuoteAt {
		trigger, err := scheduler.ParseDailyAt(hhmm, loc)
		if err != nil {
			return fmt.Errorf("quote refresh trigger: %w", err)
		}
		specs = append(specs, scheduler.JobSpec{
			Name:    JobQuoteRefresh + "_" + strings.ReplaceAll(strings.TrimSpace(hhmm), ":", ""),
			Trigger: trigger,
			Handler: m.QuoteRefresh,
		})
	}

	// ==========================================
	// Reliability
	// ==========================================
	if container.Maintenance != nil {
		trigger, err := scheduler.ParseDailyAt(cfg.Schedule.MaintenanceAt, loc)
		if err != nil {
			return fmt.Errorf("maintenance trigger: %w", err)
		}
		specs = append(specs, scheduler.JobSpec{
			Name:    JobMaintenance,
			Trigger: trigger,
			Handler: container.Maintenance.Run,
		})
	}

	if container.Backup != nil {
		trigger, err := scheduler.ParseDailyAt(cfg.Backup.At, loc)
		if err != nil {
			return fmt.Errorf("ledger backup trigger: %w", err)
		}
		specs = append(specs, scheduler.JobSpec{
			Name:    JobLedgerBackup,
			Trigger: trigger,
			Handler: container.Backup.Run,
		})
	}

	for _, spec := range specs {
		if err := container.Scheduler.Register(spec); err != nil {
			return err
		}
	}

	log.Info().Int("jobs", len(specs)).Msg("Jobs registered")
	return nil
}
