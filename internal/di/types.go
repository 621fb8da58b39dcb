/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived component of the process. It is
 * created by Wire() and handed to main, which starts the scheduler loop and
 * the HTTP server from it.
 */
package di

import (
	"github.com/aristath/newsbell/internal/alerts"
	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/database"
	"github.com/aristath/newsbell/internal/events"
	"github.com/aristath/newsbell/internal/ledger"
	"github.com/aristath/newsbell/internal/monitor"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/quote"
	"github.com/aristath/newsbell/internal/reliability"
	"github.com/aristath/newsbell/internal/scheduler"
	"github.com/aristath/newsbell/internal/sources"
)

// Container holds all dependencies for the application.
type Container struct {
	// Infrastructure
	Clock    clock.Clock
	EventBus *events.Bus
	DB       *database.DB
	Ledger   *ledger.Ledger

	// Repositories
	Deliveries *notify.DeliveryRepository
	History    *quote.HistoryRepository

	// Engine
	Poller    *sources.Poller
	Sources   []sources.SourceSpec
	Notifier  *notify.Notifier
	Resolver  *quote.Resolver
	Providers []quote.Provider
	Monitor   *monitor.Monitor
	Alerts    *alerts.Scheduler
	Scheduler *scheduler.Scheduler

	// Reliability (Backup is nil when no bucket is configured)
	Maintenance *reliability.DatabaseMaintenance
	Backup      *reliability.LedgerBackup
}

// Close releases the database connection.
func (c *Container) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
