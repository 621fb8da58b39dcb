package reliability

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/newsbell/internal/database"
)

// minFreeBytes below which maintenance reports a failure.
const minFreeBytes = 200 << 20

// DatabaseMaintenance is the daily database housekeeping job.
type DatabaseMaintenance struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewDatabaseMaintenance creates the job for db, checking free space on the
// volume holding dataDir.
func NewDatabaseMaintenance(db *database.DB, dataDir string, log zerolog.Logger) *DatabaseMaintenance {
	return &DatabaseMaintenance{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Run checks integrity, truncates the WAL and verifies free disk space.
func (m *DatabaseMaintenance) Run(ctx context.Context) error {
	if err := m.db.HealthCheck(ctx); err != nil {
		return err
	}

	if err := m.db.WALCheckpoint("TRUNCATE"); err != nil {
		// Not critical; the next checkpoint catches up.
		m.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := m.checkDiskSpace(ctx); err != nil {
		return err
	}

	m.logSize(ctx)
	return nil
}

func (m *DatabaseMaintenance) checkDiskSpace(ctx context.Context) error {
	usage, err := disk.UsageWithContext(ctx, m.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	freeMB := float64(usage.Free) / 1024 / 1024
	m.log.Debug().Float64("free_mb", freeMB).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")

	if usage.Free < minFreeBytes {
		return fmt.Errorf("only %.0f MB free in %s", freeMB, m.dataDir)
	}
	if usage.UsedPercent > 90 {
		m.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}

func (m *DatabaseMaintenance) logSize(ctx context.Context) {
	var pageCount, pageSize int64
	conn := m.db.Conn()
	if err := conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return
	}
	if err := conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return
	}

	event := m.log.Info().Float64("size_mb", float64(pageCount*pageSize)/1024/1024)
	if info, err := os.Stat(m.db.Path() + "-wal"); err == nil {
		event = event.Float64("wal_size_mb", float64(info.Size())/1024/1024)
	}
	event.Msg("Database maintenance completed")
}
