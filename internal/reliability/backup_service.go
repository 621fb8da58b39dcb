// Package reliability keeps the seen-item log and the database safe: daily
// off-site backups of the log and routine database maintenance.
package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
)

const (
	backupPrefix = "ledger/sent_links-"
	backupSuffix = ".txt"
	latestKey    = backupPrefix + "latest" + backupSuffix

	// minBackupsToKeep survive rotation regardless of age.
	minBackupsToKeep = 3
)

// BackupInfo describes one dated ledger backup.
type BackupInfo struct {
	Key       string    `json:"key"`
	Day       time.Time `json:"day"`
	SizeBytes int64     `json:"size_bytes"`
}

// LedgerBackup uploads the seen-item log to an object store once per day.
type LedgerBackup struct {
	store         ObjectStore
	ledgerPath    string
	retentionDays int
	clock         clock.Clock
	loc           *time.Location
	log           zerolog.Logger
}

// NewLedgerBackup creates the backup service. retentionDays of zero keeps
// every dated copy.
func NewLedgerBackup(store ObjectStore, ledgerPath string, retentionDays int, clk clock.Clock, loc *time.Location, log zerolog.Logger) *LedgerBackup {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerBackup{
		store:         store,
		ledgerPath:    ledgerPath,
		retentionDays: retentionDays,
		clock:         clk,
		loc:           loc,
		log:           log.With().Str("service", "ledger_backup").Logger(),
	}
}

// Run uploads today's copy and the latest copy, then rotates old copies.
// A missing log is not an error.
func (b *LedgerBackup) Run(ctx context.Context) error {
	data, err := os.ReadFile(b.ledgerPath)
	if errors.Is(err, os.ErrNotExist) {
		b.log.Info().Str("path", b.ledgerPath).Msg("No ledger yet, nothing to back up")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	day := b.clock.Now().In(b.loc).Format("2006-01-02")
	key := backupPrefix + day + backupSuffix

	for _, k := range []string{key, latestKey} {
		if err := b.store.Upload(ctx, k, bytes.NewReader(data)); err != nil {
			return err
		}
	}

	b.log.Info().
		Str("key", key).
		Int("bytes", len(data)).
		Str("checksum", fmt.Sprintf("sha256:%x", sha256.Sum256(data))).
		Msg("Ledger backup uploaded")

	return b.RotateOldBackups(ctx)
}

// ListBackups returns the dated copies, newest first.
func (b *LedgerBackup) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := b.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == latestKey || !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), backupSuffix)
		day, err := time.ParseInLocation("2006-01-02", stamp, b.loc)
		if err != nil {
			b.log.Warn().Str("key", obj.Key).Msg("Failed to parse date from backup key")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, Day: day, SizeBytes: obj.Size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Day.After(backups[j].Day)
	})
	return backups, nil
}

// RotateOldBackups deletes dated copies older than the retention period,
// always keeping the newest few.
func (b *LedgerBackup) RotateOldBackups(ctx context.Context) error {
	if b.retentionDays == 0 {
		return nil
	}

	backups, err := b.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := b.clock.Now().In(b.loc).AddDate(0, 0, -b.retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Day.Before(cutoff) {
			continue
		}
		if err := b.store.Delete(ctx, backup.Key); err != nil {
			b.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		b.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("Old ledger backups rotated")
	}
	return nil
}
