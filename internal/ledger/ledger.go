// Package ledger implements the seen-item ledger: a durable, append-only set
// of item links that have already been announced.
//
// The backing store is a UTF-8 text file with one link per line. It is read
// once at startup and appended to on every new mark. Marks are additive and
// idempotent, so concurrent writers (daily summary, real-time check, alert
// timers) never need more than the internal mutex.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Ledger is the single source of truth for "already announced".
type Ledger struct {
	path     string
	seen     map[string]struct{}
	degraded bool
	mu       sync.RWMutex
	log      zerolog.Logger

	// openFile is swapped in tests to simulate persistence failures.
	openFile func(path string) (*os.File, error)
}

// Open loads the ledger at path. A missing file yields an empty ledger.
func Open(path string, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		path:     path,
		seen:     make(map[string]struct{}),
		log:      log.With().Str("component", "ledger").Logger(),
		openFile: openAppend,
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	l.log.Info().Str("path", path).Int("entries", len(l.seen)).Msg("Seen-item ledger loaded")
	return l, nil
}

func (l *Ledger) load() error {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			l.seen[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger %s: %w", l.path, err)
	}
	return nil
}

// IsSeen reports whether id has been marked.
func (l *Ledger) IsSeen(id string) bool {
	id = strings.TrimSpace(id)
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// MarkSeen records id. Marking an id twice is a no-op.
func (l *Ledger) MarkSeen(id string) {
	l.MarkIfNew(id)
}

// MarkIfNew records id and reports whether this call was the one that
// recorded it. The check and the mark happen under one lock, so of two
// overlapping callers exactly one gets true.
//
// A persistence failure does not fail the mark: the id is kept in memory for
// the rest of the run and the ledger reports itself as degraded.
func (l *Ledger) MarkIfNew(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n") {
		l.log.Warn().Str("id", id).Msg("Refusing to record invalid ledger id")
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}

	if err := l.appendLine(id); err != nil {
		l.degraded = true
		l.log.Warn().Err(err).Str("id", id).Msg("Failed to persist ledger entry, tracking in memory only")
	}
	return true
}

func (l *Ledger) appendLine(id string) error {
	f, err := l.openFile(l.path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	return nil
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

// Degraded reports whether any write has failed during this run.
func (l *Ledger) Degraded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.degraded
}

// Path returns the backing file location.
func (l *Ledger) Path() string {
	return l.path
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger for append: %w", err)
	}
	return f, nil
}
