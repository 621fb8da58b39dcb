// Package alerts delivers delayed notifications for newly detected items.
// Every armed timer is tracked so it can be listed, awaited at shutdown and
// spooled to disk if the process has to exit before it fires.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/domain"
)

// FireFunc performs the notification for an item whose delay elapsed.
type FireFunc func(ctx context.Context, item domain.CandidateItem)

// Scheduler runs one independent timer per armed item. Timers cannot be
// cancelled; each fires exactly once, either here or after a Restore.
type Scheduler struct {
	clock clock.Clock
	fire  FireFunc
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]domain.TimerHandle
	// spooled timers are owned by the spool file and must not fire here.
	spooled map[uuid.UUID]struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler calling fire for each elapsed timer.
func NewScheduler(clk clock.Clock, fire FireFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:   clk,
		fire:    fire,
		log:     log.With().Str("component", "alerts").Logger(),
		pending: make(map[uuid.UUID]domain.TimerHandle),
		spooled: make(map[uuid.UUID]struct{}),
	}
}

// Arm schedules item to fire after delay and returns its handle.
func (s *Scheduler) Arm(item domain.CandidateItem, delay time.Duration) domain.TimerHandle {
	if delay < 0 {
		delay = 0
	}
	now := s.clock.Now()
	h := domain.TimerHandle{
		ID:      uuid.New(),
		Item:    item,
		ArmedAt: now,
		FireAt:  now.Add(delay),
	}
	s.start(h, delay)

	s.log.Debug().
		Str("link", item.Link).
		Time("fire_at", h.FireAt).
		Msg("Alert armed")
	return h
}

// start registers h and waits delay on its own goroutine. The clock waiter
// is registered before start returns.
func (s *Scheduler) start(h domain.TimerHandle, delay time.Duration) {
	s.mu.Lock()
	s.pending[h.ID] = h
	s.mu.Unlock()

	s.wg.Add(1)
	elapsed := s.clock.After(delay)

	go func() {
		defer s.wg.Done()
		<-elapsed
		s.run(h)
	}()
}

// run claims h under the lock so a concurrent Shutdown either spools it or
// sees it gone, never both.
func (s *Scheduler) run(h domain.TimerHandle) {
	s.mu.Lock()
	_, spooled := s.spooled[h.ID]
	delete(s.spooled, h.ID)
	delete(s.pending, h.ID)
	s.mu.Unlock()

	if spooled {
		s.log.Debug().Str("link", h.Item.Link).Msg("Alert left to the spool")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("link", h.Item.Link).
				Msg("Alert delivery panicked")
		}
	}()

	s.fire(context.Background(), h.Item)
}

// Pending lists timers that have not fired yet, soonest first.
func (s *Scheduler) Pending() []domain.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Scheduler) pendingLocked() []domain.TimerHandle {
	out := make([]domain.TimerHandle, 0, len(s.pending))
	for id, h := range s.pending {
		if _, ok := s.spooled[id]; ok {
			continue
		}
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		if !out[i].ArmedAt.Equal(out[j].ArmedAt) {
			return out[i].ArmedAt.Before(out[j].ArmedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Wait blocks until every outstanding timer has fired or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for outstanding timers until ctx is done. Timers still
// pending then are written to spoolPath for Restore on the next start and
// will no longer fire in this process. If the spool cannot be written they
// stay armed here.
func (s *Scheduler) Shutdown(ctx context.Context, spoolPath string) error {
	if err := s.Wait(ctx); err == nil {
		s.log.Info().Msg("All pending alerts delivered")
		return nil
	}

	s.mu.Lock()
	pending := s.pendingLocked()
	for _, h := range pending {
		s.spooled[h.ID] = struct{}{}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if err := writeSpool(spoolPath, pending); err != nil {
		s.mu.Lock()
		for _, h := range pending {
			delete(s.spooled, h.ID)
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to spool %d pending alerts: %w", len(pending), err)
	}

	s.log.Warn().
		Int("count", len(pending)).
		Str("path", spoolPath).
		Msg("Shutdown grace expired, pending alerts spooled")
	return nil
}

// Restore re-arms timers spooled by a previous Shutdown, keeping their
// original fire times (overdue timers fire immediately), and removes the
// spool. A missing spool is not an error.
func (s *Scheduler) Restore(spoolPath string) (int, error) {
	data, err := os.ReadFile(spoolPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read alert spool: %w", err)
	}

	var handles []domain.TimerHandle
	if err := msgpack.Unmarshal(data, &handles); err != nil {
		return 0, fmt.Errorf("failed to decode alert spool: %w", err)
	}

	now := s.clock.Now()
	for _, h := range handles {
		delay := h.FireAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.start(h, delay)
	}

	if err := os.Remove(spoolPath); err != nil {
		s.log.Warn().Err(err).Str("path", spoolPath).Msg("Failed to remove alert spool")
	}

	s.log.Info().Int("count", len(handles)).Msg("Restored spooled alerts")
	return len(handles), nil
}

func writeSpool(path string, handles []domain.TimerHandle) error {
	data, err := msgpack.Marshal(handles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
