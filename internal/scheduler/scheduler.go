// Package scheduler runs registered jobs from a single cooperative loop
// polled at a coarse tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/events"
)

// DefaultTick is the loop resolution. Triggers fire within one tick of
// their due time.
const DefaultTick = time.Minute

// ErrUnknownJob is returned by RunNow for an unregistered name.
var ErrUnknownJob = errors.New("unknown job")

// Handler is the work a job performs.
type Handler func(ctx context.Context) error

// JobSpec registers a named handler with its trigger.
type JobSpec struct {
	Name    string
	Trigger Trigger
	Handler Handler
}

// JobStatus is a read-only view of a registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Trigger  string    `json:"trigger"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
}

type job struct {
	spec   JobSpec
	next   time.Time
	status JobStatus
}

// Scheduler owns every JobSpec for the lifetime of the process. Jobs run
// one at a time; a slow handler delays the jobs due after it in the same
// tick.
type Scheduler struct {
	clock clock.Clock
	tick  time.Duration
	bus   *events.Bus
	log   zerolog.Logger

	mu     sync.Mutex
	jobs   []*job
	byName map[string]*job

	// runMu serialises handlers between the loop and manual runs.
	runMu sync.Mutex
}

// New creates a scheduler. bus may be nil.
func New(clk clock.Clock, tick time.Duration, bus *events.Bus, log zerolog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		clock:  clk,
		tick:   tick,
		bus:    bus,
		log:    log.With().Str("component", "scheduler").Logger(),
		byName: make(map[string]*job),
	}
}

// Register adds a job. Its first due time is the trigger's next time after
// now. Names must be unique.
func (s *Scheduler) Register(spec JobSpec) error {
	if spec.Name == "" || spec.Trigger == nil || spec.Handler == nil {
		return fmt.Errorf("job spec requires name, trigger and handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[spec.Name]; exists {
		return fmt.Errorf("job %q already registered", spec.Name)
	}

	j := &job{spec: spec, next: spec.Trigger.Next(s.clock.Now())}
	j.status = JobStatus{Name: spec.Name, Trigger: spec.Trigger.String(), NextRun: j.next}
	s.jobs = append(s.jobs, j)
	s.byName[spec.Name] = j

	s.log.Info().
		Str("job", spec.Name).
		Str("trigger", j.status.Trigger).
		Time("next_run", j.next).
		Msg("Job registered")
	return nil
}

// RunPending runs, in registration order, every job due at or before now,
// then moves each to its trigger's next time after now. It returns the
// number of jobs run.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.next.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.execute(ctx, j)

		s.mu.Lock()
		j.next = j.spec.Trigger.Next(now)
		j.status.NextRun = j.next
		s.mu.Unlock()
	}
	return len(due)
}

// RunNow runs the named job immediately without moving its schedule and
// returns the handler's error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Has reports whether name is registered.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	return ok
}

// Jobs returns the status of every job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.status)
	}
	return out
}

// Run drives RunPending from a ticker until ctx is cancelled. Handlers get
// a context that outlives cancellation so the tick in progress completes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info().Dur("tick", s.tick).Int("jobs", len(s.Jobs())).Msg("Scheduler loop started")
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler loop stopped")
			return
		case <-ticker.C():
			s.RunPending(jobCtx, s.clock.Now())
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.clock.Now()
	log := s.log.With().Str("job", j.spec.Name).Logger()
	log.Info().Msg("Job started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}

		elapsed := s.clock.Now().Sub(started)
		s.mu.Lock()
		j.status.LastRun = started
		j.status.Runs++
		j.status.LastErr = ""
		if err != nil {
			j.status.LastErr = err.Error()
			j.status.Failures++
		}
		s.mu.Unlock()

		data := &events.JobData{Name: j.spec.Name, DurationMs: elapsed.Milliseconds()}
		if err != nil {
			data.Error = err.Error()
			log.Error().Err(err).Dur("duration", elapsed).Msg("Job failed")
		} else {
			log.Info().Dur("duration", elapsed).Msg("Job completed")
		}
		if s.bus != nil {
			s.bus.Emit("scheduler", data)
		}
	}()

	return j.spec.Handler(ctx)
}
