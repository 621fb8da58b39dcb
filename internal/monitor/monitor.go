// Package monitor composes the poller, ledger, alert timers, quote resolver
// and notifier into the jobs the scheduler runs.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/alerts"
	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/domain"
	"github.com/aristath/newsbell/internal/events"
	"github.com/aristath/newsbell/internal/ledger"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/quote"
	"github.com/aristath/newsbell/internal/sources"
)

// Options tune the jobs.
type Options struct {
	Entity         string
	Location       *time.Location
	Keywords       []string
	Exclude        []string
	YearFilter     bool
	RealtimeCutoff time.Duration
	SummaryCutoff  time.Duration
	AlertDelay     time.Duration
	SectionPause   time.Duration
	TrendSamples   int
	TrendWindow    int
}

// Deps are the collaborators a Monitor drives. History and Bus may be nil.
type Deps struct {
	Poller    *sources.Poller
	Sources   []sources.SourceSpec
	Ledger    *ledger.Ledger
	Notifier  *notify.Notifier
	Resolver  *quote.Resolver
	Providers []quote.Provider
	History   *quote.HistoryRepository
	Bus       *events.Bus
	Clock     clock.Clock
}

// Monitor runs the real-time check, the daily digest and the quote refresh.
type Monitor struct {
	deps   Deps
	opts   Options
	alerts *alerts.Scheduler
	log    zerolog.Logger
}

// New creates a monitor. Alerts armed by the real-time check fire through
// FireAlert.
func New(deps Deps, opts Options, log zerolog.Logger) *Monitor {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TrendSamples <= 0 {
		opts.TrendSamples = 20
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = 5
	}

	m := &Monitor{
		deps: deps,
		opts: opts,
		log:  log.With().Str("component", "monitor").Logger(),
	}
	m.alerts = alerts.NewScheduler(deps.Clock, m.FireAlert, log)
	return m
}

// Alerts returns the delayed notification scheduler.
func (m *Monitor) Alerts() *alerts.Scheduler {
	return m.alerts
}

// RealtimeCheck polls every source with the real-time cutoff and arms one
// delayed alert per item not seen before. It returns the number armed.
func (m *Monitor) RealtimeCheck(ctx context.Context) (int, error) {
	results := m.deps.Poller.PollBySource(ctx, m.deps.Sources, m.pollOptions(m.opts.RealtimeCutoff))

	armed := 0
	for _, item := range sources.Merge(results) {
		if !m.deps.Ledger.MarkIfNew(item.Link) {
			continue
		}
		m.emit(&events.ItemData{Type: events.ItemDetected, Link: item.Link, Title: item.Title, SourceLabel: item.SourceLabel})

		h := m.alerts.Arm(item, m.opts.AlertDelay)
		m.emit(&events.ItemData{Type: events.AlertArmed, Link: item.Link, Title: item.Title, SourceLabel: item.SourceLabel, FireAt: h.FireAt})
		armed++
	}

	m.log.Info().Int("armed", armed).Msg("Realtime check completed")
	return armed, allFailed(results)
}

// FireAlert renders and broadcasts a single item. It is the fire callback
// of the alert scheduler.
func (m *Monitor) FireAlert(ctx context.Context, item domain.CandidateItem) {
	report := m.deps.Notifier.Broadcast(ctx, notify.KindAlert, notify.RenderAlert(item, m.opts.Location))
	m.emit(&events.ItemData{Type: events.AlertFired, Link: item.Link, Title: item.Title, SourceLabel: item.SourceLabel})

	m.log.Info().
		Str("link", item.Link).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Alert fired")
}

// DailySummary sends the digest: an intro, one section per source with the
// items not announced before, and the quote. Items sent in a section are
// marked seen. When no section has items an explicit empty-digest message
// is sent instead.
func (m *Monitor) DailySummary(ctx context.Context) error {
	m.deps.Notifier.Broadcast(ctx, notify.KindSummary, notify.RenderSummaryIntro(m.opts.Entity, m.opts.SummaryCutoff))

	results := m.deps.Poller.PollBySource(ctx, m.deps.Sources, m.pollOptions(m.opts.SummaryCutoff))

	sections := 0
	for _, r := range results {
		var fresh []domain.CandidateItem
		for _, item := range r.Items {
			if !m.deps.Ledger.IsSeen(item.Link) {
				fresh = append(fresh, item)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		if err := m.pause(ctx); err != nil {
			return err
		}
		m.deps.Notifier.Broadcast(ctx, notify.KindSummary, notify.RenderSection(r.Label, fresh))
		for _, item := range fresh {
			m.deps.Ledger.MarkSeen(item.Link)
		}
		sections++
	}

	if sections == 0 {
		if err := m.pause(ctx); err != nil {
			return err
		}
		m.deps.Notifier.Broadcast(ctx, notify.KindSummary, notify.RenderEmptyDigest(m.opts.Entity, m.opts.SummaryCutoff))
	}

	if err := m.pause(ctx); err != nil {
		return err
	}
	snap, _ := m.resolveQuote(ctx, true)
	m.deps.Notifier.Broadcast(ctx, notify.KindQuote, m.renderQuote(ctx, snap))

	m.log.Info().Int("sections", sections).Bool("quote", snap.Available()).Msg("Daily summary sent")
	return allFailed(results)
}

// QuoteRefresh resolves the quote, records it and broadcasts it. An
// unavailable quote is still announced.
func (m *Monitor) QuoteRefresh(ctx context.Context) error {
	snap, _ := m.resolveQuote(ctx, true)
	m.deps.Notifier.Broadcast(ctx, notify.KindQuote, m.renderQuote(ctx, snap))
	return nil
}

// Quote resolves the quote without recording or broadcasting it.
func (m *Monitor) Quote(ctx context.Context) (*domain.QuoteSnapshot, bool) {
	return m.resolveQuote(ctx, false)
}

func (m *Monitor) resolveQuote(ctx context.Context, record bool) (*domain.QuoteSnapshot, bool) {
	snap, ok := m.deps.Resolver.Resolve(ctx, m.deps.Providers)

	data := &events.QuoteData{Symbol: m.deps.Resolver.Symbol()}
	if ok {
		data.Value = snap.Value.String()
		data.Provider = snap.ProviderUsed
	}
	m.emit(data)

	if ok && record && m.deps.History != nil {
		if err := m.deps.History.Record(ctx, snap, m.deps.Clock.Now()); err != nil {
			m.log.Warn().Err(err).Msg("Failed to record quote history")
		}
	}
	return snap, ok
}

func (m *Monitor) renderQuote(ctx context.Context, snap *domain.QuoteSnapshot) string {
	symbol := m.deps.Resolver.Symbol()
	if !snap.Available() || m.deps.History == nil {
		return notify.RenderQuote(symbol, snap, nil, m.opts.Location)
	}

	trend, err := m.deps.History.Trend(ctx, symbol, m.opts.TrendSamples, m.opts.TrendWindow)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to compute quote trend")
	}
	return notify.RenderQuote(symbol, snap, trend, m.opts.Location)
}

func (m *Monitor) pollOptions(cutoff time.Duration) sources.PollOptions {
	return sources.PollOptions{
		Cutoff:     cutoff,
		YearFilter: m.opts.YearFilter,
		Keywords:   m.opts.Keywords,
		Exclude:    m.opts.Exclude,
	}
}

// pause separates digest messages.
func (m *Monitor) pause(ctx context.Context) error {
	if m.opts.SectionPause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.deps.Clock.After(m.opts.SectionPause):
		return nil
	}
}

func (m *Monitor) emit(data events.EventData) {
	if m.deps.Bus != nil {
		m.deps.Bus.Emit("monitor", data)
	}
}

// allFailed returns an error when there were sources and none succeeded.
func allFailed(results []sources.SourceResult) error {
	if len(results) == 0 {
		return nil
	}
	var last error
	for _, r := range results {
		if r.Err == nil {
			return nil
		}
		last = r.Err
	}
	return fmt.Errorf("all %d sources failed, last error: %w", len(results), last)
}
