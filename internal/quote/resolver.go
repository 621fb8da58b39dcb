package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/domain"
)

// Resolver walks providers in priority order and returns the first usable
// snapshot. Snapshots are never cached; every call asks the providers again.
type Resolver struct {
	symbol   string
	calendar TradingCalendar
	clock    clock.Clock
	loc      *time.Location
	log      zerolog.Logger
}

// NewResolver creates a resolver for symbol. Trading days are computed in loc.
func NewResolver(symbol string, calendar TradingCalendar, clk clock.Clock, loc *time.Location, log zerolog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		symbol:   symbol,
		calendar: calendar,
		clock:    clk,
		loc:      loc,
		log:      log.With().Str("component", "quote_resolver").Str("symbol", symbol).Logger(),
	}
}

// Symbol returns the tracked symbol.
func (r *Resolver) Symbol() string {
	return r.symbol
}

// Resolve returns the first snapshot a provider can produce, tagged with
// that provider. Provider failures are logged and skipped. When every
// provider fails it returns nil, false and the caller must render the quote
// as unavailable.
func (r *Resolver) Resolve(ctx context.Context, providers []Provider) (*domain.QuoteSnapshot, bool) {
	asOf := r.calendar.EffectiveTradingDay(r.clock.Now().In(r.loc))

	for _, p := range providers {
		if ctx.Err() != nil {
			r.log.Warn().Err(ctx.Err()).Msg("Quote resolution cancelled")
			return nil, false
		}

		snap, err := r.try(ctx, p, asOf)
		if err != nil {
			r.log.Warn().Err(err).Str("provider", p.Name()).Msg("Quote provider failed")
			continue
		}

		snap.ProviderUsed = p.Name()
		snap.Symbol = r.symbol
		if snap.AsOf.IsZero() {
			snap.AsOf = asOf
		}

		r.log.Info().
			Str("provider", snap.ProviderUsed).
			Str("value", snap.Value.String()).
			Time("as_of", snap.AsOf).
			Msg("Quote resolved")
		return snap, true
	}

	r.log.Error().Int("providers", len(providers)).Msg("All quote providers failed")
	return nil, false
}

func (r *Resolver) try(ctx context.Context, p Provider, asOf time.Time) (snap *domain.QuoteSnapshot, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			snap, err = nil, fmt.Errorf("provider panicked: %v", rec)
		}
	}()

	raw, err := p.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	snap, err = p.Extract(raw, asOf)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if snap == nil || snap.Value == nil {
		return nil, ErrNoValue
	}
	return snap, nil
}
