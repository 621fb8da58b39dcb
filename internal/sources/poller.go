package sources

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/dates"
	"github.com/aristath/newsbell/internal/domain"
)

// DefaultFetchConcurrency bounds the number of sources fetched at once.
const DefaultFetchConcurrency = 4

// Poller fetches sources and turns their native items into filtered,
// ordered candidate items. It never mutates the seen-item ledger.
type Poller struct {
	normalizer  *dates.Normalizer
	clock       clock.Clock
	concurrency int
	log         zerolog.Logger
}

// NewPoller creates a poller resolving free-text dates with normalizer.
func NewPoller(normalizer *dates.Normalizer, clk clock.Clock, log zerolog.Logger) *Poller {
	return &Poller{
		normalizer:  normalizer,
		clock:       clk,
		concurrency: DefaultFetchConcurrency,
		log:         log.With().Str("component", "poller").Logger(),
	}
}

// Poll fetches every source and merges the survivors, newest first. Items
// with equal timestamps keep source declaration order. A failing source is
// logged and contributes nothing.
func (p *Poller) Poll(ctx context.Context, specs []SourceSpec, opts PollOptions) []domain.CandidateItem {
	return Merge(p.PollBySource(ctx, specs, opts))
}

// Merge flattens per-source results newest first, keeping declaration order
// for equal timestamps.
func Merge(results []SourceResult) []domain.CandidateItem {
	var merged []domain.CandidateItem
	for _, r := range results {
		merged = append(merged, r.Items...)
	}
	sortNewestFirst(merged)
	return merged
}

// Stream is Poll as a single-use sequence. The sources are fetched when
// iteration starts; ranging over the sequence a second time yields nothing.
func (p *Poller) Stream(ctx context.Context, specs []SourceSpec, opts PollOptions) iter.Seq[domain.CandidateItem] {
	var consumed atomic.Bool
	return func(yield func(domain.CandidateItem) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		for _, item := range p.Poll(ctx, specs, opts) {
			if !yield(item) {
				return
			}
		}
	}
}

// PollBySource runs the same pipeline as Poll but keeps each source's items
// apart, in declaration order. A link reported by several sources is kept
// only under the first.
func (p *Poller) PollBySource(ctx context.Context, specs []SourceSpec, opts PollOptions) []SourceResult {
	now := p.clock.Now()
	fetched := p.fetchAll(ctx, specs)

	seen := make(map[string]struct{})
	results := make([]SourceResult, len(specs))
	for i, spec := range specs {
		results[i] = SourceResult{Label: spec.Label, Err: fetched[i].err}
		if fetched[i].err != nil {
			continue
		}

		items := p.filter(spec, fetched[i].items, opts, now)
		sortNewestFirst(items)

		kept := items[:0]
		for _, item := range items {
			if _, dup := seen[item.Link]; dup {
				continue
			}
			seen[item.Link] = struct{}{}
			kept = append(kept, item)
			if spec.Limit > 0 && len(kept) == spec.Limit {
				break
			}
		}
		results[i].Items = kept

		p.log.Debug().
			Str("source", spec.Label).
			Int("fetched", len(fetched[i].items)).
			Int("kept", len(kept)).
			Msg("Source polled")
	}
	return results
}

type fetchResult struct {
	items []NativeItem
	err   error
}

// fetchAll fetches concurrently; results land in declaration slots so the
// outcome does not depend on completion order.
func (p *Poller) fetchAll(ctx context.Context, specs []SourceSpec) []fetchResult {
	out := make([]fetchResult, len(specs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error().Str("source", spec.Label).Interface("panic", r).Msg("Source fetch panicked")
					out[i] = fetchResult{err: errPanicked}
				}
			}()

			items, err := spec.Fetcher.Fetch(ctx)
			if err != nil {
				p.log.Error().Err(err).Str("source", spec.Label).Msg("Failed to fetch source")
			}
			out[i] = fetchResult{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Poller) filter(spec SourceSpec, native []NativeItem, opts PollOptions, now time.Time) []domain.CandidateItem {
	loc := p.normalizer.Location()
	currentYear := now.In(loc).Year()

	var out []domain.CandidateItem
	for _, n := range native {
		link := strings.TrimSpace(n.Link)
		if link == "" {
			continue
		}
		title := strings.TrimSpace(n.Title)

		published, ok := p.resolve(n, spec.DateFallback, now)
		if !ok {
			p.log.Debug().Str("source", spec.Label).Str("link", link).Str("date", n.PublishedText).Msg("Dropping item with unparseable date")
			continue
		}
		if opts.Cutoff > 0 && published.Before(now.Add(-opts.Cutoff)) {
			continue
		}
		if opts.YearFilter && published.In(loc).Year() != currentYear {
			p.log.Debug().Str("source", spec.Label).Str("link", link).Time("published", published).Msg("Dropping item from another year")
			continue
		}
		if !matchesKeywords(title, opts.Keywords) || matchesAny(title, opts.Exclude) {
			continue
		}

		out = append(out, domain.CandidateItem{
			Title:       title,
			Link:        link,
			PublishedAt: published,
			SourceLabel: spec.Label,
		})
	}
	return out
}

func (p *Poller) resolve(n NativeItem, fallback Fallback, now time.Time) (time.Time, bool) {
	if n.Published != nil && !n.Published.IsZero() {
		return *n.Published, true
	}
	if n.PublishedText != "" {
		if t, err := p.normalizer.Parse(n.PublishedText); err == nil {
			return t, true
		}
	}
	if fallback == FallbackNow {
		return now, true
	}
	return time.Time{}, false
}

// matchesKeywords reports whether title contains one of keywords, ignoring
// case. No keywords matches everything.
func matchesKeywords(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	return matchesAny(title, keywords)
}

func matchesAny(title string, terms []string) bool {
	lower := strings.ToLower(title)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func sortNewestFirst(items []domain.CandidateItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}
