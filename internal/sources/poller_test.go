package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/dates"
	"github.com/aristath/newsbell/internal/domain"
)

func newTestPoller(t *testing.T) (*Poller, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, loc)
	clk := clock.NewFake(now)
	return NewPoller(dates.NewNormalizer(loc, clk), clk, zerolog.Nop()), now
}

func staticSource(label string, items ...NativeItem) SourceSpec {
	return SourceSpec{
		Label: label,
		Fetcher: FetcherFunc(func(context.Context) ([]NativeItem, error) {
			return items, nil
		}),
	}
}

func at(t time.Time) *time.Time { return &t }

func links(items []domain.CandidateItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Link)
	}
	return out
}

func TestPoll_Cutoff(t *testing.T) {
	p, now := newTestPoller(t)

	src := staticSource("news",
		NativeItem{Title: "one", Link: "l1", Published: at(now.Add(-1 * time.Hour))},
		NativeItem{Title: "two", Link: "l47", Published: at(now.Add(-47 * time.Hour))},
		NativeItem{Title: "three", Link: "l49", Published: at(now.Add(-49 * time.Hour))},
	)

	got := p.Poll(context.Background(), []SourceSpec{src}, PollOptions{Cutoff: 48 * time.Hour})
	assert.Equal(t, []string{"l1", "l47"}, links(got))
}

func TestPoll_CutoffBoundaryIsKept(t *testing.T) {
	p, now := newTestPoller(t)

	src := staticSource("news", NativeItem{Title: "edge", Link: "edge", Published: at(now.Add(-48 * time.Hour))})

	got := p.Poll(context.Background(), []SourceSpec{src}, PollOptions{Cutoff: 48 * time.Hour})
	assert.Equal(t, []string{"edge"}, links(got))
}

func TestPoll_YearFilter(t *testing.T) {
	p, now := newTestPoller(t)
	loc := now.Location()

	src := staticSource("news",
		NativeItem{Title: "this year", Link: "new", Published: at(time.Date(2026, 1, 2, 8, 0, 0, 0, loc))},
		NativeItem{Title: "last year", Link: "old", Published: at(time.Date(2025, 12, 30, 8, 0, 0, 0, loc))},
	)
	opts := PollOptions{Cutoff: 365 * 24 * time.Hour}

	assert.Equal(t, []string{"new", "old"}, links(p.Poll(context.Background(), []SourceSpec{src}, opts)))

	opts.YearFilter = true
	assert.Equal(t, []string{"new"}, links(p.Poll(context.Background(), []SourceSpec{src}, opts)))
}

func TestPoll_KeywordScenario(t *testing.T) {
	p, _ := newTestPoller(t)

	src := staticSource("feed",
		NativeItem{Title: "Entity X launches", Link: "a", PublishedText: "2h ago"},
		NativeItem{Title: "Unrelated", Link: "b", PublishedText: "1h ago"},
	)

	got := p.Poll(context.Background(), []SourceSpec{src}, PollOptions{
		Cutoff:   48 * time.Hour,
		Keywords: []string{"Entity X"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Link)
	assert.Equal(t, "feed", got[0].SourceLabel)
}

func TestPoll_KeywordsAreCaseInsensitiveAndExclusionsApply(t *testing.T) {
	p, now := newTestPoller(t)

	src := staticSource("yt",
		NativeItem{Title: "MIZA opens new plant", Link: "keep", Published: at(now)},
		NativeItem{Title: "miza remix (lyrics)", Link: "music", Published: at(now)},
	)

	got := p.Poll(context.Background(), []SourceSpec{src}, PollOptions{
		Cutoff:   time.Hour,
		Keywords: []string{"miza"},
		Exclude:  []string{"Remix"},
	})
	assert.Equal(t, []string{"keep"}, links(got))
}

func TestPoll_MergesNewestFirstWithStableTies(t *testing.T) {
	p, now := newTestPoller(t)

	first := staticSource("first",
		NativeItem{Title: "f-old", Link: "f-old", Published: at(now.Add(-3 * time.Hour))},
		NativeItem{Title: "f-tie", Link: "f-tie", Published: at(now.Add(-time.Hour))},
	)
	second := staticSource("second",
		NativeItem{Title: "s-tie", Link: "s-tie", Published: at(now.Add(-time.Hour))},
		NativeItem{Title: "s-new", Link: "s-new", Published: at(now.Add(-time.Minute))},
	)

	got := p.Poll(context.Background(), []SourceSpec{first, second}, PollOptions{Cutoff: 48 * time.Hour})
	assert.Equal(t, []string{"s-new", "f-tie", "s-tie", "f-old"}, links(got))
}

func TestPoll_FailingSourceDoesNotAbort(t *testing.T) {
	p, now := newTestPoller(t)

	broken := SourceSpec{
		Label: "broken",
		Fetcher: FetcherFunc(func(context.Context) ([]NativeItem, error) {
			return nil, errors.New("connection refused")
		}),
	}
	panicky := SourceSpec{
		Label: "panicky",
		Fetcher: FetcherFunc(func(context.Context) ([]NativeItem, error) {
			panic("boom")
		}),
	}
	ok := staticSource("ok", NativeItem{Title: "fine", Link: "fine", Published: at(now)})

	specs := []SourceSpec{broken, panicky, ok}
	got := p.Poll(context.Background(), specs, PollOptions{Cutoff: time.Hour})
	assert.Equal(t, []string{"fine"}, links(got))

	results := p.PollBySource(context.Background(), specs, PollOptions{Cutoff: time.Hour})
	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "ok", results[2].Label)
}

func TestPoll_DateFallback(t *testing.T) {
	p, now := newTestPoller(t)

	item := NativeItem{Title: "undated", Link: "u", PublishedText: "sometime"}

	discard := staticSource("discard", item)
	assert.Empty(t, p.Poll(context.Background(), []SourceSpec{discard}, PollOptions{Cutoff: time.Hour}))

	stamp := staticSource("now", item)
	stamp.DateFallback = FallbackNow
	got := p.Poll(context.Background(), []SourceSpec{stamp}, PollOptions{Cutoff: time.Hour})
	require.Len(t, got, 1)
	assert.True(t, now.Equal(got[0].PublishedAt))
}

func TestPollBySource_DedupAndLimit(t *testing.T) {
	p, now := newTestPoller(t)

	news := staticSource("news",
		NativeItem{Title: "a", Link: "a", Published: at(now.Add(-3 * time.Hour))},
		NativeItem{Title: "b", Link: "b", Published: at(now.Add(-2 * time.Hour))},
		NativeItem{Title: "b again", Link: "b", Published: at(now.Add(-2 * time.Hour))},
		NativeItem{Title: "c", Link: "c", Published: at(now.Add(-1 * time.Hour))},
		NativeItem{Title: "no link", Link: " ", Published: at(now)},
	)
	news.Limit = 2
	mirror := staticSource("mirror",
		NativeItem{Title: "c", Link: "c", Published: at(now.Add(-1 * time.Hour))},
		NativeItem{Title: "d", Link: "d", Published: at(now.Add(-4 * time.Hour))},
	)

	results := p.PollBySource(context.Background(), []SourceSpec{news, mirror}, PollOptions{Cutoff: 48 * time.Hour})
	require.Len(t, results, 2)
	assert.Equal(t, []string{"c", "b"}, links(results[0].Items))
	assert.Equal(t, []string{"d"}, links(results[1].Items))
}

func TestStream_IsSingleUse(t *testing.T) {
	p, now := newTestPoller(t)

	calls := 0
	src := SourceSpec{
		Label: "counted",
		Fetcher: FetcherFunc(func(context.Context) ([]NativeItem, error) {
			calls++
			return []NativeItem{{Title: "x", Link: "x", Published: at(now)}}, nil
		}),
	}

	seq := p.Stream(context.Background(), []SourceSpec{src}, PollOptions{Cutoff: time.Hour})
	assert.Equal(t, 0, calls)

	var first []string
	for item := range seq {
		first = append(first, item.Link)
	}
	var second []string
	for item := range seq {
		second = append(second, item.Link)
	}

	assert.Equal(t, []string{"x"}, first)
	assert.Empty(t, second)
	assert.Equal(t, 1, calls)
}
