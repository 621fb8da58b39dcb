// Package di provides dependency injection for the monitoring engine.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/config"
	"github.com/aristath/newsbell/internal/dates"
	"github.com/aristath/newsbell/internal/events"
	"github.com/aristath/newsbell/internal/monitor"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/quote"
	"github.com/aristath/newsbell/internal/reliability"
	"github.com/aristath/newsbell/internal/scheduler"
	"github.com/aristath/newsbell/internal/sources"
)

// Section labels, in digest order.
const (
	LabelNews      = "📰 Tin tức báo chí"
	LabelYouTube   = "🎥 Video YouTube"
	LabelTikTok    = "🎵 TikTok"
	LabelInstagram = "📸 Instagram"
	LabelFacebook  = "📘 Facebook Page"
	LabelFeed      = "📰 RSS"
	LabelPage      = "🌐 Trang tin"
)

// InitializeServices builds the engine on top of the storage in container.
// A nil clk uses the wall clock.
func InitializeServices(container *Container, cfg *config.Config, clk clock.Clock, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	container.Clock = clk

	container.EventBus = events.NewBus(log)

	conn := container.DB.Conn()
	container.Deliveries = notify.NewDeliveryRepository(conn)
	container.History = quote.NewHistoryRepository(conn)

	normalizer := dates.NewNormalizer(cfg.Location, clk)
	container.Poller = sources.NewPoller(normalizer, clk, log)
	container.Sources = BuildSources(cfg, nil)

	sink := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.APIURL)
	container.Notifier = notify.NewNotifier(sink, cfg.Telegram.ChatIDs, container.Deliveries, container.EventBus, clk, log)

	container.Resolver = quote.NewResolver(cfg.Quote.Symbol, quote.DefaultCalendar, clk, cfg.Location, log)
	providers, err := BuildProviders(cfg, normalizer)
	if err != nil {
		return fmt.Errorf("failed to build quote providers: %w", err)
	}
	container.Providers = providers

	container.Monitor = monitor.New(monitor.Deps{
		Poller:    container.Poller,
		Sources:   container.Sources,
		Ledger:    container.Ledger,
		Notifier:  container.Notifier,
		Resolver:  container.Resolver,
		Providers: container.Providers,
		History:   container.History,
		Bus:       container.EventBus,
		Clock:     clk,
	}, monitor.Options{
		Entity:         cfg.Sources.Entity,
		Location:       cfg.Location,
		Keywords:       cfg.Sources.Keywords,
		Exclude:        cfg.Sources.ExcludeTerms,
		YearFilter:     cfg.Schedule.YearFilter,
		RealtimeCutoff: cfg.Schedule.RealtimeCutoff,
		SummaryCutoff:  cfg.Schedule.SummaryCutoff,
		AlertDelay:     cfg.Schedule.AlertDelay,
		SectionPause:   cfg.Schedule.SectionPause,
	}, log)
	container.Alerts = container.Monitor.Alerts()

	container.Scheduler = scheduler.New(clk, cfg.Schedule.Tick, container.EventBus, log)

	container.Maintenance = reliability.NewDatabaseMaintenance(container.DB, cfg.DataDir, log)
	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.Backup = reliability.NewLedgerBackup(store, cfg.LedgerPath(), cfg.Backup.Retention, clk, cfg.Location, log)
	}

	log.Info().
		Int("sources", len(container.Sources)).
		Int("quote_providers", len(container.Providers)).
		Int("recipients", len(cfg.Telegram.ChatIDs)).
		Bool("backup", container.Backup != nil).
		Msg("Services initialized")

	return nil
}

// BuildSources declares the monitored sources in digest order. RapidAPI
// sources are skipped without a key. A nil rapid creates a default client.
func BuildSources(cfg *config.Config, rapid *sources.RapidClient) []sources.SourceSpec {
	src := cfg.Sources
	limit := cfg.Schedule.SectionLimit

	var specs []sources.SourceSpec
	if len(src.NewsQueries) > 0 {
		specs = append(specs, sources.SourceSpec{
			Label:   LabelNews,
			Fetcher: googleNews(src.NewsQueries),
			Limit:   limit,
		})
	}

	if src.RapidAPIKey != "" {
		if rapid == nil {
			rapid = sources.NewRapidClient(src.RapidAPIKey)
		}
		if src.YouTubeQuery != "" {
			specs = append(specs, sources.SourceSpec{
				Label:        LabelYouTube,
				Fetcher:      &sources.YouTubeSearch{Client: rapid, Query: src.YouTubeQuery},
				DateFallback: sources.FallbackNow,
				Limit:        limit,
			})
		}
		for _, entry := range src.TikTokSecUIDs {
			handle, secUID := parseTikTok(entry)
			if secUID == "" {
				continue
			}
			label := LabelTikTok
			if handle != "" {
				label += " @" + handle
			}
			specs = append(specs, sources.SourceSpec{
				Label:   label,
				Fetcher: &sources.TikTokPosts{Client: rapid, SecUID: secUID},
				Limit:   limit,
			})
		}
		for _, user := range src.Instagram {
			specs = append(specs, sources.SourceSpec{
				Label:        labelFor(LabelInstagram, "@"+user, len(src.Instagram)),
				Fetcher:      &sources.InstagramPosts{Client: rapid, Username: user},
				DateFallback: sources.FallbackNow,
				Limit:        limit,
			})
		}
		for _, page := range src.FacebookPages {
			specs = append(specs, sources.SourceSpec{
				Label:   labelFor(LabelFacebook, page, len(src.FacebookPages)),
				Fetcher: &sources.FacebookPage{Client: rapid, PageID: page},
				Limit:   limit,
			})
		}
	}

	for _, feed := range src.FeedURLs {
		specs = append(specs, sources.SourceSpec{
			Label:   LabelFeed + " " + hostOf(feed),
			Fetcher: &sources.RSSFeed{URL: feed},
			Limit:   limit,
		})
	}

	sel := src.PageSelectors
	for _, page := range src.PageURLs {
		specs = append(specs, sources.SourceSpec{
			Label: LabelPage + " " + hostOf(page),
			Fetcher: &sources.HTMLPage{
				URL:           page,
				ItemSelector:  sel.Item,
				TitleSelector: sel.Title,
				LinkSelector:  sel.Link,
				DateSelector:  sel.Date,
			},
			Limit: limit,
		})
	}

	return specs
}

// BuildProviders returns the quote providers in priority order: scraped
// page, pattern page, JSON API. A provider is enabled by its URL.
func BuildProviders(cfg *config.Config, normalizer *dates.Normalizer) ([]quote.Provider, error) {
	q := cfg.Quote
	var providers []quote.Provider

	if q.HTMLURL != "" {
		providers = append(providers, quote.NewHTMLProvider(hostOf(q.HTMLURL), q.HTMLURL,
			q.HTMLValueSelector, q.HTMLChangeSelector, q.HTMLTimeSelector, normalizer))
	}
	if q.PatternURL != "" {
		p, err := quote.NewPatternProvider(hostOf(q.PatternURL), q.PatternURL,
			q.PatternValue, q.PatternChange, q.PatternTime, normalizer)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if q.APIURL != "" {
		providers = append(providers, quote.NewJSONProvider(hostOf(q.APIURL), q.APIURL,
			q.APIValuePath, q.APIChangePath, q.APITimePath, normalizer))
	}

	return providers, nil
}

// googleNews searches every query and concatenates the results. The
// section fails only when every query failed.
func googleNews(queries []string) sources.Fetcher {
	return sources.FetcherFunc(func(ctx context.Context) ([]sources.NativeItem, error) {
		var items []sources.NativeItem
		var errs []error
		for _, q := range queries {
			found, err := sources.NewGoogleNews(q).Fetch(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("query %q: %w", q, err))
				continue
			}
			items = append(items, found...)
		}
		if len(errs) == len(queries) {
			return nil, errors.Join(errs...)
		}
		return items, nil
	})
}

// parseTikTok splits a "handle=secUid" entry. A bare entry is a secUid.
func parseTikTok(entry string) (handle, secUID string) {
	entry = strings.TrimSpace(entry)
	if h, id, ok := strings.Cut(entry, "="); ok {
		return strings.TrimPrefix(strings.TrimSpace(h), "@"), strings.TrimSpace(id)
	}
	return "", entry
}

func labelFor(base, suffix string, count int) string {
	if count > 1 {
		return base + " " + suffix
	}
	return base
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}
