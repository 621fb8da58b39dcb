package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmcdole/gofeed"
)

// GoogleNewsBaseURL is the Google News RSS search endpoint.
const GoogleNewsBaseURL = "https://news.google.com/rss/search"

// GoogleNews searches Google News and returns the matching RSS entries.
type GoogleNews struct {
	Query   string
	HL      string
	GL      string
	CEID    string
	BaseURL string
	Client  *http.Client
}

// NewGoogleNews creates a Vietnamese-locale Google News search.
func NewGoogleNews(query string) *GoogleNews {
	return &GoogleNews{
		Query:   query,
		HL:      "vi",
		GL:      "VN",
		CEID:    "VN:vi",
		BaseURL: GoogleNewsBaseURL,
	}
}

// URL returns the search feed address.
func (g *GoogleNews) URL() string {
	q := url.Values{}
	q.Set("q", g.Query)
	q.Set("hl", g.HL)
	q.Set("gl", g.GL)
	q.Set("ceid", g.CEID)
	return g.BaseURL + "?" + q.Encode()
}

func (g *GoogleNews) Fetch(ctx context.Context) ([]NativeItem, error) {
	return (&RSSFeed{URL: g.URL(), Client: g.Client}).Fetch(ctx)
}

// RSSFeed reads any RSS or Atom feed.
type RSSFeed struct {
	URL    string
	Client *http.Client
}

func (f *RSSFeed) Fetch(ctx context.Context) ([]NativeItem, error) {
	client := f.Client
	if client == nil {
		client = defaultHTTPClient()
	}

	body, err := get(ctx, client, f.URL, nil)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", f.URL, err)
	}

	items := make([]NativeItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		n := NativeItem{Title: it.Title, Link: it.Link}
		switch {
		case it.PublishedParsed != nil:
			n.Published = it.PublishedParsed
		case it.UpdatedParsed != nil:
			n.Published = it.UpdatedParsed
		case it.Published != "":
			n.PublishedText = it.Published
		default:
			n.PublishedText = it.Updated
		}
		items = append(items, n)
	}
	return items, nil
}
