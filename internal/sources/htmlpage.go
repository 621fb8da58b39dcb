package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTMLPage scrapes a news listing page. Each ItemSelector match is one item;
// the other selectors are evaluated inside it.
type HTMLPage struct {
	URL           string
	ItemSelector  string
	TitleSelector string
	LinkSelector  string
	DateSelector  string
	Client        *http.Client
}

func (h *HTMLPage) Fetch(ctx context.Context) ([]NativeItem, error) {
	client := h.Client
	if client == nil {
		client = defaultHTTPClient()
	}

	base, err := url.Parse(h.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", h.URL, err)
	}

	body, err := get(ctx, client, h.URL, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", h.URL, err)
	}

	var items []NativeItem
	doc.Find(h.ItemSelector).Each(func(_ int, s *goquery.Selection) {
		linkSel := s.Find(h.LinkSelector).First()
		if linkSel.Length() == 0 && goquery.NodeName(s) == "a" {
			linkSel = s
		}
		href, ok := linkSel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		title := strings.TrimSpace(s.Find(h.TitleSelector).First().Text())
		if title == "" {
			title = strings.TrimSpace(linkSel.Text())
		}

		n := NativeItem{Title: collapseSpace(title), Link: base.ResolveReference(ref).String()}

		if h.DateSelector != "" {
			dateSel := s.Find(h.DateSelector).First()
			if dt, ok := dateSel.Attr("datetime"); ok {
				if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dt)); err == nil {
					n.Published = &t
				} else {
					n.PublishedText = dt
				}
			} else {
				n.PublishedText = collapseSpace(dateSel.Text())
			}
		}

		items = append(items, n)
	})
	return items, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
