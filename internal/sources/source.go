// Package sources polls external feeds for candidate items about the tracked
// entity and filters them by age, year and relevance.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aristath/newsbell/internal/domain"
)

// ErrHTTPStatus is matched by every *HTTPStatusError.
var ErrHTTPStatus = errors.New("unexpected http status")

// HTTPStatusError reports a non-2xx response from a source.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// NativeItem is an item as a source reports it, before date resolution.
// Published is set when the source carries a structured timestamp.
type NativeItem struct {
	Title         string
	Link          string
	Published     *time.Time
	PublishedText string
}

// Fetcher returns the native items of one source. An error fails the whole
// source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]NativeItem, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]NativeItem, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]NativeItem, error) { return f(ctx) }

// Fallback decides what happens to an item whose date cannot be resolved.
type Fallback int

const (
	// FallbackDiscard drops the item.
	FallbackDiscard Fallback = iota
	// FallbackNow stamps the item with the poll time.
	FallbackNow
)

// SourceSpec declares one source. Limit caps the surviving items of this
// source; zero means unlimited.
type SourceSpec struct {
	Label        string
	Fetcher      Fetcher
	DateFallback Fallback
	Limit        int
}

// PollOptions are the filters applied to every source of a poll.
type PollOptions struct {
	Cutoff     time.Duration
	YearFilter bool
	Keywords   []string
	Exclude    []string
}

// SourceResult groups the surviving items of one source.
type SourceResult struct {
	Label string
	Items []domain.CandidateItem
	Err   error
}

const userAgent = "Mozilla/5.0 (compatible; newsbell/1.0)"

// get performs a GET and returns the body, turning non-2xx into
// *HTTPStatusError.
func get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	return send(ctx, client, http.MethodGet, url, nil, header)
}

func send(ctx context.Context, client *http.Client, method, url string, payload []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

var errPanicked = errors.New("source fetch panicked")
