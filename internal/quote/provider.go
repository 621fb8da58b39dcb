// Package quote resolves the tracked stock quote through an ordered chain of
// providers.
package quote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/aristath/newsbell/internal/dates"
	"github.com/aristath/newsbell/internal/domain"
)

// ErrNoValue is returned by Extract when the response holds no price.
var ErrNoValue = errors.New("no quote value found")

// Provider is one source of the quote. Fetch returns the raw response;
// Extract turns it into a snapshot, using asOf when the response does not
// say when the price was observed.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
	Extract(raw []byte, asOf time.Time) (*domain.QuoteSnapshot, error)
}

// httpSource is the GET part shared by the web providers.
type httpSource struct {
	URL    string
	Client *http.Client
}

func (h httpSource) fetch(ctx context.Context) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; newsbell/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", h.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// snapshot builds the result shared by every provider from extracted text.
func snapshot(valueText, changeText, timeText string, asOf time.Time, normalizer *dates.Normalizer) (*domain.QuoteSnapshot, error) {
	if strings.TrimSpace(valueText) == "" {
		return nil, ErrNoValue
	}
	value, err := ParseNumber(valueText)
	if err != nil {
		return nil, err
	}
	return build(value, FormatChange(changeText), timeText, asOf, normalizer), nil
}

func build(value decimal.Decimal, change *string, timeText string, asOf time.Time, normalizer *dates.Normalizer) *domain.QuoteSnapshot {
	snap := &domain.QuoteSnapshot{
		Value:         &value,
		ChangePercent: change,
		AsOf:          asOf,
	}
	if timeText = strings.TrimSpace(timeText); timeText != "" && normalizer != nil {
		if t, err := normalizer.Parse(timeText); err == nil {
			snap.AsOf = t
		}
	}
	return snap
}

// HTMLProvider scrapes the quote out of a web page with CSS selectors.
type HTMLProvider struct {
	Label          string
	ValueSelector  string
	ChangeSelector string
	TimeSelector   string
	Normalizer     *dates.Normalizer
	httpSource
}

// NewHTMLProvider creates a provider reading url with the given selectors.
func NewHTMLProvider(label, url, valueSel, changeSel, timeSel string, normalizer *dates.Normalizer) *HTMLProvider {
	return &HTMLProvider{
		Label:          label,
		ValueSelector:  valueSel,
		ChangeSelector: changeSel,
		TimeSelector:   timeSel,
		Normalizer:     normalizer,
		httpSource:     httpSource{URL: url},
	}
}

func (p *HTMLProvider) Name() string { return p.Label }

func (p *HTMLProvider) Fetch(ctx context.Context) ([]byte, error) { return p.fetch(ctx) }

func (p *HTMLProvider) Extract(raw []byte, asOf time.Time) (*domain.QuoteSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	text := func(sel string) string {
		if sel == "" {
			return ""
		}
		return strings.TrimSpace(doc.Find(sel).First().Text())
	}
	return snapshot(text(p.ValueSelector), text(p.ChangeSelector), text(p.TimeSelector), asOf, p.Normalizer)
}

// PatternProvider extracts the quote from a raw body with regular
// expressions; the first submatch of each pattern is used.
type PatternProvider struct {
	Label         string
	ValuePattern  *regexp.Regexp
	ChangePattern *regexp.Regexp
	TimePattern   *regexp.Regexp
	Normalizer    *dates.Normalizer
	httpSource
}

// NewPatternProvider compiles the patterns; change and time may be empty.
func NewPatternProvider(label, url, value, change, timePattern string, normalizer *dates.Normalizer) (*PatternProvider, error) {
	compile := func(expr string) (*regexp.Regexp, error) {
		if expr == "" {
			return nil, nil
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q for %s: %w", expr, label, err)
		}
		return re, nil
	}

	p := &PatternProvider{Label: label, Normalizer: normalizer, httpSource: httpSource{URL: url}}
	var err error
	if p.ValuePattern, err = compile(value); err != nil {
		return nil, err
	}
	if p.ValuePattern == nil {
		return nil, fmt.Errorf("value pattern is required for %s", label)
	}
	if p.ChangePattern, err = compile(change); err != nil {
		return nil, err
	}
	if p.TimePattern, err = compile(timePattern); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PatternProvider) Name() string { return p.Label }

func (p *PatternProvider) Fetch(ctx context.Context) ([]byte, error) { return p.fetch(ctx) }

func (p *PatternProvider) Extract(raw []byte, asOf time.Time) (*domain.QuoteSnapshot, error) {
	match := func(re *regexp.Regexp) string {
		if re == nil {
			return ""
		}
		m := re.FindSubmatch(raw)
		if len(m) < 2 {
			return ""
		}
		return string(m[1])
	}
	return snapshot(match(p.ValuePattern), match(p.ChangePattern), match(p.TimePattern), asOf, p.Normalizer)
}

// JSONProvider reads the quote from a JSON API using gjson paths.
type JSONProvider struct {
	Label      string
	ValuePath  string
	ChangePath string
	TimePath   string
	Normalizer *dates.Normalizer
	httpSource
}

// NewJSONProvider creates a provider reading url with the given paths.
func NewJSONProvider(label, url, valuePath, changePath, timePath string, normalizer *dates.Normalizer) *JSONProvider {
	return &JSONProvider{
		Label:      label,
		ValuePath:  valuePath,
		ChangePath: changePath,
		TimePath:   timePath,
		Normalizer: normalizer,
		httpSource: httpSource{URL: url},
	}
}

func (p *JSONProvider) Name() string { return p.Label }

func (p *JSONProvider) Fetch(ctx context.Context) ([]byte, error) { return p.fetch(ctx) }

func (p *JSONProvider) Extract(raw []byte, asOf time.Time) (*domain.QuoteSnapshot, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid json response")
	}

	value := gjson.GetBytes(raw, p.ValuePath)
	if !value.Exists() || value.Type == gjson.Null {
		return nil, ErrNoValue
	}

	var timeText string
	if p.TimePath != "" {
		ts := gjson.GetBytes(raw, p.TimePath)
		switch {
		case ts.Type == gjson.Number && ts.Int() > 0:
			sec := ts.Int()
			if sec > 1e12 {
				sec /= 1000
			}
			asOf = time.Unix(sec, 0).In(asOf.Location())
		case ts.Type == gjson.String:
			timeText = ts.String()
		}
	}

	change := gjson.GetBytes(raw, p.ChangePath)

	// JSON numbers are unambiguous and skip separator guessing
	if value.Type == gjson.Number {
		d, err := decimal.NewFromString(value.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidNumber, value.Raw)
		}
		var pct *string
		if p.ChangePath != "" && change.Type == gjson.Number {
			pct = formatChangeDecimal(decimal.NewFromFloat(change.Float()))
		} else if p.ChangePath != "" {
			pct = FormatChange(change.String())
		}
		return build(d, pct, timeText, asOf, p.Normalizer), nil
	}

	var changeText string
	if p.ChangePath != "" {
		changeText = change.String()
	}
	return snapshot(value.String(), changeText, timeText, asOf, p.Normalizer)
}
