// Package dates turns the free-text timestamps found on news pages, feeds and
// video listings into absolute times.
package dates

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"

	"github.com/aristath/newsbell/internal/clock"
)

// ErrUnparseable is returned when no supported form matches. What to do with
// such an item is the caller's decision.
var ErrUnparseable = errors.New("unparseable date")

// DefaultFillerWords are stripped before pattern matching.
var DefaultFillerWords = []string{
	"cập nhật", "published", "released", "posted", "updated", "uploaded",
	"on", "at", "đăng", "ngày", "lúc", "vào",
}

// DefaultMonthUnits are the words that sit between day and month
// ("14 tháng 10, 2025"). Longer units must come first.
var DefaultMonthUnits = []string{"tháng", "month", "thg", "th"}

var (
	reNumericDMY = regexp.MustCompile(`(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})`)
	reClock      = regexp.MustCompile(`(\d{1,2})[:h](\d{2})`)
	reRelative   = regexp.MustCompile(`(\d+|an?|one|một)\s*(giây|phút|giờ|ngày|tuần|tháng|năm|seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?|mo|s|m|h|d|w|y)\.?\s*(?:ago|trước)`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// Normalizer converts free-text timestamps into absolute times.
type Normalizer struct {
	loc    *time.Location
	clock  clock.Clock
	filler []string

	dayMonthYear *regexp.Regexp
	dayMonth     *regexp.Regexp
}

// NewNormalizer creates a normalizer using the default English and
// Vietnamese vocabulary. A nil location means UTC.
func NewNormalizer(loc *time.Location, clk clock.Clock) *Normalizer {
	return NewNormalizerWithWords(loc, clk, DefaultFillerWords, DefaultMonthUnits)
}

// NewNormalizerWithWords creates a normalizer with a custom vocabulary.
func NewNormalizerWithWords(loc *time.Location, clk clock.Clock, filler, monthUnits []string) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}

	units := make([]string, 0, len(monthUnits))
	for _, u := range monthUnits {
		units = append(units, regexp.QuoteMeta(strings.ToLower(norm.NFC.String(u))))
	}
	unit := `(?:` + strings.Join(units, "|") + `)\.?`

	return &Normalizer{
		loc:          loc,
		clock:        clk,
		filler:       filler,
		dayMonthYear: regexp.MustCompile(`(\d{1,2})\s*` + unit + `\s*(\d{1,2})\s*[,/\-]?\s*(?:năm\s*)?(\d{4})`),
		dayMonth:     regexp.MustCompile(`(\d{1,2})\s*` + unit + `\s*(\d{1,2})`),
	}
}

// Location returns the zone used for local dates.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Parse resolves text to an absolute time. Forms are tried from most to
// least specific: structured timestamps (RFC 3339, RFC 1123, ISO and
// day-first numeric dates), relative ages, the same structured forms once
// filler words are gone, day-month-year, then day-month (current year
// assumed). Timestamps without a zone are read in the configured location.
func (n *Normalizer) Parse(text string) (time.Time, error) {
	raw := strings.TrimSpace(norm.NFC.String(text))
	if raw == "" {
		return time.Time{}, ErrUnparseable
	}

	if t, ok := n.parseStructured(raw); ok {
		return t, nil
	}

	lower := strings.ToLower(raw)
	now := n.clock.Now().In(n.loc)

	if t, ok := n.parseRelative(lower, now); ok {
		return t, nil
	}

	cleaned := n.stripFiller(lower)

	if t, ok := n.parseStructured(cleaned); ok {
		return t, nil
	}

	hour, minute := clockOf(cleaned)

	if m := n.dayMonthYear.FindStringSubmatch(cleaned); m != nil {
		return n.build(m[1], m[2], m[3], hour, minute)
	}
	if m := reNumericDMY.FindStringSubmatch(cleaned); m != nil {
		return n.build(m[1], m[2], m[3], hour, minute)
	}
	if m := n.dayMonth.FindStringSubmatch(cleaned); m != nil {
		// Sources that omit the year are assumed to be recent.
		return n.build(m[1], m[2], strconv.Itoa(now.Year()), hour, minute)
	}

	return time.Time{}, ErrUnparseable
}

// parseStructured reads machine-style timestamps. Ambiguous numeric dates
// are day first. Scraped text is arbitrary, so a parser panic counts as no
// match.
func (n *Normalizer) parseStructured(s string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()

	t, err := dateparse.ParseIn(s, n.loc,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseOr returns fallback when text cannot be parsed.
func (n *Normalizer) ParseOr(text string, fallback time.Time) time.Time {
	if t, err := n.Parse(text); err == nil {
		return t
	}
	return fallback
}

func (n *Normalizer) stripFiller(s string) string {
	for _, f := range n.filler {
		if strings.Contains(f, " ") {
			s = strings.ReplaceAll(s, f, " ")
		}
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, tok := range fields {
		if n.isFiller(strings.Trim(tok, ":,-")) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Trim(reSpaces.ReplaceAllString(strings.Join(kept, " "), " "), " :-")
}

func (n *Normalizer) isFiller(tok string) bool {
	for _, f := range n.filler {
		if tok == f {
			return true
		}
	}
	return false
}

func (n *Normalizer) parseRelative(s string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(s, "just now"), strings.Contains(s, "vừa xong"), strings.Contains(s, "vừa đăng"):
		return now, true
	case strings.Contains(s, "yesterday"), strings.Contains(s, "hôm qua"):
		return n.onDay(now.AddDate(0, 0, -1), s), true
	case strings.Contains(s, "today"), strings.Contains(s, "hôm nay"):
		return n.onDay(now, s), true
	}

	m := reRelative.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	count := 1
	if v, err := strconv.Atoi(m[1]); err == nil {
		count = v
	}

	var unit time.Duration
	switch m[2] {
	case "giây", "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	case "phút", "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "giờ", "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "ngày", "d", "day", "days":
		unit = 24 * time.Hour
	case "tuần", "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	case "tháng", "mo", "month", "months":
		return now.AddDate(0, -count, 0), true
	case "năm", "y", "year", "years":
		return now.AddDate(-count, 0, 0), true
	default:
		return time.Time{}, false
	}
	return now.Add(-time.Duration(count) * unit), true
}

// onDay places an optional HH:MM from s on day. Without one, day is
// returned as is.
func (n *Normalizer) onDay(day time.Time, s string) time.Time {
	hour, minute := clockOf(s)
	if hour < 0 {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, n.loc)
}

func (n *Normalizer) build(dayStr, monthStr, yearStr string, hour, minute int) (time.Time, error) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	year, _ := strconv.Atoi(yearStr)

	if hour < 0 {
		hour, minute = 0, 0
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, n.loc)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, ErrUnparseable
	}
	return t, nil
}

// clockOf finds an HH:MM (or HHhMM) time of day; hour is -1 when absent.
func clockOf(s string) (int, int) {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return -1, 0
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return -1, 0
	}
	return hour, minute
}
