package notify

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/aristath/newsbell/internal/domain"
	"github.com/aristath/newsbell/pkg/formulas"
)

// MaxMessageLength is the Telegram text limit in characters.
const MaxMessageLength = 4096

// RenderStartup is sent once when the process starts.
func RenderStartup(entity string) string {
	return fmt.Sprintf("🚀 %s News Bot khởi động thành công.", html.EscapeString(entity))
}

// RenderSummaryIntro opens the daily digest.
func RenderSummaryIntro(entity string, window time.Duration) string {
	return fmt.Sprintf("🤖 %s News Bot đang tổng hợp tin tức từ đa nền tảng (%s gần nhất)...",
		html.EscapeString(entity), windowText(window))
}

// RenderEmptyDigest replaces the sections when nothing new was found.
func RenderEmptyDigest(entity string, window time.Duration) string {
	return fmt.Sprintf("ℹ️ Không có tin mới về %s trong %s gần nhất.",
		html.EscapeString(entity), windowText(window))
}

// RenderAlert announces a single new item.
func RenderAlert(item domain.CandidateItem, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString("🔔 <b>")
	b.WriteString(html.EscapeString(item.Title))
	b.WriteString("</b>\n")
	fmt.Fprintf(&b, "📌 %s · %s\n", html.EscapeString(item.SourceLabel), item.PublishedAt.In(loc).Format("15:04 02/01/2006"))
	b.WriteString("🔗 ")
	b.WriteString(html.EscapeString(item.Link))
	return b.String()
}

// RenderSection renders a numbered digest section. It returns "" for an
// empty section.
func RenderSection(label string, items []domain.CandidateItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(label))
	b.WriteString("</b>")
	for i, item := range items {
		fmt.Fprintf(&b, "\n\n%d. <b>%s</b>\n🔗 %s", i+1, html.EscapeString(item.Title), html.EscapeString(item.Link))
	}
	return b.String()
}

// RenderQuote renders a quote snapshot. A nil or empty snapshot is shown
// as unavailable; trend is optional.
func RenderQuote(symbol string, snap *domain.QuoteSnapshot, trend *formulas.Trend, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💹 <b>Cổ phiếu %s</b>\n", html.EscapeString(symbol))

	if !snap.Available() {
		b.WriteString("⚠️ Không lấy được giá: mọi nguồn dữ liệu đều lỗi.")
		return b.String()
	}

	b.WriteString("Giá: ")
	b.WriteString(formatValue(snap.Value.InexactFloat64(), snap.Value.IsInteger()))
	if snap.ChangePercent != nil {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(*snap.ChangePercent))
	}
	b.WriteString("\n")
	if !snap.AsOf.IsZero() {
		fmt.Fprintf(&b, "Ngày: %s\n", snap.AsOf.In(loc).Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "Nguồn: %s", html.EscapeString(snap.ProviderUsed))

	if trend != nil && trend.Samples >= 2 {
		b.WriteString("\n")
		b.WriteString(renderTrend(trend))
	}
	return b.String()
}

func renderTrend(t *formulas.Trend) string {
	icon, word := "➖", "đi ngang"
	switch t.Direction {
	case formulas.DirectionUp:
		icon, word = "📈", "tăng"
	case formulas.DirectionDown:
		icon, word = "📉", "giảm"
	}

	line := fmt.Sprintf("%s Xu hướng %d lần ghi: %s (%+.2f%%)", icon, t.Samples, word, t.Change*100)
	if t.SMA != nil {
		line += ", SMA " + formatValue(*t.SMA, false)
	}
	if t.Samples >= 3 {
		line += fmt.Sprintf(", biến động %.2f%%", t.Volatility*100)
	}
	return line
}

// formatValue uses Vietnamese grouping: "15.500" or "15.500,25".
func formatValue(v float64, integer bool) string {
	if integer || v == math.Trunc(v) {
		return humanize.FormatFloat("#.###,", v)
	}
	return humanize.FormatFloat("#.###,##", v)
}

func windowText(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d ngày", int(d/(24*time.Hour)))
	}
	return fmt.Sprintf("%d giờ", int(math.Round(d.Hours())))
}

// SplitMessage splits text into parts of at most limit characters, breaking
// on line boundaries. A single line longer than limit is cut, never inside
// an HTML tag or entity.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			cut := markupSafeCut(runes, limit)
			parts = append(parts, string(runes[:cut]))
			line = string(runes[cut:])
			n = len(runes) - cut
		}
		current.WriteString(line)
		size += n
	}
	flush()

	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// maxEntity bounds "&name;" lookbehind; the longest entity html.EscapeString
// emits is "&#34;".
const maxEntity = 10

// markupSafeCut moves a cut at limit back to the start of a tag or entity it
// would split. A tag or entity that fills the whole window is cut as is.
func markupSafeCut(runes []rune, limit int) int {
	cut := limit
	head := runes[:limit]

	lt, gt := lastRune(head, '<'), lastRune(head, '>')
	if lt > gt && lt < cut {
		cut = lt
	}

	amp, semi := lastRune(head, '&'), lastRune(head, ';')
	if amp > semi && limit-amp <= maxEntity && amp < cut && entityPrefix(head[amp+1:]) {
		cut = amp
	}

	if cut == 0 {
		return limit
	}
	return cut
}

func lastRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func entityPrefix(runes []rune) bool {
	for _, r := range runes {
		if r != '#' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
