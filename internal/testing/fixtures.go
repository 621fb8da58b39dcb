package testing

import (
	"fmt"
	"time"

	"github.com/aristath/newsbell/internal/domain"
)

// NewItemFixtures returns n candidate items one hour apart, newest first,
// with links https://news.example.com/<label>/<i>.
func NewItemFixtures(label string, now time.Time, n int) []domain.CandidateItem {
	items := make([]domain.CandidateItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.CandidateItem{
			Title:       fmt.Sprintf("Miza tin số %d", i+1),
			Link:        fmt.Sprintf("https://news.example.com/%s/%d", label, i+1),
			PublishedAt: now.Add(-time.Duration(i+1) * time.Hour),
			SourceLabel: label,
		})
	}
	return items
}
