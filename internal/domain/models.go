// Package domain holds the value types shared by the poller, the quote
// resolver, the alert timers and the notifier.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CandidateItem is a news or video entry that survived filtering.
// Link is its identity; items are never mutated after creation.
type CandidateItem struct {
	Title       string    `json:"title" msgpack:"title"`
	Link        string    `json:"link" msgpack:"link"`
	PublishedAt time.Time `json:"published_at" msgpack:"published_at"`
	SourceLabel string    `json:"source_label" msgpack:"source_label"`
}

// QuoteSnapshot is the result of one quote resolution. It is produced fresh
// on every call. A nil Value means no provider succeeded and must be
// rendered as unavailable.
type QuoteSnapshot struct {
	Symbol        string           `json:"symbol"`
	Value         *decimal.Decimal `json:"value"`
	ChangePercent *string          `json:"change_percent,omitempty"`
	AsOf          time.Time        `json:"as_of"`
	ProviderUsed  string           `json:"provider_used"`
}

// Available reports whether the snapshot carries a value.
func (q *QuoteSnapshot) Available() bool {
	return q != nil && q.Value != nil
}

// TimerHandle describes one armed delayed notification.
type TimerHandle struct {
	ID      uuid.UUID     `json:"id" msgpack:"id"`
	Item    CandidateItem `json:"item" msgpack:"item"`
	ArmedAt time.Time     `json:"armed_at" msgpack:"armed_at"`
	FireAt  time.Time     `json:"fire_at" msgpack:"fire_at"`
}
