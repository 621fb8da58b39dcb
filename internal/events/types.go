// Package events provides an in-process event bus for monitoring activity.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	ItemDetected     EventType = "ITEM_DETECTED"
	AlertArmed       EventType = "ALERT_ARMED"
	AlertFired       EventType = "ALERT_FIRED"
	QuoteResolved    EventType = "QUOTE_RESOLVED"
	QuoteUnavailable EventType = "QUOTE_UNAVAILABLE"
	DeliveryFailed   EventType = "DELIVERY_FAILED"
	JobCompleted     EventType = "JOB_COMPLETED"
	JobFailed        EventType = "JOB_FAILED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Module    string                 `json:"module"`
}

// EventData is implemented by the typed payloads below
type EventData interface {
	EventType() EventType
}

// ItemData is carried by ITEM_DETECTED, ALERT_ARMED and ALERT_FIRED.
type ItemData struct {
	Type        EventType `json:"-"`
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	SourceLabel string    `json:"source_label"`
	FireAt      time.Time `json:"fire_at,omitempty"`
}

func (d *ItemData) EventType() EventType { return d.Type }

// QuoteData is carried by QUOTE_RESOLVED and QUOTE_UNAVAILABLE.
type QuoteData struct {
	Symbol   string `json:"symbol"`
	Value    string `json:"value,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func (d *QuoteData) EventType() EventType {
	if d.Value == "" {
		return QuoteUnavailable
	}
	return QuoteResolved
}

// DeliveryFailedData describes one failed send.
type DeliveryFailedData struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

func (d *DeliveryFailedData) EventType() EventType { return DeliveryFailed }

// JobData is carried by JOB_COMPLETED and JOB_FAILED.
type JobData struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (d *JobData) EventType() EventType {
	if d.Error != "" {
		return JobFailed
	}
	return JobCompleted
}
