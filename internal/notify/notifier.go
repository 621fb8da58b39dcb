package notify

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/events"
)

// Message kinds recorded in the delivery log.
const (
	KindStartup = "startup"
	KindAlert   = "alert"
	KindSummary = "summary"
	KindQuote   = "quote"
)

// Report counts the outcome of one broadcast. A message split into several
// parts counts once per part and recipient.
type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Notifier broadcasts rendered messages to every recipient. A failing
// recipient never prevents delivery to the others.
type Notifier struct {
	sink       Sink
	recipients []string
	deliveries *DeliveryRepository
	bus        *events.Bus
	clock      clock.Clock
	log        zerolog.Logger
}

// NewNotifier creates a notifier. deliveries and bus may be nil.
func NewNotifier(sink Sink, recipients []string, deliveries *DeliveryRepository, bus *events.Bus, clk clock.Clock, log zerolog.Logger) *Notifier {
	return &Notifier{
		sink:       sink,
		recipients: append([]string(nil), recipients...),
		deliveries: deliveries,
		bus:        bus,
		clock:      clk,
		log:        log.With().Str("component", "notifier").Logger(),
	}
}

// Recipients returns the configured recipient IDs.
func (n *Notifier) Recipients() []string {
	return append([]string(nil), n.recipients...)
}

// Broadcast sends text to every recipient in order, splitting it when it
// exceeds the channel limit.
func (n *Notifier) Broadcast(ctx context.Context, kind, text string) Report {
	var report Report
	if len(n.recipients) == 0 {
		n.log.Warn().Str("kind", kind).Msg("No recipients configured, message dropped")
		return report
	}

	parts := SplitMessage(text, MaxMessageLength)
	for _, recipient := range n.recipients {
		for _, part := range parts {
			err := n.sink.Send(ctx, recipient, part)
			n.record(ctx, kind, recipient, part, err)
			if err != nil {
				report.Failed++
				n.log.Error().
					Err(err).
					Str("kind", kind).
					Str("recipient", recipient).
					Msg("Delivery failed")
				continue
			}
			report.Sent++
			n.log.Info().Str("kind", kind).Str("recipient", recipient).Msg("Message sent")
		}
	}
	return report
}

func (n *Notifier) record(ctx context.Context, kind, recipient, text string, sendErr error) {
	d := &Delivery{
		Kind:      kind,
		Recipient: recipient,
		Success:   sendErr == nil,
		Chars:     utf8.RuneCountInString(text),
		CreatedAt: n.clock.Now(),
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
		if n.bus != nil {
			n.bus.Emit("notifier", &events.DeliveryFailedData{Kind: kind, Recipient: recipient, Error: d.Error})
		}
	}

	if n.deliveries == nil {
		return
	}
	if err := n.deliveries.Record(context.WithoutCancel(ctx), d); err != nil {
		n.log.Warn().Err(err).Msg("Failed to record delivery")
	}
}
