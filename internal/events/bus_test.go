package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var order []string
	bus.Subscribe(func(e Event) { order = append(order, "first:"+string(e.Type)) })
	bus.Subscribe(func(e Event) { order = append(order, "second:"+string(e.Type)) })

	bus.Publish(Event{Type: AlertFired})

	assert.Equal(t, []string{"first:ALERT_FIRED", "second:ALERT_FIRED"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })
	assert.Equal(t, 1, bus.Subscribers())

	bus.Publish(Event{Type: JobCompleted})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Type: JobCompleted})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(Event{Type: ItemDetected}) })
	assert.True(t, delivered)
}

func TestBus_EmitTypedData(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Emit("quote", &QuoteData{Symbol: "MZG", Value: "15500", Provider: "html"})
	bus.Emit("quote", &QuoteData{Symbol: "MZG"})
	bus.Emit("scheduler", &JobData{Name: "daily_summary", Error: "boom"})

	require.Len(t, got, 3)
	assert.Equal(t, QuoteResolved, got[0].Type)
	assert.Equal(t, "15500", got[0].Data["value"])
	assert.Equal(t, "quote", got[0].Module)
	assert.False(t, got[0].Timestamp.IsZero())

	assert.Equal(t, QuoteUnavailable, got[1].Type)
	assert.Equal(t, JobFailed, got[2].Type)
}
