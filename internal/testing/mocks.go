package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

// SentMessage is one message captured by RecordingSink.
type SentMessage struct {
	Recipient string
	Text      string
}

// RecordingSink is an in-memory notifier sink. Recipients listed in Fail
// get an error instead of a delivery.
type RecordingSink struct {
	mu   sync.Mutex
	sent []SentMessage
	fail map[string]bool
}

// NewRecordingSink creates a sink that fails for the given recipients.
func NewRecordingSink(failing ...string) *RecordingSink {
	fail := make(map[string]bool, len(failing))
	for _, r := range failing {
		fail[r] = true
	}
	return &RecordingSink{fail: fail}
}

// ErrDeliveryRefused is returned for failing recipients.
var ErrDeliveryRefused = errors.New("delivery refused")

// Send records the message or fails for configured recipients.
func (s *RecordingSink) Send(_ context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[recipient] {
		return ErrDeliveryRefused
	}
	s.sent = append(s.sent, SentMessage{Recipient: recipient, Text: text})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *RecordingSink) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// TextsFor returns the texts delivered to recipient, in order.
func (s *RecordingSink) TextsFor(recipient string) []string {
	var out []string
	for _, m := range s.Sent() {
		if m.Recipient == recipient {
			out = append(out, m.Text)
		}
	}
	return out
}

// MockSink is a testify mock of the notifier sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Send(ctx context.Context, recipient, text string) error {
	args := m.Called(ctx, recipient, text)
	return args.Error(0)
}
