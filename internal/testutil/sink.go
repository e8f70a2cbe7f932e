package testutil

import (
	"context"
	"sync"

	"github.com/nhle/review-notifier/internal/sink"
)

// RecordingSink records every message it is asked to send. SendFunc, when
// set, decides the outcome of each send.
type RecordingSink struct {
	SendFunc func(ctx context.Context, msg sink.Message) error
	Fmt      sink.Format

	mu       sync.Mutex
	sent     []sink.Message
	attempts int
}

var _ sink.Sink = (*RecordingSink)(nil)

func (s *RecordingSink) Name() string        { return "recording" }
func (s *RecordingSink) Format() sink.Format { return s.Fmt }

func (s *RecordingSink) Send(ctx context.Context, msg sink.Message) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	if s.SendFunc != nil {
		if err := s.SendFunc(ctx, msg); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func (s *RecordingSink) Test(ctx context.Context) error {
	return s.Send(ctx, sink.Message{Title: "test", Body: "test"})
}

// Sent returns a copy of the successfully sent messages.
func (s *RecordingSink) Sent() []sink.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Message(nil), s.sent...)
}

// Attempts returns the number of Send calls, successful or not.
func (s *RecordingSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
