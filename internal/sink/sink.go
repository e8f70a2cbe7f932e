package sink

import (
	"context"
	"errors"
	"fmt"
)

// Format is the markup a sink understands.
type Format int

const (
	// FormatHTML is Telegram-style HTML: b, i, code, a.
	FormatHTML Format = iota
	// FormatText is plain text with links spelled out.
	FormatText
)

// Message is a rendered alert.
type Message struct {
	// Title is a one-line summary used for logs and local alerts.
	Title string
	// Body is the full message in the sink's Format.
	Body string
}

// Sink delivers rendered alerts to an external messaging service.
type Sink interface {
	Name() string
	Format() Format
	Send(ctx context.Context, msg Message) error
	// Test verifies credentials and delivers a test message.
	Test(ctx context.Context) error
}

// Error is a delivery failure reported by a sink.
type Error struct {
	Sink        string
	StatusCode  int
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Description
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Sink, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Sink, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsSinkError reports whether err (or any error in its chain) is an Error.
func IsSinkError(err error) bool {
	var sinkErr *Error
	return errors.As(err, &sinkErr)
}
