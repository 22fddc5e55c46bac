// File: internal/services/stream/transport.go
package stream

import "context"

// EventKind discriminates the notifications a transport delivers.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventFragment EventKind = "fragment"
	EventEnd      EventKind = "end"
	EventError    EventKind = "error"
)

// Event is one notification from an open stream. A well-behaved transport
// emits an opened event, zero or more fragments in order, then exactly one
// end or error, and finally closes the channel.
type Event struct {
	Kind EventKind
	Text string // fragment text, set for EventFragment
	Err  error  // set for EventError
}

// Handle is one open inbound stream.
type Handle interface {
	// Events returns the ordered event channel. The transport closes it
	// after the terminal event, or after Close.
	Events() <-chan Event

	// Close releases the underlying stream. Idempotent.
	Close() error
}

// Transport opens a one-way event stream for a prompt. Implementations live
// in the ai package.
type Transport interface {
	OpenStream(ctx context.Context, prompt string) (Handle, error)
}
