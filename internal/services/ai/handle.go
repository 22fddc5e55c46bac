// File: internal/services/ai/handle.go
package ai

import (
	"sync"

	"github.com/evanmb/go-converse/internal/services/stream"
)

// eventHandle is the stream.Handle shared by both transports. A single
// producer goroutine emits events and closes the channel when it stops;
// Close tells the producer to stop and is safe to call any number of times.
type eventHandle struct {
	events  chan stream.Event
	closed  chan struct{}
	once    sync.Once
	onClose func()
}

func newEventHandle(onClose func()) *eventHandle {
	return &eventHandle{
		events:  make(chan stream.Event),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

func (h *eventHandle) Events() <-chan stream.Event {
	return h.events
}

func (h *eventHandle) Close() error {
	h.once.Do(func() {
		close(h.closed)
		if h.onClose != nil {
			h.onClose()
		}
	})
	return nil
}

// emit delivers one event unless the handle has been closed. Returns false
// when the producer should stop.
func (h *eventHandle) emit(ev stream.Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.closed:
		return false
	}
}

// finish closes the event channel; called by the producer goroutine only.
func (h *eventHandle) finish() {
	close(h.events)
}
