// File: internal/handlers/stream_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/evanmb/go-converse/internal/services"
	"github.com/evanmb/go-converse/internal/services/conversation"
	"github.com/evanmb/go-converse/internal/services/stream"
)

// sseWriter serializes SSE frames onto one response and refuses writes once
// the handler has returned, since a session can outlive a disconnected
// client by a few events.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	gone    bool
}

func (s *sseWriter) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *sseWriter) startLocked() {
	if s.started || s.gone {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// data emits one SSE data frame, splitting multi-line payloads into multiple
// data lines as the protocol requires.
func (s *sseWriter) data(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	s.startLocked()
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	fmt.Fprint(s.w, "\n")
	s.flusher.Flush()
}

func (s *sseWriter) event(name, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	s.startLocked()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload)
	s.flusher.Flush()
}

// abandon marks the response as gone; later frames are dropped.
func (s *sseWriter) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone = true
}

// StreamResponse submits the prompt against the active conversation and
// forwards the reply fragments to the client as server-sent events. The wire
// contract matches what the frontend's EventSource expects: one `data:`
// frame per fragment, then an `event: close` frame on clean completion. A
// failed or cancelled stream just ends, which surfaces client-side as the
// EventSource error event.
func (h *ChatHandler) StreamResponse(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	prompt := r.URL.Query().Get("prompt")
	sse := &sseWriter{w: w, flusher: flusher}
	defer sse.abandon()

	done := make(chan struct{})
	var doneOnce sync.Once

	observer := services.StreamObserver{
		OnFragment: func(text string) {
			sse.data(text)
		},
		OnDone: func(terminal stream.State) {
			if terminal == stream.StateCompleted {
				sse.event("close", "done")
			}
			doneOnce.Do(func() { close(done) })
		},
	}

	if err := h.chatService.SendMessage(r.Context(), prompt, observer); err != nil {
		switch {
		case stream.IsAlreadyActive(err):
			writeError(w, "A reply is already streaming", http.StatusConflict)
			return
		case conversation.IsValidation(err):
			writeError(w, "Prompt is empty", http.StatusBadRequest)
			return
		default:
			// Transport dial failures are absorbed into the message log as
			// a visible assistant message; end the stream like a mid-flight
			// failure would.
			h.logger.Warn("stream open failed", "error", err)
			sse.start()
			return
		}
	}

	select {
	case <-done:
	case <-r.Context().Done():
	}
}
