// File: internal/services/stream/session.go
package stream

import (
	"context"
	"strings"
	"sync"
)

// Logger defines the logging interface used by stream sessions.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Callbacks receive the session's effects. They are invoked one at a time,
// never concurrently with each other or with Cancel; totals passed to
// OnUpdate/OnComplete/OnFail/OnCancel are the space-joined accumulation of
// every fragment received so far, trimmed.
type Callbacks struct {
	// OnOpen fires when the transport signals the stream is open.
	OnOpen func()
	// OnUpdate fires after each fragment with the new running total. A
	// non-nil error (a stale placeholder) cancels the session.
	OnUpdate func(total string) error
	// OnFragment fires after OnUpdate with the raw fragment text, for
	// downstream passthrough.
	OnFragment func(text string)
	// OnComplete fires on a clean end-of-stream.
	OnComplete func(final string)
	// OnFail fires on a transport failure. Partial output is preserved.
	OnFail func(partial string, cause error)
	// OnCancel fires on explicit cancellation. Partial output is preserved.
	OnCancel func(partial string)
}

// Session manages exactly one inbound event stream, assembling fragments
// into a single growing reply and reporting lifecycle events through its
// callbacks. At most one session may be in a non-terminal state at a time;
// the controller enforces that before calling Open.
type Session struct {
	mu             sync.Mutex
	state          State
	prompt         string
	conversationID string
	fragments      []string
	transport      Transport
	handle         Handle
	cb             Callbacks
	logger         Logger
	done           chan struct{}
}

// NewSession creates an idle session.
func NewSession(transport Transport, cb Callbacks, logger Logger) *Session {
	return &Session{
		state:     StateIdle,
		transport: transport,
		cb:        cb,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the conversation the session is bound to.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Prompt returns the exact text sent, frozen for the session's duration.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// Accumulated returns the space-joined fragment total so far, trimmed.
func (s *Session) Accumulated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulatedLocked()
}

func (s *Session) accumulatedLocked() string {
	return strings.TrimSpace(strings.Join(s.fragments, " "))
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Open binds the session to a conversation and dials the transport. A dial
// failure moves the session to Failed (reported through OnFail) and is also
// returned to the caller.
func (s *Session) Open(ctx context.Context, prompt, conversationID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return NewStateError("open", "session has already been opened")
	}
	s.prompt = prompt
	s.conversationID = conversationID
	s.state = StateConnecting
	s.mu.Unlock()

	handle, err := s.transport.OpenStream(ctx, prompt)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state.IsTerminal() {
			return nil // cancelled while dialing
		}
		s.terminateLocked(StateFailed)
		s.logger.Error("stream open failed", "conversation_id", conversationID, "error", err)
		if s.cb.OnFail != nil {
			s.cb.OnFail(s.accumulatedLocked(), err)
		}
		return NewTransportError("open", "failed to open stream", err)
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		// Cancelled while dialing; release the stream we just opened.
		s.mu.Unlock()
		_ = handle.Close()
		return nil
	}
	s.handle = handle
	s.mu.Unlock()

	go s.run(handle)
	return nil
}

// run applies transport events one at a time until a terminal event arrives
// or the session is cancelled.
func (s *Session) run(handle Handle) {
	for ev := range handle.Events() {
		if !s.apply(ev) {
			break
		}
	}
	_ = handle.Close()
}

// apply processes one event under the session lock. Returns false once the
// session is terminal and the loop should stop.
func (s *Session) apply(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		// A late event from a cancelled stream; drop it.
		return false
	}

	switch ev.Kind {
	case EventOpened:
		if s.state == StateConnecting {
			s.state = StateStreaming
			if s.cb.OnOpen != nil {
				s.cb.OnOpen()
			}
		}

	case EventFragment:
		if s.state == StateConnecting {
			// Transports are expected to signal opened first; tolerate
			// ones that lead with data.
			s.state = StateStreaming
		}
		s.fragments = append(s.fragments, ev.Text)
		if s.cb.OnUpdate != nil {
			if err := s.cb.OnUpdate(s.accumulatedLocked()); err != nil {
				// The placeholder went away underneath us; stop applying.
				s.logger.Debug("dropping stream after stale update",
					"conversation_id", s.conversationID, "error", err)
				s.terminateLocked(StateCancelled)
				return false
			}
		}
		if s.cb.OnFragment != nil {
			s.cb.OnFragment(ev.Text)
		}

	case EventEnd:
		s.terminateLocked(StateCompleted)
		if s.cb.OnComplete != nil {
			s.cb.OnComplete(s.accumulatedLocked())
		}
		return false

	case EventError:
		s.terminateLocked(StateFailed)
		s.logger.Warn("stream failed", "conversation_id", s.conversationID, "error", ev.Err)
		if s.cb.OnFail != nil {
			s.cb.OnFail(s.accumulatedLocked(), ev.Err)
		}
		return false
	}
	return true
}

// Cancel moves a non-terminal session to Cancelled and closes the underlying
// transport. The accumulated partial text is reported through OnCancel so the
// bound placeholder is not left perpetually mutable. Cancelling an Idle
// session is not a no-op: it must stick so that a pending Open is rejected
// instead of resurrecting a stream the controller already abandoned.
// Cancelling a terminal session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	partial := s.accumulatedLocked()
	s.terminateLocked(StateCancelled)
	if s.handle != nil {
		_ = s.handle.Close()
	}
	s.logger.Info("stream cancelled",
		"conversation_id", s.conversationID, "partial_len", len(partial))
	if s.cb.OnCancel != nil {
		s.cb.OnCancel(partial)
	}
}

// terminateLocked enters a terminal state exactly once.
func (s *Session) terminateLocked(state State) {
	s.state = state
	close(s.done)
}
