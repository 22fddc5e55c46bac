// File: internal/services/stream/state.go
package stream

// State is the lifecycle state of a stream session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether the session has reached a final state. A
// terminal session never mutates conversation state again.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the session currently occupies the single
// process-wide stream slot.
func (s State) IsActive() bool {
	return s == StateConnecting || s == StateStreaming
}

func (s State) String() string {
	return string(s)
}
