// File: internal/services/conversation/types.go
package conversation

// Logger defines the logging interface used by the conversation store.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Handle identifies the open placeholder message of one conversation. A
// handle goes stale when the placeholder is finalized, or when its
// conversation is deleted or cleared.
type Handle struct {
	conversationID string
	index          int
	generation     uint64
}

// ConversationID returns the conversation the handle is bound to.
func (h Handle) ConversationID() string {
	return h.conversationID
}
