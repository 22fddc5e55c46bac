// File: internal/services/chat_service.go
package services

import (
	"context"
	"strings"
	"sync"

	"github.com/evanmb/go-converse/internal/domain"
	"github.com/evanmb/go-converse/internal/dtos"
	"github.com/evanmb/go-converse/internal/services/conversation"
	"github.com/evanmb/go-converse/internal/services/stream"
)

// Fallback texts substituted when a stream ends with no accumulated content.
const (
	FallbackCompleted = "Response completed."
	FallbackFailed    = "Something went wrong. Please try again."
)

// StreamObserver receives downstream passthrough of an in-flight reply, for
// forwarding to a connected client. Both fields are optional.
type StreamObserver struct {
	// OnFragment fires for each raw fragment, in receipt order.
	OnFragment func(text string)
	// OnDone fires once, with the session's terminal state.
	OnDone func(terminal stream.State)
}

// ChatService orchestrates user actions over the conversation store and the
// single stream session slot. All failures from the stream are absorbed into
// the conversation's message log as a visible assistant message; they never
// surface as an application fault.
type ChatService struct {
	mu        sync.Mutex
	store     *conversation.Store
	transport stream.Transport
	active    *stream.Session
	logger    Logger
}

func NewChatService(store *conversation.Store, transport stream.Transport, logger Logger) (*ChatService, error) {
	if store == nil {
		return nil, conversation.NewValidationError("constructor", "conversation store is required")
	}
	if transport == nil {
		return nil, conversation.NewValidationError("constructor", "stream transport is required")
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ChatService{store: store, transport: transport, logger: logger}, nil
}

// SendMessage submits a prompt against the active conversation: appends the
// user message and a placeholder reply, then opens a stream session bound to
// the conversation id captured now, so a later switch cannot redirect the
// reply. Empty prompts and sends while a stream is active are rejected
// without mutating anything.
func (c *ChatService) SendMessage(ctx context.Context, text string, obs StreamObserver) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return conversation.NewValidationError("send_message", "prompt is empty")
	}

	c.mu.Lock()
	// A created-but-not-yet-opened session still holds the slot; only a
	// terminal one frees it.
	if c.active != nil && !c.active.State().IsTerminal() {
		c.mu.Unlock()
		return stream.NewAlreadyActiveError("send_message")
	}

	conversationID := c.store.ActiveID()
	if err := c.store.AppendUserMessage(conversationID, trimmed); err != nil {
		c.mu.Unlock()
		return err
	}
	handle, err := c.store.AppendPlaceholder(conversationID)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	session := stream.NewSession(c.transport, c.sessionCallbacks(handle, obs), c.logger)
	c.active = session
	c.mu.Unlock()

	c.logger.Info("opening stream", "conversation_id", conversationID, "prompt_len", len(trimmed))
	return session.Open(ctx, trimmed, conversationID)
}

// sessionCallbacks wires a session to the placeholder it owns and to the
// optional downstream observer.
func (c *ChatService) sessionCallbacks(handle conversation.Handle, obs StreamObserver) stream.Callbacks {
	return stream.Callbacks{
		OnUpdate: func(total string) error {
			return c.store.UpdatePlaceholder(handle, total)
		},
		OnFragment: obs.OnFragment,
		OnComplete: func(final string) {
			c.finalize(handle, final, FallbackCompleted)
			if obs.OnDone != nil {
				obs.OnDone(stream.StateCompleted)
			}
		},
		OnFail: func(partial string, cause error) {
			// Partial progress is preserved; the fallback only covers
			// streams that failed before producing anything.
			c.finalize(handle, partial, FallbackFailed)
			if obs.OnDone != nil {
				obs.OnDone(stream.StateFailed)
			}
		},
		OnCancel: func(partial string) {
			c.finalize(handle, partial, FallbackFailed)
			if obs.OnDone != nil {
				obs.OnDone(stream.StateCancelled)
			}
		},
	}
}

// finalize closes the placeholder. A stale handle here means the conversation
// was deleted or cleared after cancellation bookkeeping already ran; that is
// expected and never surfaces.
func (c *ChatService) finalize(handle conversation.Handle, text, fallback string) {
	if err := c.store.FinalizePlaceholder(handle, text, fallback); err != nil {
		if conversation.IsStaleHandle(err) {
			c.logger.Debug("placeholder already gone at finalize",
				"conversation_id", handle.ConversationID())
			return
		}
		c.logger.Error("failed to finalize placeholder",
			"conversation_id", handle.ConversationID(), "error", err)
	}
}

// NewChat creates a conversation and makes it active, cancelling any
// in-flight stream bound to the previously active conversation.
func (c *ChatService) NewChat() domain.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelActiveLocked()
	return c.store.Create()
}

// SwitchTo activates another conversation. Switching away from a streaming
// reply cancels the session: its fragments stop applying and the single
// active stream slot is released.
func (c *ChatService) SwitchTo(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.store.ActiveID()
	if err := c.store.Select(id); err != nil {
		return err
	}
	if id != previous {
		c.cancelActiveLocked()
	}
	return nil
}

// DeleteChat removes a conversation, cancelling the in-flight stream first
// when it is bound to the conversation being deleted. Deleting the last
// remaining conversation (or an unknown id) is a silent no-op.
func (c *ChatService) DeleteChat(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Exists(id) && c.store.Count() > 1 {
		if c.active != nil && !c.active.State().IsTerminal() && c.active.ConversationID() == id {
			c.cancelActiveLocked()
		}
	}
	c.store.Delete(id)
}

// CancelActive cancels any in-flight stream session. Used on shutdown.
func (c *ChatService) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelActiveLocked()
}

func (c *ChatService) cancelActiveLocked() {
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
}

// Streaming reports whether a reply is currently streaming.
func (c *ChatService) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && !c.active.State().IsTerminal()
}

// Snapshot returns the read-only view of controller state: the active
// conversation id, ordered summaries, the active conversation's messages and
// the streaming flag.
func (c *ChatService) Snapshot() dtos.ChatSnapshot {
	streaming := c.Streaming()
	activeID := c.store.ActiveID()
	messages, err := c.store.Messages(activeID)
	if err != nil {
		// The active id always refers to an existing conversation; a miss
		// here means a bug in the store, not a user error.
		c.logger.Error("active conversation missing from store", "conversation_id", activeID)
		messages = nil
	}
	return dtos.ChatSnapshot{
		ActiveConversationID: activeID,
		Conversations:        c.store.Summaries(),
		Messages:             messages,
		Streaming:            streaming,
	}
}

// Messages returns the ordered message log of one conversation.
func (c *ChatService) Messages(id string) ([]domain.Message, error) {
	return c.store.Messages(id)
}
