// File: internal/services/conversation/store.go
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evanmb/go-converse/internal/domain"
)

const (
	// DefaultTitle is the title of a conversation before its first user message.
	DefaultTitle = "New conversation"

	titleMaxRunes   = 30
	previewMaxRunes = 60
	ellipsis        = "..."
)

// thread is the store's internal record for one conversation. The generation
// counter is bumped whenever the visible message log is cleared, which
// invalidates every handle issued before the clear.
type thread struct {
	conv       domain.Conversation
	messages   []domain.Message
	openIndex  int // index of the open placeholder, -1 when none
	generation uint64
}

// Store holds every conversation thread and tracks which one is active.
// Invariants: the store is never empty, and the active id always refers to
// an existing conversation.
type Store struct {
	mu       sync.RWMutex
	order    []string
	threads  map[string]*thread
	activeID string
	logger   Logger
}

// NewStore creates a store seeded with one default conversation, which
// becomes active.
func NewStore(logger Logger) *Store {
	s := &Store{
		threads: make(map[string]*thread),
		logger:  logger,
	}
	conv := s.insertLocked()
	s.activeID = conv.ID
	return s
}

// insertLocked creates a new conversation record and appends it to the order.
func (s *Store) insertLocked() domain.Conversation {
	conv := domain.Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
	}
	s.threads[conv.ID] = &thread{conv: conv, openIndex: -1}
	s.order = append(s.order, conv.ID)
	return conv
}

// Create inserts a new conversation with the default title and makes it
// active. Cancelling any in-flight stream is the controller's job.
func (s *Store) Create() domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.insertLocked()
	s.activeID = conv.ID
	s.logger.Info("conversation created", "conversation_id", conv.ID)
	return conv
}

// Select makes the given conversation active.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; !ok {
		return NewNotFoundError("select", id)
	}
	s.activeID = id
	return nil
}

// Delete removes a conversation. Deleting the sole remaining conversation is
// a silent no-op, as is deleting an unknown id. When the active conversation
// is deleted, activation falls to the first remaining conversation and its
// visible message log is cleared (there is no persistence layer to reload
// history from). Returns whether a conversation was actually removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; !ok {
		return false
	}
	if len(s.order) <= 1 {
		s.logger.Debug("refusing to delete the last conversation", "conversation_id", id)
		return false
	}

	delete(s.threads, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.activeID == id {
		successor := s.threads[s.order[0]]
		s.activeID = successor.conv.ID
		s.clearLocked(successor)
	}
	s.logger.Info("conversation deleted", "conversation_id", id, "active_id", s.activeID)
	return true
}

// clearLocked empties a thread's visible message log and invalidates every
// handle issued against it.
func (s *Store) clearLocked(t *thread) {
	t.messages = nil
	t.openIndex = -1
	t.generation++
	s.recomputeDerivedLocked(t)
}

// Exists reports whether a conversation id is known to the store.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[id]
	return ok
}

// Count returns the number of conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ActiveID returns the id of the active conversation.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Summaries returns copies of every conversation in creation order.
func (s *Store) Summaries() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.threads[id].conv)
	}
	return out
}

// Messages returns a copy of a conversation's ordered message log.
func (s *Store) Messages(id string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, NewNotFoundError("messages", id)
	}
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

// AppendUserMessage appends an immutable user message and recomputes the
// conversation's derived title and preview.
func (s *Store) AppendUserMessage(id, text string) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("append_user_message", "message text cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return NewNotFoundError("append_user_message", id)
	}
	t.messages = append(t.messages, domain.Message{
		Text:            text,
		IsFromAssistant: false,
		Timestamp:       time.Now(),
	})
	s.recomputeDerivedLocked(t)
	return nil
}

// AppendPlaceholder appends a mutable, empty assistant message and returns
// the handle that allows the bound stream session to update it.
func (s *Store) AppendPlaceholder(id string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[id]
	if !ok {
		return Handle{}, NewNotFoundError("append_placeholder", id)
	}
	if t.openIndex >= 0 {
		return Handle{}, NewValidationError("append_placeholder", "conversation already has an open placeholder")
	}
	t.messages = append(t.messages, domain.Message{
		IsFromAssistant: true,
		Timestamp:       time.Now(),
	})
	t.openIndex = len(t.messages) - 1
	s.recomputeDerivedLocked(t)
	return Handle{conversationID: id, index: t.openIndex, generation: t.generation}, nil
}

// UpdatePlaceholder overwrites the placeholder's text with the full
// accumulated total so far. The caller always passes the running total, not
// a fragment.
func (s *Store) UpdatePlaceholder(h Handle, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.openThreadLocked(h, "update_placeholder")
	if err != nil {
		return err
	}
	t.messages[h.index].Text = text
	s.recomputeDerivedLocked(t)
	return nil
}

// FinalizePlaceholder sets the placeholder's immutable final text and closes
// it. When the accumulated text is empty the caller-chosen fallback is
// substituted, so every sent prompt ends with some visible assistant message.
func (s *Store) FinalizePlaceholder(h Handle, finalText, fallback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.openThreadLocked(h, "finalize_placeholder")
	if err != nil {
		return err
	}
	text := strings.TrimSpace(finalText)
	if text == "" {
		text = fallback
	}
	t.messages[h.index].Text = text
	t.openIndex = -1
	s.recomputeDerivedLocked(t)
	return nil
}

// openThreadLocked resolves a handle to its thread, verifying the handle
// still refers to the open placeholder.
func (s *Store) openThreadLocked(h Handle, operation string) (*thread, error) {
	t, ok := s.threads[h.conversationID]
	if !ok {
		return nil, NewStaleHandleError(operation, h.conversationID)
	}
	if t.generation != h.generation || t.openIndex != h.index {
		return nil, NewStaleHandleError(operation, h.conversationID)
	}
	return t, nil
}

// recomputeDerivedLocked rebuilds the thread's derived title and preview.
// Pure and idempotent: recomputing with unchanged messages yields the same
// result.
func (s *Store) recomputeDerivedLocked(t *thread) {
	title := DefaultTitle
	if len(t.messages) > 0 && !t.messages[0].IsFromAssistant {
		title = truncate(t.messages[0].Text, titleMaxRunes)
	}
	preview := ""
	if len(t.messages) > 0 {
		preview = truncate(t.messages[len(t.messages)-1].Text, previewMaxRunes)
	}
	t.conv.Title = title
	t.conv.LastMessagePreview = preview
}

// truncate limits s to max visible runes, appending an ellipsis when text
// was cut off.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + ellipsis
}
