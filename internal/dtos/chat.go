// File: internal/dtos/chat.go
package dtos

import (
	"time"

	"github.com/evanmb/go-converse/internal/domain"
)

// ChatSnapshot is the read-only view of controller state handed to the
// presentation layer.
type ChatSnapshot struct {
	ActiveConversationID string                `json:"activeConversationId"`
	Conversations        []domain.Conversation `json:"conversations"`
	Messages             []domain.Message      `json:"messages"`
	Streaming            bool                  `json:"streaming"`
}

// MessageView is one message in an API response, optionally carrying the
// markdown-rendered HTML of assistant text.
type MessageView struct {
	Text            string    `json:"text"`
	IsFromAssistant bool      `json:"isFromAssistant"`
	Timestamp       time.Time `json:"timestamp"`
	HTML            string    `json:"html,omitempty"`
}

// FromMessages maps domain messages to views.
func FromMessages(messages []domain.Message) []MessageView {
	views := make([]MessageView, len(messages))
	for i, m := range messages {
		views[i] = MessageView{
			Text:            m.Text,
			IsFromAssistant: m.IsFromAssistant,
			Timestamp:       m.Timestamp,
		}
	}
	return views
}

// ClientEventRequest is the payload for logs reported by the browser.
type ClientEventRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
