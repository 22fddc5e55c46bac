// File: internal/domain/conversation.go
package domain

import "time"

// Conversation represents a single conversation thread.
type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	CreatedAt          time.Time `json:"createdAt"`
}
