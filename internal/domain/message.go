// File: internal/domain/message.go
package domain

import "time"

// Message represents a single message within a conversation.
type Message struct {
	Text            string    `json:"text"`
	IsFromAssistant bool      `json:"isFromAssistant"`
	Timestamp       time.Time `json:"timestamp"`
}
