// File: internal/domain/client_event.go
package domain

import "time"

// ClientEvent is a log event reported by the browser frontend.
type ClientEvent struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Level     string    `json:"level" gorm:"not null"` // "info", "warn" or "error"
	Message   string    `json:"message" gorm:"not null"`
	Context   string    `json:"context,omitempty"` // optional JSON blob (e.g. stack trace)
	CreatedAt time.Time `json:"created_at"`
}
