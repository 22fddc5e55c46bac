// File: internal/services/conversation/errors.go
package conversation

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeNotFound    ErrorType = "NOT_FOUND"
	ErrTypeStaleHandle ErrorType = "STALE_HANDLE"
	ErrTypeValidation  ErrorType = "VALIDATION"
)

// StoreError is the typed error returned by the conversation store.
type StoreError struct {
	Type           ErrorType
	Operation      string
	Message        string
	ConversationID string
}

func (e *StoreError) Error() string {
	if e.ConversationID != "" {
		return fmt.Sprintf("Conversation %s error in %s: %s (conversation: %s)",
			e.Type, e.Operation, e.Message, e.ConversationID)
	}
	return fmt.Sprintf("Conversation %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func NewNotFoundError(operation, conversationID string) *StoreError {
	return &StoreError{
		Type:           ErrTypeNotFound,
		Operation:      operation,
		Message:        "conversation does not exist",
		ConversationID: conversationID,
	}
}

// NewStaleHandleError reports a placeholder handle that no longer refers to
// an open placeholder. Internal bookkeeping only; never shown to the user.
func NewStaleHandleError(operation, conversationID string) *StoreError {
	return &StoreError{
		Type:           ErrTypeStaleHandle,
		Operation:      operation,
		Message:        "placeholder handle is stale",
		ConversationID: conversationID,
	}
}

func NewValidationError(operation, msg string) *StoreError {
	return &StoreError{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

// IsNotFound reports whether err is a NOT_FOUND store error.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrTypeNotFound
}

// IsStaleHandle reports whether err is a STALE_HANDLE store error.
func IsStaleHandle(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrTypeStaleHandle
}

// IsValidation reports whether err is a VALIDATION store error.
func IsValidation(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrTypeValidation
}
