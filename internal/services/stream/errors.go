// File: internal/services/stream/errors.go
package stream

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeAlreadyActive ErrorType = "ALREADY_ACTIVE"
	ErrTypeState         ErrorType = "STATE"
	ErrTypeTransport     ErrorType = "TRANSPORT"
)

// StreamError is the typed error returned by stream sessions.
type StreamError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Stream %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Stream %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

func NewAlreadyActiveError(operation string) *StreamError {
	return &StreamError{
		Type:      ErrTypeAlreadyActive,
		Operation: operation,
		Message:   "another stream session is already active",
	}
}

func NewStateError(operation, msg string) *StreamError {
	return &StreamError{Type: ErrTypeState, Operation: operation, Message: msg}
}

func NewTransportError(operation, msg string, cause error) *StreamError {
	return &StreamError{Type: ErrTypeTransport, Operation: operation, Message: msg, Cause: cause}
}

// IsAlreadyActive reports whether err is an ALREADY_ACTIVE stream error.
func IsAlreadyActive(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Type == ErrTypeAlreadyActive
}
