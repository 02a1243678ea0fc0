package ocpp

import (
	"errors"
	"fmt"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

var (
	// ErrTimeout means an outbound CALL was not answered in time.
	ErrTimeout = errors.New("call timed out")
	// ErrConnectionClosed means the socket went away with calls in flight.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSessionNotFound means no live session exists for the charge point.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSendQueueFull means the per-connection send buffer is saturated.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrDuplicateMessageID means a CALL reused an in-flight messageId.
	ErrDuplicateMessageID = errors.New("duplicate message id")
)

// CallError is a CALLERROR answer from the charge point, or the wire error
// a handler wants sent back.
type CallError struct {
	Code        ocpp16.ErrorCode
	Description string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewCallError builds a CallError.
func NewCallError(code ocpp16.ErrorCode, description string) *CallError {
	return &CallError{Code: code, Description: description}
}
