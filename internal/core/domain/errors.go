// Package domain defines the core domain models for converge.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes have the form CV-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "CV-WIRE-4000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// Wrap returns a copy of the error wrapping the given cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Protocol Errors (WIRE)
// ============================================================================

var (
	// ErrDecode indicates malformed structured-value or argument bytes.
	ErrDecode = NewDomainError("CV-WIRE-4000", "decode error")

	// ErrVersionMismatch indicates the peers speak incompatible protocol majors.
	ErrVersionMismatch = NewDomainError("CV-WIRE-4260", "protocol version mismatch")

	// ErrUnknownCommand indicates the peer has no responder for a command.
	ErrUnknownCommand = NewDomainError("CV-WIRE-4040", "unknown command")

	// ErrFrameTooLarge indicates a frame exceeded the configured size limit.
	ErrFrameTooLarge = NewDomainError("CV-WIRE-4130", "frame too large")

	// ErrConnectionClosed indicates the connection closed before a call completed.
	ErrConnectionClosed = NewDomainError("CV-WIRE-5030", "connection closed")

	// ErrSendQueueFull indicates the per-connection send queue overflowed.
	ErrSendQueueFull = NewDomainError("CV-WIRE-5031", "send queue full")

	// ErrRemote indicates the peer answered a call with an error box.
	ErrRemote = NewDomainError("CV-WIRE-5000", "remote error")
)

// ============================================================================
// Control Errors (CTRL)
// ============================================================================

var (
	// ErrSendFailure indicates a push to one recipient failed.
	ErrSendFailure = NewDomainError("CV-CTRL-5020", "send failure")

	// ErrAggregateFailure indicates at least one of a batch of operations failed.
	ErrAggregateFailure = NewDomainError("CV-CTRL-5021", "aggregate failure")

	// ErrServiceNotRunning indicates the control service is not started.
	ErrServiceNotRunning = NewDomainError("CV-CTRL-5030", "service not running")

	// ErrServiceAlreadyRunning indicates Start was called twice.
	ErrServiceAlreadyRunning = NewDomainError("CV-CTRL-4090", "service already running")
)

// ============================================================================
// Model Errors (MODEL)
// ============================================================================

var (
	// ErrDeploymentInvalid indicates a deployment failed validation.
	ErrDeploymentInvalid = NewDomainError("CV-MODEL-4001", "invalid deployment")

	// ErrNodeStateInvalid indicates a node state failed validation.
	ErrNodeStateInvalid = NewDomainError("CV-MODEL-4002", "invalid node state")

	// ErrTraceContextInvalid indicates a serialized trace context could not be parsed.
	ErrTraceContextInvalid = NewDomainError("CV-MODEL-4003", "invalid trace context")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrStorage indicates a storage layer error.
	ErrStorage = NewDomainError("CV-SYS-5001", "storage error")

	// ErrInternal indicates an internal error.
	ErrInternal = NewDomainError("CV-SYS-5000", "internal error")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("CV-SYS-4290", "too many requests")
)

// VersionMismatchError is returned when the control service reports a
// protocol major version different from the local one. It is fatal for
// the session and must not be retried against the same peer.
type VersionMismatchError struct {
	Local  int32
	Remote int32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s: local major %d, remote major %d", ErrVersionMismatch.Error(), e.Local, e.Remote)
}

// Unwrap lets errors.Is match ErrVersionMismatch.
func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// SendFailureError records a push that could not be delivered to one
// recipient. The recipient is not removed from the live set because of it.
type SendFailureError struct {
	SessionID string
	Command   string
	Err       error
}

func (e *SendFailureError) Error() string {
	return fmt.Sprintf("%s: %s to session %s: %v", ErrSendFailure.Error(), e.Command, e.SessionID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *SendFailureError) Unwrap() []error {
	return []error{ErrSendFailure, e.Err}
}
