package core

import (
	"fmt"
)

// Error is the canonical error carried across the orchestrator and its
// transport surface.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s: %s (session: %s)", e.Type, e.Message, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest      ErrorType = "invalid_request_error"
	ErrAuthentication      ErrorType = "authentication_error"
	ErrUnknownSession      ErrorType = "unknown_session_error"
	ErrSessionTerminal     ErrorType = "session_terminal_error"
	ErrStoreUnavailable    ErrorType = "store_unavailable_error"
	ErrStoreConflict       ErrorType = "store_conflict_error"
	ErrChannelDisconnected ErrorType = "channel_disconnected_error"
	ErrPolicyTimeout       ErrorType = "policy_timeout_error"
	ErrRateLimit           ErrorType = "rate_limit_error"
	ErrAPI                 ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewUnknownSessionError creates an error for a session id the
// orchestrator does not track.
func NewUnknownSessionError(sessionID string) *Error {
	return &Error{
		Type:      ErrUnknownSession,
		Message:   "unknown session",
		SessionID: sessionID,
	}
}

// NewSessionTerminalError creates an error for a turn submitted to a
// session that already reached a terminal state.
func NewSessionTerminalError(sessionID string) *Error {
	return &Error{
		Type:      ErrSessionTerminal,
		Message:   "session is terminal",
		SessionID: sessionID,
	}
}

// NewStoreUnavailableError creates a transient store error.
func NewStoreUnavailableError(underlying error) *Error {
	return &Error{
		Type:    ErrStoreUnavailable,
		Message: fmt.Sprintf("transcript store unavailable: %v", underlying),
		Cause:   underlying,
	}
}

// NewStoreConflictError creates an error for a duplicate append of an
// already-committed record id.
func NewStoreConflictError(sessionID string) *Error {
	return &Error{
		Type:      ErrStoreConflict,
		Message:   "record already committed",
		SessionID: sessionID,
	}
}

// NewChannelDisconnectedError creates an error for a channel that went
// away mid-session.
func NewChannelDisconnectedError(sessionID string) *Error {
	return &Error{
		Type:      ErrChannelDisconnected,
		Message:   "channel disconnected",
		SessionID: sessionID,
	}
}

// NewPolicyTimeoutError creates an error for persona logic that
// exceeded its decision budget.
func NewPolicyTimeoutError(sessionID string) *Error {
	return &Error{
		Type:      ErrPolicyTimeout,
		Message:   "persona decision budget exceeded",
		SessionID: sessionID,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string) *Error {
	return &Error{
		Type:    ErrRateLimit,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsRetryable reports whether the operation that produced the error may
// be retried as-is. Only transient store outages qualify; conflicts
// resolve by treating the committed record as the result, and session
// errors are never retried.
func (e *Error) IsRetryable() bool {
	return e.Type == ErrStoreUnavailable
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}
