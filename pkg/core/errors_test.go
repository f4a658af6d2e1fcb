package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "missing utterance text",
	}

	expected := "invalid_request_error: missing utterance text"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithSessionID(t *testing.T) {
	err := NewSessionTerminalError("s_abc123")

	expected := "session_terminal_error: session is terminal (session: s_abc123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewUnknownSessionError(t *testing.T) {
	err := NewUnknownSessionError("s_missing")
	if err.Type != ErrUnknownSession {
		t.Errorf("Type = %v, want %v", err.Type, ErrUnknownSession)
	}
	if err.SessionID != "s_missing" {
		t.Errorf("SessionID = %q, want %q", err.SessionID, "s_missing")
	}
}

func TestNewStoreUnavailableError_Unwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := NewStoreUnavailableError(underlying)

	if err.Type != ErrStoreUnavailable {
		t.Errorf("Type = %v, want %v", err.Type, ErrStoreUnavailable)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrStoreUnavailable, true},
		{ErrStoreConflict, false},
		{ErrUnknownSession, false},
		{ErrSessionTerminal, false},
		{ErrInvalidRequest, false},
		{ErrPolicyTimeout, false},
		{ErrChannelDisconnected, false},
	}

	for _, tt := range tests {
		err := &Error{Type: tt.errType, Message: "x"}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.errType, got, tt.want)
		}
	}
}

func TestErrorsAs(t *testing.T) {
	var wrapped error = NewStoreConflictError("s_1")

	var coreErr *Error
	if !errors.As(wrapped, &coreErr) {
		t.Fatal("errors.As should match *core.Error")
	}
	if coreErr.Type != ErrStoreConflict {
		t.Errorf("Type = %v, want %v", coreErr.Type, ErrStoreConflict)
	}
}
