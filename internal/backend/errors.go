package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports a 404 from the backend. It is an expected outcome
// (user not registered, session gone), not a failure.
var ErrNotFound = errors.New("backend: not found")

// TransportError covers timeouts, refused connections and malformed
// response bodies. Callers surface it as a generic retry-later message.
type TransportError struct {
	Reason string // "timeout" | "unreachable" | "internal"
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "backend: transport error"
	}
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: %v", e.Reason, e.Err)
	}
	return "backend: " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Err }

// AppError carries a structured error payload reported by the backend.
// Its message is meant to be shown to the user as-is.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e == nil {
		return "backend: application error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, msg)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UserMessage extracts the backend-provided error text, if any.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return strings.TrimSpace(appErr.Message)
	}
	return ""
}
