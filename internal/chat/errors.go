package chat

import "errors"

// Stable error kinds surfaced to both the REST and WebSocket paths.
var (
	// ErrNotFound: session, message or print job does not exist.
	ErrNotFound = errors.New("chat: not found")
	// ErrUnauthorized: authenticated but not a participant of the session.
	ErrUnauthorized = errors.New("chat: not a participant")
	// ErrInvalidState: session is not active, or past its expiry.
	ErrInvalidState = errors.New("chat: session is no longer active")
	// ErrInvalidInput: empty or oversized message text.
	ErrInvalidInput = errors.New("chat: invalid message")
)
