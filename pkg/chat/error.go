package chat

import "errors"

var (
	// ErrUnauthenticated is returned when no valid credential is available.
	// It blocks session start entirely; nothing is retried.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrHistoryLoad is returned when the history fetch fails. The session
	// continues in live-only mode with an empty transcript.
	ErrHistoryLoad = errors.New("history load failed")
	// ErrTransport is returned when the push connection fails to establish
	// or drops. The core does not reconnect on its own.
	ErrTransport = errors.New("transport error")
	// ErrAlreadyConnected is returned when connecting a transport that is
	// already connected or connecting.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionStarted is returned when starting a session twice.
	ErrSessionStarted = errors.New("session already started")
	// ErrEmptyMessage is returned when composing an empty or
	// whitespace-only message. No network call is made.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidMessage is returned when a wire payload is missing
	// server-assigned fields.
	ErrInvalidMessage = errors.New("invalid message")
)
