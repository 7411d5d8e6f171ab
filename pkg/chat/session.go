package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SessionState represents the lifecycle of a conversation session.
type SessionState int

const (
	// StateEmpty is the initial state, before Start is called.
	StateEmpty SessionState = iota
	// StateLoading means the history fetch is in flight. Live push events
	// received in this state are buffered, not lost.
	StateLoading
	// StateLive means history has been merged and the push stream is
	// feeding the store directly.
	StateLive
	// StateClosed is terminal. A closed session cannot be restarted;
	// open a fresh one instead.
	StateClosed
)

// Transport is the live push stream for a single conversation. Dial must
// be guarded: a second call while connected fails with ErrAlreadyConnected.
// Messages delivers inbound events in arrival order; the channel is closed
// when the connection ends. Close releases the connection and is safe to
// call more than once.
type Transport interface {
	Dial(ctx context.Context, token string) error
	Messages() <-chan Message
	Send(text string) error
	Close() error
}

// HistoryLoader performs the one-shot fetch of prior messages for the
// conversation. The returned slice must be oldest-first; normalizing
// whatever order the endpoint uses is the loader's job.
type HistoryLoader interface {
	Load(ctx context.Context, token string) ([]Message, error)
}

// Session owns one conversation for its whole lifetime: it connects the
// transport, reconciles the history fetch against the live stream, and
// exposes the merged transcript. The transport connection is owned by the
// session and released by Close on every exit path.
type Session struct {
	selfID    string
	token     string
	store     *Store
	transport Transport
	history   HistoryLoader
	logger    *slog.Logger

	mu      sync.Mutex
	state   SessionState
	updates chan struct{}
}

type SessionOption func(*Session)

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session for the authenticated user identified by
// selfID. The token is the bearer credential used by both the transport
// and the history loader.
func NewSession(selfID, token string, transport Transport, history HistoryLoader, opts ...SessionOption) *Session {
	s := &Session{
		selfID:    selfID,
		token:     token,
		store:     NewStore(),
		transport: transport,
		history:   history,
		logger:    slog.Default(),
		state:     StateEmpty,
		updates:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the transport, loads history, and brings the session
// live. The transport is dialed before the history fetch so that push
// events arriving during the fetch are buffered by the transport and
// merged right after the history merge; deduplication by ID absorbs any
// overlap between the two sources.
//
// If the history fetch fails the session still goes live with an empty
// transcript and Start returns an error wrapping ErrHistoryLoad, so the
// caller can offer a manual retry. A transport failure leaves the session
// closed and returns an error wrapping ErrTransport.
func (s *Session) Start(ctx context.Context) error {
	if s.selfID == "" || s.token == "" {
		return ErrUnauthenticated
	}

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateLoading, StateLive:
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.state = StateLoading
	s.mu.Unlock()

	if err := s.transport.Dial(ctx, s.token); err != nil {
		s.close()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	msgs, herr := s.history.Load(ctx, s.token)

	s.mu.Lock()
	if s.state != StateLoading {
		// Closed while the fetch was in flight; discard the stale result.
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if herr == nil {
		s.store.Merge(msgs...)
	}
	s.state = StateLive
	s.mu.Unlock()

	s.notify()
	go s.loop()

	if herr != nil {
		s.logger.Error("history load failed, continuing live-only", slog.String("err", herr.Error()))
		return fmt.Errorf("%w: %v", ErrHistoryLoad, herr)
	}
	return nil
}

func (s *Session) loop() {
	for m := range s.transport.Messages() {
		s.store.Merge(m)
		s.notify()
	}
	s.logger.Debug("push stream ended")
}

// Compose validates and sends a message. Empty or whitespace-only input is
// rejected locally without touching the network. The message does not
// appear in the transcript until the server echoes it back on the push
// stream; there is no optimistic local insert.
func (s *Session) Compose(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateClosed {
		return ErrSessionClosed
	}
	if state != StateLive && state != StateLoading {
		return ErrSessionStarted
	}
	if err := s.transport.Send(text); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Snapshot returns the current chronological transcript.
func (s *Session) Snapshot() []Message {
	return s.store.Snapshot()
}

// Updates signals, coalesced, whenever the transcript changes.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// SelfID returns the authenticated user's identifier, used to classify
// messages as self-sent or peer-sent.
func (s *Session) SelfID() string {
	return s.selfID
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the session down and releases the transport. It is safe to
// call at any point in the lifecycle, including while the history fetch is
// still in flight; a result arriving after Close is discarded.
func (s *Session) Close() error {
	return s.close()
}

func (s *Session) close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()
	return s.transport.Close()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
