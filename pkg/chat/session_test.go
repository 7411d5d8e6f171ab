package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mu     sync.Mutex
	recv   chan Message
	sent   []string
	dialed bool
	closed bool

	dialErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{recv: make(chan Message, 16)}
}

func (t *mockTransport) Dial(ctx context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return t.dialErr
	}
	if t.dialed {
		return ErrAlreadyConnected
	}
	t.dialed = true
	return nil
}

func (t *mockTransport) Messages() <-chan Message {
	return t.recv
}

func (t *mockTransport) Send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrSessionClosed
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.recv)
	return nil
}

func (t *mockTransport) sentMessages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *mockTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// mockLoader serves a canned history, optionally blocking until released
// so tests can interleave teardown with an in-flight fetch.
type mockLoader struct {
	msgs    []Message
	err     error
	started chan struct{}
	release chan struct{}
}

func newMockLoader(msgs []Message, err error) *mockLoader {
	return &mockLoader{msgs: msgs, err: err}
}

func (l *mockLoader) blocking() *mockLoader {
	l.started = make(chan struct{})
	l.release = make(chan struct{})
	return l
}

func (l *mockLoader) Load(ctx context.Context, token string) ([]Message, error) {
	if l.started != nil {
		close(l.started)
		<-l.release
	}
	return l.msgs, l.err
}

var sessionBase = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestSessionStart(t *testing.T) {
	t.Run("history and live events converge", func(t *testing.T) {
		transport := newMockTransport()
		history := []Message{
			msgAt("m1", "U1", sessionBase),
			msgAt("m2", "U2", sessionBase.Add(time.Minute)),
		}
		loader := newMockLoader(history, nil)

		// a live event is already waiting before history resolves
		transport.recv <- msgAt("m3", "U1", sessionBase.Add(2*time.Minute))

		s := NewSession("U1", "token", transport, loader)
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, StateLive, s.State())

		require.Eventually(t, func() bool {
			return s.store.Len() == 3
		}, time.Second, 10*time.Millisecond)

		snapshot := s.Snapshot()
		assert.Equal(t, []string{"m1", "m2", "m3"},
			[]string{snapshot[0].ID, snapshot[1].ID, snapshot[2].ID})
		assertChronological(t, snapshot)
	})

	t.Run("live echo overlapping history is absorbed", func(t *testing.T) {
		transport := newMockTransport()
		m2 := msgAt("m2", "U1", sessionBase.Add(time.Minute))
		loader := newMockLoader([]Message{msgAt("m1", "U2", sessionBase), m2}, nil)

		transport.recv <- m2

		s := NewSession("U1", "token", transport, loader)
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))

		// give the loop a chance to drain the duplicate
		require.Eventually(t, func() bool {
			return s.store.Len() == 2
		}, time.Second, 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 2, s.store.Len())
	})

	t.Run("history failure falls back to live-only", func(t *testing.T) {
		transport := newMockTransport()
		loader := newMockLoader(nil, errors.New("boom"))

		s := NewSession("U1", "token", transport, loader)
		defer s.Close()
		err := s.Start(context.Background())
		require.ErrorIs(t, err, ErrHistoryLoad)
		assert.Equal(t, StateLive, s.State())

		transport.recv <- msgAt("m1", "U2", sessionBase)
		require.Eventually(t, func() bool {
			return s.store.Len() == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("transport failure closes the session", func(t *testing.T) {
		transport := newMockTransport()
		transport.dialErr = errors.New("refused")
		loader := newMockLoader(nil, nil)

		s := NewSession("U1", "token", transport, loader)
		err := s.Start(context.Background())
		require.ErrorIs(t, err, ErrTransport)
		assert.Equal(t, StateClosed, s.State())
	})

	t.Run("second start is rejected", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))

		err := s.Start(context.Background())
		assert.ErrorIs(t, err, ErrSessionStarted)
	})

	t.Run("missing identity blocks start", func(t *testing.T) {
		s := NewSession("", "", newMockTransport(), newMockLoader(nil, nil))
		err := s.Start(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("closed session cannot restart", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		require.NoError(t, s.Close())

		err := s.Start(context.Background())
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}

func TestSessionTeardown(t *testing.T) {
	t.Run("stale history result is discarded", func(t *testing.T) {
		transport := newMockTransport()
		loader := newMockLoader([]Message{msgAt("m1", "U1", sessionBase)}, nil).blocking()

		s := NewSession("U1", "token", transport, loader)

		startErr := make(chan error, 1)
		go func() {
			startErr <- s.Start(context.Background())
		}()

		<-loader.started
		require.NoError(t, s.Close())
		close(loader.release)

		require.ErrorIs(t, <-startErr, ErrSessionClosed)
		assert.Empty(t, s.Snapshot())
		assert.True(t, transport.isClosed())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		require.NoError(t, s.Start(context.Background()))

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		assert.True(t, transport.isClosed())
	})
}

func TestSessionCompose(t *testing.T) {
	t.Run("sends trimmed-nonempty input", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))

		require.NoError(t, s.Compose("hello"))
		assert.Equal(t, []string{"hello"}, transport.sentMessages())

		// no optimistic insert: the transcript stays empty until the echo
		assert.Empty(t, s.Snapshot())
	})

	t.Run("rejects empty input locally", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))

		assert.ErrorIs(t, s.Compose(""), ErrEmptyMessage)
		assert.ErrorIs(t, s.Compose("   \t\n"), ErrEmptyMessage)
		assert.Empty(t, transport.sentMessages())
	})

	t.Run("rejects after close", func(t *testing.T) {
		transport := newMockTransport()
		s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
		require.NoError(t, s.Start(context.Background()))
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Compose("hello"), ErrSessionClosed)
	})
}

func TestSessionUpdates(t *testing.T) {
	transport := newMockTransport()
	s := NewSession("U1", "token", transport, newMockLoader(nil, nil))
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	transport.recv <- msgAt("m1", "U2", sessionBase)

	select {
	case <-s.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal after a live message")
	}
}
