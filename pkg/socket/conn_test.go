package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairloop/pairlink/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer is a minimal push-channel server: it records inbound frames
// and lets tests push envelopes to the connected client.
type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	ws       *websocket.Conn
	inbound  []envelope
	gotAuth  string
	accepted chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{accepted: make(chan struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.gotAuth = r.Header.Get("Authorization")
		s.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.ws = ws
		s.mu.Unlock()
		close(s.accepted)

		for {
			var env envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.inbound = append(s.inbound, env)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *testServer) wsURL() string {
	return strings.Replace(s.URL, "http://", "ws://", 1)
}

func (s *testServer) push(t *testing.T, env envelope) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(t, s.ws, "no client connected")
	require.NoError(t, s.ws.WriteJSON(env))
}

func (s *testServer) pushRaw(t *testing.T, data string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.ws.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (s *testServer) received() []envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope, len(s.inbound))
	copy(out, s.inbound)
	return out
}

func (s *testServer) authHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotAuth
}

func receiveEnvelope(t *testing.T, id, sender string, at time.Time) envelope {
	t.Helper()
	data, err := json.Marshal(chat.Message{ID: id, Text: "hi", SenderID: sender, CreatedAt: at})
	require.NoError(t, err)
	return envelope{Event: EventReceiveMessage, Data: data}
}

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestDial(t *testing.T) {
	t.Run("authenticates with the bearer token", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		defer conn.Close()

		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted
		assert.Equal(t, "Bearer tok", server.authHeader())
		assert.Equal(t, StateConnected, conn.State())
	})

	t.Run("second dial is rejected, not duplicated", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		defer conn.Close()

		require.NoError(t, conn.Dial(context.Background(), "tok"))
		err := conn.Dial(context.Background(), "tok")
		assert.ErrorIs(t, err, chat.ErrAlreadyConnected)
	})

	t.Run("empty or placeholder token refuses to connect", func(t *testing.T) {
		conn := NewConn("ws://unused")
		for _, token := range []string{"", "null", "undefined"} {
			err := conn.Dial(context.Background(), token)
			assert.ErrorIs(t, err, chat.ErrUnauthenticated, "token %q", token)
		}
		assert.Equal(t, StateDisconnected, conn.State())
	})

	t.Run("dial after close is rejected", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		require.NoError(t, conn.Close())

		err := conn.Dial(context.Background(), "tok")
		assert.ErrorIs(t, err, chat.ErrSessionClosed)
	})

	t.Run("failed dial leaves the conn dialable", func(t *testing.T) {
		server := newTestServer(t)
		serverURL := server.wsURL()
		server.Close()

		conn := NewConn(serverURL)
		err := conn.Dial(context.Background(), "tok")
		require.ErrorIs(t, err, chat.ErrTransport)
		assert.Equal(t, StateDisconnected, conn.State())
	})
}

func TestDialWithRetry(t *testing.T) {
	t.Run("retries a failing handshake", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			ws.ReadMessage()
		}))
		defer server.Close()

		conn := NewConn(strings.Replace(server.URL, "http://", "ws://", 1))
		defer conn.Close()

		err := conn.DialWithRetry(context.Background(), "tok", 5, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry unauthorized", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer server.Close()

		conn := NewConn(strings.Replace(server.URL, "http://", "ws://", 1))
		err := conn.DialWithRetry(context.Background(), "tok", 5, time.Millisecond)
		require.ErrorIs(t, err, chat.ErrUnauthenticated)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestReceive(t *testing.T) {
	t.Run("delivers messages in arrival order", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		defer conn.Close()
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted

		server.push(t, receiveEnvelope(t, "m1", "U1", base))
		server.push(t, receiveEnvelope(t, "m2", "U2", base.Add(time.Minute)))

		var got []chat.Message
		for len(got) < 2 {
			select {
			case m := <-conn.Messages():
				got = append(got, m)
			case <-time.After(time.Second):
				t.Fatalf("timed out after %d messages", len(got))
			}
		}
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "m2", got[1].ID)
	})

	t.Run("drops malformed and foreign frames", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		defer conn.Close()
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted

		server.pushRaw(t, `not json at all`)
		server.pushRaw(t, `{"event":"typing","data":{}}`)
		server.pushRaw(t, `{"event":"receive-message","data":{"text":"no id"}}`)
		server.push(t, receiveEnvelope(t, "m1", "U1", base))

		select {
		case m := <-conn.Messages():
			assert.Equal(t, "m1", m.ID, "only the valid message comes through")
		case <-time.After(time.Second):
			t.Fatal("valid message never delivered")
		}
	})

	t.Run("channel closes when the server goes away", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		defer conn.Close()
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted

		server.mu.Lock()
		server.ws.Close()
		server.mu.Unlock()

		select {
		case _, ok := <-conn.Messages():
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("message channel never closed")
		}
	})
}

func TestSend(t *testing.T) {
	server := newTestServer(t)
	conn := NewConn(server.wsURL())
	defer conn.Close()
	require.NoError(t, conn.Dial(context.Background(), "tok"))
	<-server.accepted

	require.NoError(t, conn.Send("hello"))

	require.Eventually(t, func() bool {
		return len(server.received()) == 1
	}, time.Second, 10*time.Millisecond)

	env := server.received()[0]
	assert.Equal(t, EventSendMessage, env.Event)
	var payload sendPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "hello", payload.Text)
}

func TestClose(t *testing.T) {
	t.Run("close is idempotent", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted

		require.NoError(t, conn.Close())
		require.NoError(t, conn.Close())
		assert.Equal(t, StateClosed, conn.State())
	})

	t.Run("send after close fails", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		require.NoError(t, conn.Close())

		assert.ErrorIs(t, conn.Send("hello"), chat.ErrSessionClosed)
	})

	t.Run("close races concurrent sends safely", func(t *testing.T) {
		server := newTestServer(t)
		conn := NewConn(server.wsURL())
		require.NoError(t, conn.Dial(context.Background(), "tok"))
		<-server.accepted

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					if err := conn.Send("racing"); err != nil {
						assert.ErrorIs(t, err, chat.ErrSessionClosed)
						return
					}
				}
			}()
		}

		require.NoError(t, conn.Close())
		wg.Wait()

		assert.Equal(t, StateClosed, conn.State())
		select {
		case <-conn.Messages():
		case <-time.After(time.Second):
			t.Fatal("message channel never closed")
		}
	})

	t.Run("close without dial closes the message channel", func(t *testing.T) {
		conn := NewConn("ws://unused")
		require.NoError(t, conn.Close())

		_, ok := <-conn.Messages()
		assert.False(t, ok)
	})
}
