// Package socket is the live push stream connector. It owns exactly one
// websocket connection per conversation session, authenticated with the
// bearer credential at dial time. Connecting is a guarded transition:
// dialing an already-connected conn fails instead of leaking a second
// connection.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairloop/pairlink/pkg/chat"
	"github.com/pairloop/pairlink/pkg/identity"
	"github.com/sethvargo/go-retry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed between pings from the server before the connection is
	// considered dead.
	pongWait = 60 * time.Second

	// Maximum message size allowed from the server.
	maxMessageSize = 4096

	// Inbound messages buffered while the session is still merging
	// history. The read pump blocks when the buffer is full, so nothing
	// is dropped.
	recvBuffer = 256
)

// Inbound and outbound event names on the push channel.
const (
	EventReceiveMessage = "receive-message"
	EventSendMessage    = "send-message"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendPayload struct {
	Text string `json:"text"`
}

// ConnState is the connector's lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// Conn is a single-use client connection to the push stream. A Conn that
// has been closed cannot be redialed; create a new one.
type Conn struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu          sync.Mutex
	state       ConnState
	ws          *websocket.Conn
	pumpStarted bool

	recv chan chat.Message
	out  chan envelope
	done chan struct{}
}

type ConnOption func(*Conn)

func WithLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) {
		c.logger = logger
	}
}

func WithDialer(dialer *websocket.Dialer) ConnOption {
	return func(c *Conn) {
		c.dialer = dialer
	}
}

// NewConn creates a connector for the given websocket URL (ws:// or
// wss://). Nothing is dialed until Dial is called.
func NewConn(url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: slog.Default(),
		recv:   make(chan chat.Message, recvBuffer),
		out:    make(chan envelope),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial establishes the connection, authenticating with the bearer token.
// Calling Dial while the conn is connecting or connected returns
// chat.ErrAlreadyConnected; the existing connection stays untouched.
func (c *Conn) Dial(ctx context.Context, token string) error {
	if !identity.Usable(token) {
		return chat.ErrUnauthenticated
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return chat.ErrAlreadyConnected
	case StateClosed:
		c.mu.Unlock()
		return chat.ErrSessionClosed
	}
	c.state = StateConnecting
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return chat.ErrUnauthenticated
		}
		return fmt.Errorf("%w: dial %s: %v", chat.ErrTransport, c.url, err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Closed while the dial was in flight.
		c.mu.Unlock()
		ws.Close()
		return chat.ErrSessionClosed
	}
	c.ws = ws
	c.state = StateConnected
	c.pumpStarted = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	return nil
}

// DialWithRetry dials with bounded exponential backoff. Authentication
// failures are not retried.
func (c *Conn) DialWithRetry(ctx context.Context, token string, attempts uint64, base time.Duration) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.Dial(ctx, token)
		if err == nil || err == chat.ErrUnauthenticated || err == chat.ErrAlreadyConnected || err == chat.ErrSessionClosed {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Messages returns the inbound message channel. Messages are delivered in
// arrival order, which is not guaranteed to match chronological order;
// final ordering is the store's job. The channel is closed when the
// connection ends.
func (c *Conn) Messages() <-chan chat.Message {
	return c.recv
}

// Send emits a send-message event, fire and forget. The sent message
// becomes visible only when the server echoes it back on the push stream.
func (c *Conn) Send(text string) error {
	env := envelope{Event: EventSendMessage}
	data, err := json.Marshal(sendPayload{Text: text})
	if err != nil {
		return err
	}
	env.Data = data

	select {
	case c.out <- env:
		return nil
	case <-c.done:
		return chat.ErrSessionClosed
	}
}

// State returns the current connector state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the connection. It is idempotent and must be called on
// session teardown; a leaked connection keeps delivering events into a
// dead session. The close frame is emitted by the write pump, which owns
// all writes to the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	ws := c.ws
	pumped := c.pumpStarted
	c.mu.Unlock()

	close(c.done)

	if !pumped {
		// No pumps running: nothing else touches ws or recv.
		if ws != nil {
			ws.Close()
		}
		close(c.recv)
	}
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		close(c.recv)
		c.logger.Debug("exited read pump")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(appData string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			select {
			case <-c.done:
			default:
				c.logger.Error(fmt.Sprintf("ReadMessage: %v", err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Error(fmt.Sprintf("decode envelope: %v", err))
			continue
		}
		if env.Event != EventReceiveMessage {
			c.logger.Debug("ignoring event", slog.String("event", env.Event))
			continue
		}

		msg, err := chat.ParseMessage(env.Data)
		if err != nil {
			c.logger.Error(fmt.Sprintf("drop malformed message: %v", err))
			continue
		}

		select {
		case c.recv <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump is the only goroutine allowed to write to the connection.
// On shutdown it performs the close handshake before releasing ws, so
// Close never races an in-flight Send.
func (c *Conn) writePump() {
	defer func() {
		c.ws.Close()
		c.logger.Debug("exited write pump")
	}()

	for {
		select {
		case env := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Error(fmt.Sprintf("WriteJSON: %v", err))
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
