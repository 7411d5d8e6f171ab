// Package hub manages the live websocket connections of the push channel.
// It keeps a registry of connections keyed by user ID and runs a single
// event loop, so packet handlers never race each other.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairloop/pairlink/internal/metrics"
)

type HubState int

const (
	StateClosed HubState = iota
	StateClosing
	StateRunning
)

type Hub struct {
	conns map[string][]*Conn

	connectChan    chan *Conn
	disconnectChan chan *Conn
	// in carries inbound packets to the event loop.
	in chan *InPacket
	// exit signals the event loop to stop.
	exit chan struct{}

	logger   *slog.Logger
	upgrader websocket.Upgrader

	onPacket     func(context.Context, *Hub, *InPacket)
	onConnect    func(*Conn)
	onDisconnect func(*Conn)

	baseCtx      context.Context
	wg           sync.WaitGroup
	closeTimeout time.Duration

	state HubState
	mu    sync.RWMutex
}

type HubOption func(*Hub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithBaseContext(ctx context.Context) HubOption {
	return func(h *Hub) {
		h.baseCtx = ctx
	}
}

func New(opts ...HubOption) *Hub {
	h := &Hub{
		conns:          make(map[string][]*Conn),
		connectChan:    make(chan *Conn),
		disconnectChan: make(chan *Conn),
		in:             make(chan *InPacket),
		exit:           make(chan struct{}),
		logger:         slog.Default(),
		baseCtx:        context.Background(),
		closeTimeout:   10 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnPacket registers the handler invoked once per inbound packet on the
// hub's event loop. Handlers must be fast and non-blocking.
func (h *Hub) OnPacket(f func(context.Context, *Hub, *InPacket)) {
	h.onPacket = f
}

func (h *Hub) OnConnect(f func(*Conn)) {
	h.onConnect = f
}

func (h *Hub) OnDisconnect(f func(*Conn)) {
	h.onDisconnect = f
}

func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer func() {
			h.wg.Done()
			h.logger.Info("hub stopped")
		}()
		h.run()
	}()
	h.logger.Info("hub started")
}

func (h *Hub) run() {
	h.mu.Lock()
	h.state = StateRunning
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.state = StateClosed
		h.mu.Unlock()
	}()

	for {
		select {
		case <-h.exit:
			return
		case c := <-h.connectChan:
			h.connect(c)
		case c := <-h.disconnectChan:
			h.disconnect(c)
		case packet := <-h.in:
			if h.onPacket != nil {
				h.onPacket(h.baseCtx, h, packet)
			}
		}
	}
}

// Close disconnects every connection, stops the event loop, and waits for
// the cleanup to finish, bounded by the close timeout.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return
	}
	h.state = StateClosing
	for _, conns := range h.conns {
		for i := len(conns) - 1; i >= 0; i-- {
			h.remove(conns[i])
		}
	}
	h.mu.Unlock()

	close(h.exit)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(h.closeTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		h.logger.Info("hub closed with timeout")
	case <-done:
		h.logger.Info("hub closed gracefully")
	}
}

// ServeWS upgrades the request and registers the connection under the
// authenticated user. Auth happens before this is called.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, coupleID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("err", err.Error()))
		return
	}
	conn := &Conn{
		conn:     ws,
		userID:   userID,
		coupleID: coupleID,
		in:       make(chan *Envelope, 16),
		hub:      h,
		ticker:   time.NewTicker(pingPeriod),
		logger:   h.logger,
	}
	h.Connect(conn)
}

func (h *Hub) Connect(c *Conn) {
	select {
	case h.connectChan <- c:
	case <-h.exit:
	}
}

func (h *Hub) Disconnect(c *Conn) {
	select {
	case h.disconnectChan <- c:
	case <-h.exit:
	}
}

func (h *Hub) pass(p *InPacket) {
	select {
	case h.in <- p:
	case <-h.exit:
	}
}

// SendToUsers delivers an envelope to every connection of the given
// users. A connection whose send buffer is full is disconnected rather
// than allowed to stall the loop.
func (h *Hub) SendToUsers(env *Envelope, userIDs ...string) {
	h.mu.RLock()
	var targets []*Conn
	for _, id := range userIDs {
		targets = append(targets, h.conns[id]...)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.pass() <- env:
			metrics.MessagesDelivered.Inc()
		default:
			h.disconnect(c)
		}
	}
}

func (h *Hub) connect(c *Conn) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()

	h.mu.Lock()
	h.conns[c.userID] = append(h.conns[c.userID], c)
	h.mu.Unlock()

	metrics.ActiveConnections.Inc()
	h.logger.Info("new connection", slog.String("user.id", c.userID))
	if h.onConnect != nil {
		h.onConnect(c)
	}
}

func (h *Hub) disconnect(c *Conn) {
	h.mu.Lock()
	ok := h.remove(c)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.onDisconnect != nil {
		h.onDisconnect(c)
	}
}

// remove deregisters and closes the connection. Callers hold the lock.
func (h *Hub) remove(c *Conn) bool {
	conns, ok := h.conns[c.userID]
	if !ok {
		return false
	}
	idx := slices.Index(conns, c)
	if idx == -1 {
		return false
	}
	conns = slices.Delete(conns, idx, idx+1)
	if len(conns) == 0 {
		delete(h.conns, c.userID)
	} else {
		h.conns[c.userID] = conns
	}
	c.close()
	metrics.ActiveConnections.Dec()
	return true
}
