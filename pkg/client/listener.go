package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// StatusEvent mirrors the statusUpdate push payload.
type StatusEvent struct {
	BookingID      int64  `json:"bookingId"`
	OrderCode      string `json:"orderCode"`
	NewStatusLabel string `json:"newStatusLabel"`
}

// StatusHandler receives one statusUpdate event.
type StatusHandler func(StatusEvent)

// ConnManager owns the single live connection a client process keeps to the
// stream endpoint. The connection is dialed lazily on first use, exactly
// once, and outlives every listener that borrows it; an explicit managed
// object rather than a hidden module-level global.
type ConnManager struct {
	url      string
	token    string
	identity int64
	log      zerolog.Logger

	once sync.Once
	mu   sync.Mutex
	conn *sharedConn
	err  error
}

func NewConnManager(url, token string, identity int64, log zerolog.Logger) *ConnManager {
	return &ConnManager{
		url:      url,
		token:    token,
		identity: identity,
		log:      log.With().Str("module", "listener").Logger(),
	}
}

// shared returns the process-wide connection, dialing and registering on
// first call. Concurrent first calls dial exactly once.
func (m *ConnManager) shared(ctx context.Context) (*sharedConn, error) {
	m.once.Do(func() {
		conn, err := dial(ctx, m.url+"?token="+m.token, m.identity, m.log)
		m.mu.Lock()
		m.conn, m.err = conn, err
		m.mu.Unlock()
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn, m.err
}

// Listen attaches handler to statusUpdate events and returns a detach func.
// Detaching removes only this handler; the shared connection stays open for
// other listeners in the process.
func (m *ConnManager) Listen(ctx context.Context, handler StatusHandler) (func(), error) {
	conn, err := m.shared(ctx)
	if err != nil {
		return nil, err
	}
	id := conn.attach(handler)
	return func() { conn.detach(id) }, nil
}

// Close tears down the shared connection. Intended for process shutdown;
// safe to call concurrently with Listen.
func (m *ConnManager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		conn.close()
	}
}

type sharedConn struct {
	ws  *websocket.Conn
	log zerolog.Logger

	mu       sync.Mutex
	handlers map[int]StatusHandler
	nextID   int
	closed   bool
}

type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func dial(ctx context.Context, url string, identity int64, log zerolog.Logger) (*sharedConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}

	// Registration claims the identity's room; there is no ack.
	regCtx, regCancel := context.WithTimeout(ctx, 10*time.Second)
	err = wsjson.Write(regCtx, ws, map[string]any{"event": "register", "identity": identity})
	regCancel()
	if err != nil {
		_ = ws.Close(websocket.StatusInternalError, "register failed")
		return nil, err
	}

	c := &sharedConn{
		ws:       ws,
		log:      log,
		handlers: make(map[int]StatusHandler),
	}
	go c.readLoop()
	return c, nil
}

func (c *sharedConn) attach(h StatusHandler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return id
}

func (c *sharedConn) detach(id int) {
	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()
}

func (c *sharedConn) close() {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()
	if !closed {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}
}

// readLoop dispatches inbound frames to attached handlers. Snapshot frames
// (type "tech_locations") and unknown shapes are skipped; only the closed
// statusUpdate kind is dispatched.
func (c *sharedConn) readLoop() {
	for {
		var frame inboundFrame
		if err := wsjson.Read(context.Background(), c.ws, &frame); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.Warn().Err(err).Msg("live connection lost")
			}
			return
		}
		if frame.Event != "statusUpdate" {
			continue
		}

		var event StatusEvent
		if err := json.Unmarshal(frame.Payload, &event); err != nil {
			c.log.Warn().Err(err).Msg("malformed statusUpdate payload dropped")
			continue
		}

		c.mu.Lock()
		handlers := make([]StatusHandler, 0, len(c.handlers))
		for _, h := range c.handlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(event)
		}
	}
}
