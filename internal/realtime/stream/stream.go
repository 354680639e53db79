// Package stream serves the long-lived snapshot channel: each websocket
// connection receives the full table of latest technician positions
// immediately on connect and again on a fixed interval until it
// disconnects. Whole-snapshot polling, not diffing; bandwidth is traded for
// simplicity and zero rows is a valid snapshot.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fieldops/livetrack/internal/api/metrics"
	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
	"github.com/fieldops/livetrack/internal/realtime/bus"
)

const (
	DefaultInterval = 4 * time.Second
	DefaultLimit    = 100

	// Outbound buffer per connection. A consumer that falls further behind
	// than this drops events instead of stalling the publisher.
	sendBuffer = 16
)

// snapshotItem is one row of the broadcast snapshot.
type snapshotItem struct {
	Identity  int64   `json:"identity"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UpdatedAt string  `json:"updated_at"`
	Source    string  `json:"source"`
}

type snapshotMessage struct {
	Type  string         `json:"type"`
	Items []snapshotItem `json:"items"`
}

// pushMessage is the envelope for targeted events (bus → listener).
type pushMessage struct {
	Event   domain.EventKind `json:"event"`
	Payload any              `json:"payload"`
}

// registerMessage is the only inbound message kind a client may send.
type registerMessage struct {
	Event    domain.EventKind `json:"event"`
	Identity int64            `json:"identity"`
}

// Server owns every stream connection's broadcast loop. The cancel funcs
// live in an arena keyed by connection id so the disconnect path tears the
// loop down deterministically; an uncancelled loop would leak one ticker
// per connection for the life of the process.
type Server struct {
	svc      ports.LocationService
	registry *bus.Bus
	interval time.Duration
	limit    int
	log      zerolog.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewServer(svc ports.LocationService, registry *bus.Bus, interval time.Duration, limit int, log zerolog.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Server{
		svc:      svc,
		registry: registry,
		interval: interval,
		limit:    limit,
		log:      log.With().Str("module", "stream").Logger(),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Handle upgrades GET /v1/stream to a websocket and runs the connection to
// completion. The echo route must be mounted behind the auth middleware.
func (s *Server) Handle(c echo.Context) error {
	ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(c.Request().Context())
	s.track(id, cancel)

	conn := &streamConn{ws: ws, out: make(chan any, sendBuffer)}

	metrics.StreamConnections.Inc()
	s.log.Info().Str("conn_id", id.String()).Msg("stream connected")

	defer func() {
		// Both halves of the teardown contract: stop the ticker loop and
		// leave the room, even on an abrupt close.
		s.untrack(id)
		cancel()
		s.registry.Unregister(conn)
		conn.close()
		_ = ws.Close(websocket.StatusNormalClosure, "")
		metrics.StreamConnections.Dec()
		s.log.Info().Str("conn_id", id.String()).Uint64("dropped", conn.droppedCount()).Msg("stream disconnected")
	}()

	go s.readLoop(ctx, cancel, conn)
	go s.broadcastLoop(ctx, conn, id)

	// Writer runs on the handler goroutine so the HTTP middleware chain
	// stays intact for the connection's lifetime.
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-conn.out:
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, ws, msg)
			writeCancel()
			if err != nil {
				s.log.Debug().Err(err).Str("conn_id", id.String()).Msg("write failed")
				return nil
			}
		}
	}
}

// readLoop consumes inbound messages. The only recognised shape is the
// register message; anything else is logged and dropped at the boundary.
// A read error means the transport is gone, which cancels the connection.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *streamConn) {
	defer cancel()
	for {
		var msg registerMessage
		if err := wsjson.Read(ctx, conn.ws, &msg); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.log.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		switch msg.Event {
		case domain.EventRegister:
			s.registry.Register(conn, msg.Identity)
		default:
			s.log.Warn().Str("event", string(msg.Event)).Msg("unrecognised inbound event dropped")
		}
	}
}

// broadcastLoop emits one snapshot immediately, then one per tick. Ticks
// run read-only idempotent queries, so an overlapping slow query is
// harmless and not suppressed.
func (s *Server) broadcastLoop(ctx context.Context, conn *streamConn, id uuid.UUID) {
	s.emitSnapshot(ctx, conn, id)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitSnapshot(ctx, conn, id)
		}
	}
}

func (s *Server) emitSnapshot(ctx context.Context, conn *streamConn, id uuid.UUID) {
	samples, err := s.svc.Snapshot(ctx, s.limit)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Str("conn_id", id.String()).Msg("snapshot query failed, will retry next tick")
		}
		return
	}

	items := make([]snapshotItem, 0, len(samples))
	for _, sample := range samples {
		items = append(items, snapshotItem{
			Identity:  sample.Identity,
			Lat:       sample.Lat,
			Lng:       sample.Lng,
			UpdatedAt: sample.UpdatedAt.UTC().Format(time.RFC3339),
			Source:    string(sample.Source),
		})
	}

	// Snapshot frames go out in their documented wire shape, not the push
	// envelope used for targeted events.
	conn.enqueue(snapshotMessage{Type: "tech_locations", Items: items})
	metrics.SnapshotsSentTotal.Inc()
}

func (s *Server) track(id uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
}

func (s *Server) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// ActiveConnections reports how many broadcast loops are currently tracked.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// Shutdown cancels every tracked connection loop.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}

var errConnClosed = errors.New("stream connection closed")

// streamConn adapts one websocket to the bus.Conn contract. Send enqueues
// without blocking; the handler goroutine performs the actual writes.
type streamConn struct {
	ws      *websocket.Conn
	out     chan any
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Send delivers a targeted event in the push envelope. Implements bus.Conn.
func (c *streamConn) Send(kind domain.EventKind, payload any) error {
	return c.enqueue(pushMessage{Event: kind, Payload: payload})
}

func (c *streamConn) enqueue(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.dropped++
		metrics.StreamDroppedTotal.Inc()
		return nil
	}
}

func (c *streamConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *streamConn) droppedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
