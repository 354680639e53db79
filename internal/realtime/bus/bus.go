// Package bus is the in-process notification registry: it maps an identity
// to the set of its live connections (the identity's "room") and delivers
// targeted events to every connection currently registered there.
//
// Delivery is at-most-once and fire-and-forget. Publishing to an empty room
// is a silent no-op; nothing is queued or persisted, and the caller gets no
// acknowledgment. The registry is strictly single-process: a second server
// instance holds an independent registry and sees none of this one's rooms.
package bus

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/fieldops/livetrack/internal/api/metrics"
	"github.com/fieldops/livetrack/internal/core/domain"
)

// Conn is a live transport channel the bus can deliver to. Send must be
// non-blocking best-effort: a slow consumer drops the event rather than
// stalling the publisher.
type Conn interface {
	Send(kind domain.EventKind, payload any) error
}

// Bus holds the room map. All three operations serialize on one mutex; no
// other component reads or writes the map.
type Bus struct {
	mu      sync.Mutex
	rooms   map[int64]map[Conn]struct{}
	members map[Conn]int64
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return &Bus{
		rooms:   make(map[int64]map[Conn]struct{}),
		members: make(map[Conn]int64),
		log:     log.With().Str("module", "bus").Logger(),
	}
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the process-wide bus, creating it on first use. The
// sync.Once guard guarantees concurrent first-access from multiple request
// contexts never yields two independent registries.
func Default(log zerolog.Logger) *Bus {
	defaultOnce.Do(func() {
		defaultBus = New(log)
	})
	return defaultBus
}

// Register adds c to identity's room. Idempotent: registering the same
// connection twice leaves a single membership. A connection re-registering
// under a different identity moves rooms.
func (b *Bus) Register(c Conn, identity int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, tracked := b.members[c]
	if tracked {
		if prev == identity {
			return
		}
		b.removeLocked(c, prev)
	}

	room, ok := b.rooms[identity]
	if !ok {
		room = make(map[Conn]struct{})
		b.rooms[identity] = room
	}
	room[c] = struct{}{}
	b.members[c] = identity

	// A room move is still one tracked connection; the gauge counts
	// connections, not registrations.
	if !tracked {
		metrics.BusConnections.Inc()
	}
	b.log.Debug().Int64("identity", identity).Int("room_size", len(room)).Msg("connection registered")
}

// Unregister removes c from whatever room it belongs to. No-op when the
// connection was never registered. Called from the transport's close path,
// including abrupt closes.
func (b *Bus) Unregister(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	identity, ok := b.members[c]
	if !ok {
		return
	}
	b.removeLocked(c, identity)
	metrics.BusConnections.Dec()
	b.log.Debug().Int64("identity", identity).Msg("connection unregistered")
}

func (b *Bus) removeLocked(c Conn, identity int64) {
	delete(b.members, c)
	if room, ok := b.rooms[identity]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(b.rooms, identity)
		}
	}
}

// Publish delivers payload to every connection currently in identity's
// room. Best-effort: send failures are counted and logged, never surfaced.
func (b *Bus) Publish(identity int64, kind domain.EventKind, payload any) {
	b.mu.Lock()
	room := b.rooms[identity]
	conns := make([]Conn, 0, len(room))
	for c := range room {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	if len(conns) == 0 {
		// Accepted delivery gap, not an error.
		b.log.Debug().Int64("identity", identity).Str("kind", string(kind)).Msg("publish to empty room")
		metrics.BusPublishTotal.WithLabelValues(string(kind), "empty_room").Inc()
		return
	}

	delivered := 0
	for _, c := range conns {
		if err := c.Send(kind, payload); err != nil {
			b.log.Debug().Err(err).Int64("identity", identity).Msg("send failed, connection will be pruned on close")
			continue
		}
		delivered++
	}
	metrics.BusPublishTotal.WithLabelValues(string(kind), "delivered").Add(float64(delivered))
	b.log.Debug().
		Int64("identity", identity).
		Str("kind", string(kind)).
		Int("delivered", delivered).
		Int("room_size", len(conns)).
		Msg("event published")
}

// RoomSize reports how many connections are registered under identity.
func (b *Bus) RoomSize(identity int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[identity])
}
