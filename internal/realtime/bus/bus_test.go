package bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/fieldops/livetrack/internal/api/metrics"
	"github.com/fieldops/livetrack/internal/core/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	sendErr  error
	received []domain.EventKind
	payloads []any
}

func (c *fakeConn) Send(kind domain.EventKind, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.received = append(c.received, kind)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func TestBus_PublishReachesAllRoomMembers(t *testing.T) {
	b := New(zerolog.Nop())
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	b.Register(c1, 7)
	b.Register(c2, 7)

	event := domain.StatusEvent{BookingID: 42, OrderCode: "ORD-0042", NewStatusLabel: "completed"}
	b.Publish(7, domain.EventStatusUpdate, event)

	for i, c := range []*fakeConn{c1, c2} {
		if c.count() != 1 {
			t.Fatalf("conn %d: expected 1 delivery, got %d", i, c.count())
		}
		if c.payloads[0].(domain.StatusEvent).BookingID != 42 {
			t.Errorf("conn %d: unexpected payload %+v", i, c.payloads[0])
		}
	}
}

func TestBus_PublishIsTargeted(t *testing.T) {
	b := New(zerolog.Nop())
	c7 := &fakeConn{}
	c8 := &fakeConn{}
	b.Register(c7, 7)
	b.Register(c8, 8)

	b.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 42})

	if c7.count() != 1 {
		t.Errorf("identity 7 expected delivery, got %d", c7.count())
	}
	if c8.count() != 0 {
		t.Errorf("identity 8 expected nothing, got %d", c8.count())
	}
}

func TestBus_PublishToEmptyRoomIsSilentNoOp(t *testing.T) {
	b := New(zerolog.Nop())
	// Must not panic, error, or queue anything.
	b.Publish(99, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 1})
}

func TestBus_RegisterIsIdempotent(t *testing.T) {
	b := New(zerolog.Nop())
	c := &fakeConn{}
	b.Register(c, 7)
	b.Register(c, 7)
	b.Register(c, 7)

	if got := b.RoomSize(7); got != 1 {
		t.Fatalf("expected room size 1 after repeated registers, got %d", got)
	}

	b.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 42})
	if c.count() != 1 {
		t.Errorf("expected single delivery, got %d", c.count())
	}
}

func TestBus_RegisterMovesConnectionBetweenRooms(t *testing.T) {
	b := New(zerolog.Nop())
	c := &fakeConn{}
	b.Register(c, 7)
	b.Register(c, 8)

	if got := b.RoomSize(7); got != 0 {
		t.Errorf("expected identity 7 room emptied, got %d", got)
	}
	if got := b.RoomSize(8); got != 1 {
		t.Errorf("expected identity 8 room size 1, got %d", got)
	}
}

func TestBus_RoomMoveKeepsConnectionGaugeBalanced(t *testing.T) {
	b := New(zerolog.Nop())
	c := &fakeConn{}
	base := testutil.ToFloat64(metrics.BusConnections)

	b.Register(c, 7)
	b.Register(c, 8)
	b.Register(c, 9)

	if got := testutil.ToFloat64(metrics.BusConnections); got != base+1 {
		t.Fatalf("expected gauge %v after room moves, got %v", base+1, got)
	}

	b.Unregister(c)
	if got := testutil.ToFloat64(metrics.BusConnections); got != base {
		t.Fatalf("expected gauge back to %v after unregister, got %v", base, got)
	}
}

func TestBus_UnregisteredConnectionReceivesNothing(t *testing.T) {
	b := New(zerolog.Nop())
	c := &fakeConn{}
	b.Register(c, 7)
	b.Unregister(c)

	b.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 42})

	if c.count() != 0 {
		t.Errorf("expected no delivery after unregister, got %d", c.count())
	}
	if got := b.RoomSize(7); got != 0 {
		t.Errorf("expected empty room, got %d", got)
	}
}

func TestBus_UnregisterUnknownConnectionIsNoOp(t *testing.T) {
	b := New(zerolog.Nop())
	b.Unregister(&fakeConn{})
}

func TestBus_SendFailureDoesNotStopFanout(t *testing.T) {
	b := New(zerolog.Nop())
	bad := &fakeConn{sendErr: errors.New("write on closed connection")}
	good := &fakeConn{}
	b.Register(bad, 7)
	b.Register(good, 7)

	b.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 42})

	if good.count() != 1 {
		t.Errorf("expected healthy connection to receive despite sibling failure")
	}
}

func TestBus_ConcurrentOperations(t *testing.T) {
	b := New(zerolog.Nop())
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(identity int64) {
			defer wg.Done()
			c := &fakeConn{}
			b.Register(c, identity%4)
			b.Publish(identity%4, domain.EventStatusUpdate, domain.StatusEvent{BookingID: identity})
			b.Unregister(c)
		}(int64(i))
	}
	wg.Wait()

	for identity := int64(0); identity < 4; identity++ {
		if got := b.RoomSize(identity); got != 0 {
			t.Errorf("identity %d: expected drained room, got %d", identity, got)
		}
	}
}

func TestBus_DefaultIsSingleton(t *testing.T) {
	var wg sync.WaitGroup
	instances := make([]*Bus, 8)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = Default(zerolog.Nop())
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(instances); i++ {
		if instances[i] != instances[0] {
			t.Fatalf("Default returned distinct registries")
		}
	}
}
