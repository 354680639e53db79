package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
	"github.com/fieldops/livetrack/internal/realtime/bus"
)

type stubSnapshotSvc struct {
	samples []*domain.LocationSample
}

func (s *stubSnapshotSvc) Ingest(_ context.Context, _ ports.IngestInput) error { return nil }

func (s *stubSnapshotSvc) Snapshot(_ context.Context, limit int) ([]*domain.LocationSample, error) {
	if len(s.samples) > limit {
		return s.samples[:limit], nil
	}
	return s.samples, nil
}

func newTestServer(t *testing.T, svc *stubSnapshotSvc, registry *bus.Bus) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(svc, registry, 50*time.Millisecond, 100, zerolog.Nop())

	e := echo.New()
	e.GET("/v1/stream", srv.Handle)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Read(ctx, ws, out); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestStream_FirstMessageIsFullSnapshot(t *testing.T) {
	svc := &stubSnapshotSvc{samples: []*domain.LocationSample{{
		Identity:  7,
		Lat:       13.75,
		Lng:       100.50,
		Source:    domain.SourceDevice,
		UpdatedAt: time.Now().UTC(),
	}}}
	registry := bus.New(zerolog.Nop())
	_, ts := newTestServer(t, svc, registry)

	ws := dial(t, ts)
	defer ws.Close(websocket.StatusNormalClosure, "")

	var msg snapshotMessage
	readJSON(t, ws, &msg)

	if msg.Type != "tech_locations" {
		t.Fatalf("expected tech_locations frame, got %q", msg.Type)
	}
	if len(msg.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(msg.Items))
	}
	item := msg.Items[0]
	if item.Identity != 7 || item.Lat != 13.75 || item.Lng != 100.50 {
		t.Errorf("unexpected snapshot item: %+v", item)
	}
	if item.Source != "device" {
		t.Errorf("unexpected source: %q", item.Source)
	}
}

func TestStream_EmptySnapshotIsEmitted(t *testing.T) {
	registry := bus.New(zerolog.Nop())
	_, ts := newTestServer(t, &stubSnapshotSvc{}, registry)

	ws := dial(t, ts)
	defer ws.Close(websocket.StatusNormalClosure, "")

	var msg snapshotMessage
	readJSON(t, ws, &msg)
	if msg.Type != "tech_locations" || len(msg.Items) != 0 {
		t.Fatalf("expected empty snapshot frame, got %+v", msg)
	}
}

func TestStream_RegisterThenPublishReachesConnection(t *testing.T) {
	registry := bus.New(zerolog.Nop())
	_, ts := newTestServer(t, &stubSnapshotSvc{}, registry)

	ws := dial(t, ts)
	defer ws.Close(websocket.StatusNormalClosure, "")

	// Drain the immediate snapshot first.
	var snap snapshotMessage
	readJSON(t, ws, &snap)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, registerMessage{Event: domain.EventRegister, Identity: 7}); err != nil {
		t.Fatalf("register: %v", err)
	}

	waitFor(t, func() bool { return registry.RoomSize(7) == 1 })

	registry.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{
		BookingID:      42,
		OrderCode:      "ORD-0042",
		NewStatusLabel: "completed",
	})

	// The interval snapshots interleave with the push; scan until the
	// statusUpdate envelope arrives.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var raw map[string]any
		readJSON(t, ws, &raw)
		if raw["event"] == string(domain.EventStatusUpdate) {
			payload := raw["payload"].(map[string]any)
			if payload["bookingId"].(float64) != 42 {
				t.Fatalf("unexpected payload: %+v", payload)
			}
			if payload["newStatusLabel"].(string) != "completed" {
				t.Fatalf("unexpected label: %+v", payload)
			}
			return
		}
	}
	t.Fatal("statusUpdate never arrived")
}

func TestStream_DisconnectCancelsLoopAndLeavesRoom(t *testing.T) {
	registry := bus.New(zerolog.Nop())
	srv, ts := newTestServer(t, &stubSnapshotSvc{}, registry)

	ws := dial(t, ts)

	var snap snapshotMessage
	readJSON(t, ws, &snap)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, registerMessage{Event: domain.EventRegister, Identity: 7}); err != nil {
		t.Fatalf("register: %v", err)
	}
	waitFor(t, func() bool { return srv.ActiveConnections() == 1 && registry.RoomSize(7) == 1 })

	ws.Close(websocket.StatusNormalClosure, "")

	waitFor(t, func() bool { return srv.ActiveConnections() == 0 })
	waitFor(t, func() bool { return registry.RoomSize(7) == 0 })

	// A publish after teardown is a silent no-op.
	registry.Publish(7, domain.EventStatusUpdate, domain.StatusEvent{BookingID: 42})
}

func TestStream_UnknownInboundEventIsDropped(t *testing.T) {
	registry := bus.New(zerolog.Nop())
	_, ts := newTestServer(t, &stubSnapshotSvc{}, registry)

	ws := dial(t, ts)
	defer ws.Close(websocket.StatusNormalClosure, "")

	var snap snapshotMessage
	readJSON(t, ws, &snap)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, map[string]any{"event": "subscribe", "identity": 7}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Connection stays alive and keeps streaming snapshots.
	readJSON(t, ws, &snap)
	if registry.RoomSize(7) != 0 {
		t.Errorf("unknown event must not register the connection")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
