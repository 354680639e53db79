// Package client holds the two client-process leaves of the realtime
// pipeline: the geo sensor adapter that feeds position fixes to the ingest
// endpoint, and the notification listener that owns the process-wide live
// connection for targeted push events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fix is one position reading from the device sensor.
type Fix struct {
	Lat        float64
	Lng        float64
	AccuracyM  *float64
	CapturedAt time.Time
}

// FixResult carries either a fix or a sensor error. A sensor error is not
// fatal to the watch; the adapter logs it and keeps watching.
type FixResult struct {
	Fix Fix
	Err error
}

// PositionSource wraps a device's continuous position API. Watch streams
// results until ctx is cancelled; the returned release func must free the
// underlying sensor handle and is safe to call exactly once.
type PositionSource interface {
	Watch(ctx context.Context) (<-chan FixResult, func(), error)
}

// Ingester delivers one accepted fix upstream.
type Ingester interface {
	Ingest(ctx context.Context, fix Fix) error
}

// GeoSensor throttles a PositionSource and forwards accepted fixes to the
// ingest endpoint, one call per fix.
type GeoSensor struct {
	src         PositionSource
	ingest      Ingester
	minInterval time.Duration
	maxStale    time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewGeoSensor(src PositionSource, ingest Ingester, minInterval, maxStale time.Duration, log zerolog.Logger) *GeoSensor {
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}
	if maxStale <= 0 {
		maxStale = time.Minute
	}
	return &GeoSensor{
		src:         src,
		ingest:      ingest,
		minInterval: minInterval,
		maxStale:    maxStale,
		log:         log.With().Str("module", "geosensor").Logger(),
	}
}

// Start acquires the sensor watch and runs the forwarding loop until Stop.
// Calling Start on a running sensor is an error.
func (g *GeoSensor) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return fmt.Errorf("geosensor: already started")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	fixes, release, err := g.src.Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("geosensor: watch: %w", err)
	}

	g.cancel = cancel
	g.done = make(chan struct{})
	// The loop gets its own reference to done; Stop resets the field, so
	// the goroutine must never read it back through g.
	go g.run(watchCtx, fixes, release, g.done)
	return nil
}

// Stop cancels the watch and blocks until the sensor handle is released.
// Idempotent.
func (g *GeoSensor) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (g *GeoSensor) run(ctx context.Context, fixes <-chan FixResult, release func(), done chan struct{}) {
	// The handle is released on every exit path, including a source that
	// closes its channel on its own.
	defer release()
	defer close(done)

	var lastSent time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-fixes:
			if !ok {
				return
			}
			if res.Err != nil {
				g.log.Warn().Err(res.Err).Msg("sensor error, continuing watch")
				continue
			}
			fix := res.Fix
			if time.Since(fix.CapturedAt) > g.maxStale {
				g.log.Debug().Time("captured_at", fix.CapturedAt).Msg("stale fix dropped")
				continue
			}
			if time.Since(lastSent) < g.minInterval {
				continue
			}
			if err := g.ingest.Ingest(ctx, fix); err != nil {
				g.log.Warn().Err(err).Msg("ingest call failed")
				continue
			}
			lastSent = time.Now()
		}
	}
}

// HTTPIngester sends fixes to PUT /v1/location with a bearer token.
type HTTPIngester struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPIngester(baseURL, token string) *HTTPIngester {
	return &HTTPIngester{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type ingestBody struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
}

func (h *HTTPIngester) Ingest(ctx context.Context, fix Fix) error {
	body, err := json.Marshal(ingestBody{
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		AccuracyM:  fix.AccuracyM,
		Source:     "device",
		CapturedAt: fix.CapturedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.baseURL+"/v1/location", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest: unexpected status %d", resp.StatusCode)
	}
	return nil
}
