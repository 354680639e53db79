package ports

import (
	"context"
	"time"

	"github.com/fieldops/livetrack/internal/core/domain"
)

// IngestInput is the DTO passed from the transport layer to LocationService.
// Identity is the sample's owner; CallerIdentity and CallerRole come from
// the auth context and are checked against Identity before any side effect.
type IngestInput struct {
	Identity       int64
	Lat            float64
	Lng            float64
	AccuracyM      *float64
	Source         string
	CapturedAt     time.Time
	CallerIdentity int64
	CallerRole     string
}

// LocationService ingests position fixes and serves snapshots of the latest
// sample per identity.
type LocationService interface {
	Ingest(ctx context.Context, in IngestInput) error
	Snapshot(ctx context.Context, limit int) ([]*domain.LocationSample, error)
}
