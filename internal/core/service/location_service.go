package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
)

// DedupChecker abstracts the duplicate-fix store (Redis). A fix is a
// duplicate when the same identity already submitted a sample with the same
// capture timestamp; throttled mobile clients resend on flaky networks.
type DedupChecker interface {
	IsDuplicate(ctx context.Context, identity int64, capturedAt time.Time) (bool, error)
	Mark(ctx context.Context, identity int64, capturedAt time.Time) error
}

type locationService struct {
	repo  ports.LocationRepository
	dedup DedupChecker
	log   zerolog.Logger
}

// NewLocationService returns a LocationService implementation.
func NewLocationService(repo ports.LocationRepository, dedup DedupChecker, log zerolog.Logger) ports.LocationService {
	return &locationService{repo: repo, dedup: dedup, log: log}
}

// Ingest validates and persists a technician's latest position. The write
// is latest-wins: a new sample overwrites the stored one unconditionally,
// with no capture-time ordering check.
func (s *locationService) Ingest(ctx context.Context, in ports.IngestInput) error {
	// 1. Identity must match the caller, unless an admin overrides.
	if in.Identity != in.CallerIdentity && in.CallerRole != domain.RoleAdmin {
		return domain.ErrIdentityMismatch
	}

	// 2. Coordinate bounds. NaN fails the range check too.
	if !domain.ValidCoordinates(in.Lat, in.Lng) {
		return fmt.Errorf("ingest: lat=%v lng=%v: %w", in.Lat, in.Lng, domain.ErrInvalidCoordinates)
	}

	capturedAt := in.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	// 3. Duplicate resubmission check. Silently drop; check failure is non-fatal.
	isDup, err := s.dedup.IsDuplicate(ctx, in.Identity, capturedAt)
	if err != nil {
		s.log.Warn().Err(err).Int64("identity", in.Identity).Msg("dedup check failed, ingesting anyway")
	} else if isDup {
		s.log.Debug().Int64("identity", in.Identity).Time("captured_at", capturedAt).Msg("duplicate fix skipped")
		return nil
	}

	sample := &domain.LocationSample{
		Identity:   in.Identity,
		Lat:        in.Lat,
		Lng:        in.Lng,
		AccuracyM:  in.AccuracyM,
		Source:     domain.SampleSource(in.Source),
		CapturedAt: capturedAt.UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Upsert(ctx, sample); err != nil {
		return fmt.Errorf("ingest: upsert: %w", err)
	}

	if markErr := s.dedup.Mark(ctx, in.Identity, capturedAt); markErr != nil {
		s.log.Warn().Err(markErr).Int64("identity", in.Identity).Msg("failed to set dedup key")
	}

	s.log.Debug().
		Int64("identity", in.Identity).
		Float64("lat", in.Lat).
		Float64("lng", in.Lng).
		Str("source", in.Source).
		Msg("location ingested")

	return nil
}

// Snapshot returns the limit most recently updated samples. Zero rows is a
// valid snapshot.
func (s *locationService) Snapshot(ctx context.Context, limit int) ([]*domain.LocationSample, error) {
	samples, err := s.repo.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return samples, nil
}
