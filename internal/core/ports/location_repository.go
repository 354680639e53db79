package ports

import (
	"context"

	"github.com/fieldops/livetrack/internal/core/domain"
)

// LocationRepository defines persistence operations for the latest-position
// table. One row per identity; Upsert overwrites unconditionally.
type LocationRepository interface {
	Upsert(ctx context.Context, sample *domain.LocationSample) error
	// Latest returns up to limit samples ordered by most recent update.
	Latest(ctx context.Context, limit int) ([]*domain.LocationSample, error)
}
