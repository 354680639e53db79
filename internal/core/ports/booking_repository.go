package ports

import (
	"context"
	"time"

	"github.com/fieldops/livetrack/internal/core/domain"
)

// BookingRepository is the narrow slice of the booking store this core
// touches: read the display order code, write the new status.
type BookingRepository interface {
	FindByID(ctx context.Context, bookingID int64) (*domain.Booking, error)
	// UpdateStatus transactionally sets status_id and updated_at. The write
	// either commits fully or leaves the row untouched.
	UpdateStatus(ctx context.Context, bookingID int64, status domain.BookingStatus, at time.Time) error
}
