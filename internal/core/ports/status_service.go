package ports

import "context"

// StatusUpdateInput is the DTO for a booking status mutation.
type StatusUpdateInput struct {
	BookingID      int64
	NewStatusID    int
	TargetIdentity int64
}

// StatusService performs the transactional status update and, after commit,
// hands the resulting event to the Notifier. The mutation's success is
// independent of delivery.
type StatusService interface {
	UpdateStatus(ctx context.Context, in StatusUpdateInput) error
}
