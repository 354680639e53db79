package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
)

type statusService struct {
	repo     ports.BookingRepository
	notifier ports.Notifier
	log      zerolog.Logger
}

// NewStatusService returns a StatusService that writes through repo and
// publishes committed changes through notifier. notifier may be nil when no
// realtime transport is mounted; publishing then degrades to a logged no-op.
func NewStatusService(repo ports.BookingRepository, notifier ports.Notifier, log zerolog.Logger) ports.StatusService {
	return &statusService{repo: repo, notifier: notifier, log: log}
}

// UpdateStatus looks up the booking's order code, transactionally writes
// the new status, and only after the commit publishes a statusUpdate event
// to the target identity's room. This core performs no transition
// validation: out-of-order or skipped transitions are the store's concern.
func (s *statusService) UpdateStatus(ctx context.Context, in ports.StatusUpdateInput) error {
	booking, err := s.repo.FindByID(ctx, in.BookingID)
	if err != nil {
		return fmt.Errorf("status update: %w", err)
	}

	status := domain.BookingStatus(in.NewStatusID)
	if err := s.repo.UpdateStatus(ctx, in.BookingID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("status update: write: %w", err)
	}

	// Committed. Delivery from here on is best-effort and must never fail
	// the request: an empty room or an absent bus is an accepted gap.
	event := domain.StatusEvent{
		BookingID:      in.BookingID,
		OrderCode:      booking.OrderCode,
		NewStatusLabel: status.Label(),
	}
	if s.notifier == nil {
		s.log.Debug().Int64("booking_id", in.BookingID).Msg("no notifier mounted, delivery skipped")
	} else {
		s.notifier.Publish(in.TargetIdentity, domain.EventStatusUpdate, event)
	}

	s.log.Info().
		Int64("booking_id", in.BookingID).
		Str("order_code", booking.OrderCode).
		Str("status", event.NewStatusLabel).
		Int64("target_identity", in.TargetIdentity).
		Msg("booking status updated")

	return nil
}
