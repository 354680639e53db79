package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/livetrack/internal/core/domain"
	"github.com/fieldops/livetrack/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubBookingRepo struct {
	bookings  map[int64]*domain.Booking
	updateErr error
	updated   []int64
}

func newStubBookingRepo() *stubBookingRepo {
	return &stubBookingRepo{bookings: make(map[int64]*domain.Booking)}
}

func (r *stubBookingRepo) FindByID(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

func (r *stubBookingRepo) UpdateStatus(_ context.Context, id int64, status domain.BookingStatus, at time.Time) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.bookings[id].StatusID = status
	r.bookings[id].UpdatedAt = at
	r.updated = append(r.updated, id)
	return nil
}

type publishCall struct {
	identity int64
	kind     domain.EventKind
	payload  any
}

type stubNotifier struct {
	calls []publishCall
}

func (n *stubNotifier) Publish(identity int64, kind domain.EventKind, payload any) {
	n.calls = append(n.calls, publishCall{identity: identity, kind: kind, payload: payload})
}

func seededBookingRepo(id int64, orderCode string, identity int64) *stubBookingRepo {
	repo := newStubBookingRepo()
	repo.bookings[id] = &domain.Booking{
		ID:        id,
		OrderCode: orderCode,
		Identity:  identity,
		StatusID:  domain.StatusPending,
	}
	return repo
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestStatusService_UpdateStatus_PublishesAfterCommit(t *testing.T) {
	repo := seededBookingRepo(42, "ORD-0042", 7)
	notifier := &stubNotifier{}
	svc := NewStatusService(repo, notifier, zerolog.Nop())

	err := svc.UpdateStatus(context.Background(), ports.StatusUpdateInput{
		BookingID:      42,
		NewStatusID:    3,
		TargetIdentity: 7,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if repo.bookings[42].StatusID != domain.StatusCompleted {
		t.Errorf("expected status persisted, got %d", repo.bookings[42].StatusID)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(notifier.calls))
	}

	call := notifier.calls[0]
	if call.identity != 7 {
		t.Errorf("expected publish to identity 7, got %d", call.identity)
	}
	if call.kind != domain.EventStatusUpdate {
		t.Errorf("expected statusUpdate kind, got %s", call.kind)
	}
	event, ok := call.payload.(domain.StatusEvent)
	if !ok {
		t.Fatalf("unexpected payload type: %T", call.payload)
	}
	if event.BookingID != 42 || event.OrderCode != "ORD-0042" || event.NewStatusLabel != "completed" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestStatusService_UpdateStatus_BookingNotFound(t *testing.T) {
	repo := newStubBookingRepo() // empty
	notifier := &stubNotifier{}
	svc := NewStatusService(repo, notifier, zerolog.Nop())

	err := svc.UpdateStatus(context.Background(), ports.StatusUpdateInput{
		BookingID:      99,
		NewStatusID:    2,
		TargetIdentity: 7,
	})
	if !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got: %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("expected no publish before mutation")
	}
}

func TestStatusService_UpdateStatus_StoreFailure_NoPublish(t *testing.T) {
	repo := seededBookingRepo(42, "ORD-0042", 7)
	repo.updateErr = errors.New("write conflict")
	notifier := &stubNotifier{}
	svc := NewStatusService(repo, notifier, zerolog.Nop())

	err := svc.UpdateStatus(context.Background(), ports.StatusUpdateInput{
		BookingID:      42,
		NewStatusID:    2,
		TargetIdentity: 7,
	})
	if err == nil {
		t.Fatalf("expected store error to surface")
	}
	if len(notifier.calls) != 0 {
		t.Errorf("expected no publish on rolled-back mutation")
	}
}

func TestStatusService_UpdateStatus_NilNotifierIsNoOp(t *testing.T) {
	repo := seededBookingRepo(42, "ORD-0042", 7)
	svc := NewStatusService(repo, nil, zerolog.Nop())

	err := svc.UpdateStatus(context.Background(), ports.StatusUpdateInput{
		BookingID:      42,
		NewStatusID:    2,
		TargetIdentity: 7,
	})
	if err != nil {
		t.Fatalf("expected mutation to succeed without a notifier, got: %v", err)
	}
	if repo.bookings[42].StatusID != domain.StatusInProgress {
		t.Errorf("expected status persisted")
	}
}

func TestStatusService_UpdateStatus_UnmappedIDUsesFallbackLabel(t *testing.T) {
	repo := seededBookingRepo(42, "ORD-0042", 7)
	notifier := &stubNotifier{}
	svc := NewStatusService(repo, notifier, zerolog.Nop())

	err := svc.UpdateStatus(context.Background(), ports.StatusUpdateInput{
		BookingID:      42,
		NewStatusID:    99,
		TargetIdentity: 7,
	})
	if err != nil {
		t.Fatalf("expected unmapped id to be accepted, got: %v", err)
	}
	event := notifier.calls[0].payload.(domain.StatusEvent)
	if event.NewStatusLabel != domain.StatusFallbackLabel {
		t.Errorf("expected fallback label, got %q", event.NewStatusLabel)
	}
}

func TestBookingStatus_Labels(t *testing.T) {
	if got := domain.BookingStatus(2).Label(); got != "in_progress" {
		t.Errorf("status 2: expected in_progress, got %q", got)
	}
	if got := domain.BookingStatus(1).Label(); got != "pending" {
		t.Errorf("status 1: expected pending, got %q", got)
	}
	if got := domain.BookingStatus(3).Label(); got != "completed" {
		t.Errorf("status 3: expected completed, got %q", got)
	}
	if got := domain.BookingStatus(99).Label(); got != domain.StatusFallbackLabel {
		t.Errorf("status 99: expected fallback, got %q", got)
	}
}
