package domain

import (
	"errors"
	"time"
)

var ErrBookingNotFound = errors.New("booking not found")

// BookingStatus is the numeric status id stored on a booking row.
type BookingStatus int

const (
	StatusPending    BookingStatus = 1
	StatusInProgress BookingStatus = 2
	StatusCompleted  BookingStatus = 3
)

// StatusFallbackLabel is used for ids outside the known enumeration. An
// unmapped id is not an error: this core is a pass-through writer and the
// full status set belongs to the store.
const StatusFallbackLabel = "updated"

var statusLabels = map[BookingStatus]string{
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
}

// Label returns the display label for a status id, or StatusFallbackLabel
// for ids outside the closed enumeration.
func (s BookingStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return StatusFallbackLabel
}

// Booking is the slice of the booking row this core reads and writes. The
// rest of the document (customer, service, address, ...) is owned by the
// surrounding application and never touched here.
type Booking struct {
	ID        int64         `json:"id" bson:"_id"`
	OrderCode string        `json:"order_code" bson:"order_code"`
	Identity  int64         `json:"identity" bson:"identity"`
	StatusID  BookingStatus `json:"status_id" bson:"status_id"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at"`
}
