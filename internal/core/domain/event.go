package domain

// EventKind is the closed set of push event kinds carried over live
// connections. Unrecognised kinds are rejected at the boundary.
type EventKind string

const (
	EventStatusUpdate     EventKind = "statusUpdate"
	EventLocationSnapshot EventKind = "locationSnapshot"
	EventRegister         EventKind = "register"
)

// Known reports whether k is part of the closed event enumeration.
func (k EventKind) Known() bool {
	switch k {
	case EventStatusUpdate, EventLocationSnapshot, EventRegister:
		return true
	}
	return false
}

// StatusEvent is the payload published to a technician's room after a
// committed status mutation. Built once per mutation, consumed by a single
// publish call, never retained.
type StatusEvent struct {
	BookingID      int64  `json:"bookingId"`
	OrderCode      string `json:"orderCode"`
	NewStatusLabel string `json:"newStatusLabel"`
}
