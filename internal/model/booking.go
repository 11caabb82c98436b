package model

import (
    "fmt"
    "strings"
    "time"
)

// BookingStatus is the lifecycle state of a booking.  Only the three
// values below are valid; anything else is rejected by
// ParseBookingStatus.
type BookingStatus string

const (
    BookingActive    BookingStatus = "ACTIVE"    // holds a seat allocation
    BookingCancelled BookingStatus = "CANCELLED" // terminal, seats returned
    BookingCompleted BookingStatus = "COMPLETED" // terminal, set by an external process
)

// transitions lists every permitted status change.  A pair that is not
// present here is invalid, including self-transitions.
var transitions = map[BookingStatus][]BookingStatus{
    BookingActive: {BookingCancelled, BookingCompleted},
}

// ParseBookingStatus converts a stored or user-supplied status string.
// Matching is case-insensitive.
func ParseBookingStatus(s string) (BookingStatus, error) {
    switch st := BookingStatus(strings.ToUpper(strings.TrimSpace(s))); st {
    case BookingActive, BookingCancelled, BookingCompleted:
        return st, nil
    }
    return "", fmt.Errorf("unknown booking status %q", s)
}

// String implements fmt.Stringer.
func (s BookingStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible from s.
func (s BookingStatus) IsTerminal() bool { return len(transitions[s]) == 0 }

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to BookingStatus) bool {
    for _, next := range transitions[from] {
        if next == to {
            return true
        }
    }
    return false
}

// TransitionError is returned when a status change is not permitted.
type TransitionError struct {
    From BookingStatus
    To   BookingStatus
}

func (e *TransitionError) Error() string {
    return fmt.Sprintf("booking status %s cannot change to %s", e.From, e.To)
}

// TransitionTo validates the change s -> to and returns the new status.
func (s BookingStatus) TransitionTo(to BookingStatus) (BookingStatus, error) {
    if !CanTransition(s, to) {
        return s, &TransitionError{From: s, To: to}
    }
    return to, nil
}

// Booking records a user's reservation of seats at a restaurant.  Bookings
// are never deleted; cancelling one moves it to CANCELLED and stamps
// CancelledAt.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – user who owns the booking.
//  RestaurantID   – restaurant being booked.
//  NumberOfGuests – seats held by the booking (> 0).
//  Status         – ACTIVE, CANCELLED or COMPLETED.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
//  CancelledAt    – when the booking was cancelled (nil otherwise).
type Booking struct {
    ID             uint64        `json:"id"`                    // bookings.id
    UserID         uint64        `json:"userId"`                // bookings.user_id
    RestaurantID   uint64        `json:"restaurantId"`          // bookings.restaurant_id
    NumberOfGuests uint32        `json:"numberOfGuests"`        // bookings.number_of_guests
    Status         BookingStatus `json:"status"`                // bookings.status
    CreatedAt      time.Time     `json:"createdAt"`             // bookings.created_at
    UpdatedAt      time.Time     `json:"updatedAt"`             // bookings.updated_at
    CancelledAt    *time.Time    `json:"cancelledAt,omitempty"` // bookings.cancelled_at (nullable)
}

// Cancel applies the ACTIVE -> CANCELLED transition and records the
// cancellation time.  The booking is left untouched on error.
func (b *Booking) Cancel(at time.Time) error {
    next, err := b.Status.TransitionTo(BookingCancelled)
    if err != nil {
        return err
    }
    at = at.UTC()
    b.Status = next
    b.CancelledAt = &at
    b.UpdatedAt = at
    return nil
}

// BookingDetail is a booking joined with a snapshot of its restaurant and,
// where known, the owning user's projection.  It is the shape returned by
// the reservation API.
type BookingDetail struct {
    Booking
    Restaurant Restaurant   `json:"restaurant"`
    User       *UserSummary `json:"user,omitempty"`
}
