// Package queue carries booking notifications over RabbitMQ: the API
// publishes events to a topic exchange and cmd/notify-worker consumes
// them and hands rendered messages to a Mailer.
package queue

import (
    "time"

    "github.com/iliyamo/table-reservation/internal/service"
)

// Routing keys on the reservations topic exchange.
const (
    RoutingBookingCreated   = "booking.created"
    RoutingBookingCancelled = "booking.cancelled"
)

// BookingCreatedEvent is published after a reservation commits.  It holds
// everything the confirmation message needs so the worker never reads
// the primary database.
type BookingCreatedEvent struct {
    BookingID      uint64 `json:"booking_id"`
    UserID         uint64 `json:"user_id"`
    UserName       string `json:"user_name"`
    Email          string `json:"email"`
    RestaurantID   uint64 `json:"restaurant_id"`
    RestaurantName string `json:"restaurant_name"`
    Location       string `json:"location"`
    NumberOfGuests uint32 `json:"number_of_guests"`
    CreatedAt      string `json:"created_at"`
}

// BookingCancelledEvent is published after a cancellation commits.
type BookingCancelledEvent struct {
    BookingCreatedEvent
    CancelledAt string `json:"cancelled_at"`
}

func createdEvent(email string, n service.BookingNotice) BookingCreatedEvent {
    return BookingCreatedEvent{
        BookingID:      n.BookingID,
        UserID:         n.UserID,
        UserName:       n.UserName,
        Email:          email,
        RestaurantID:   n.RestaurantID,
        RestaurantName: n.RestaurantName,
        Location:       n.Location,
        NumberOfGuests: n.NumberOfGuests,
        CreatedAt:      n.CreatedAt.UTC().Format(time.RFC3339),
    }
}

func cancelledEvent(email string, n service.BookingNotice) BookingCancelledEvent {
    ev := BookingCancelledEvent{BookingCreatedEvent: createdEvent(email, n)}
    if n.CancelledAt != nil {
        ev.CancelledAt = n.CancelledAt.UTC().Format(time.RFC3339)
    }
    return ev
}
