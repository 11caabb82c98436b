package service

import (
	"context"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// BookingNotice is the projection of a booking handed to a Notifier.  It
// carries everything a confirmation or cancellation message needs so the
// receiver never has to query the database.
type BookingNotice struct {
	BookingID      uint64     `json:"booking_id"`
	UserID         uint64     `json:"user_id"`
	UserName       string     `json:"user_name"`
	RestaurantID   uint64     `json:"restaurant_id"`
	RestaurantName string     `json:"restaurant_name"`
	Location       string     `json:"location"`
	NumberOfGuests uint32     `json:"number_of_guests"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// Notifier delivers booking notices to users.  Delivery is best effort:
// callers log a returned error and carry on.
type Notifier interface {
	NotifyBookingCreated(ctx context.Context, email string, n BookingNotice) error
	NotifyBookingCancelled(ctx context.Context, email string, n BookingNotice) error
}

func noticeFor(d *model.BookingDetail) BookingNotice {
	n := BookingNotice{
		BookingID:      d.ID,
		UserID:         d.UserID,
		RestaurantID:   d.RestaurantID,
		RestaurantName: d.Restaurant.Name,
		Location:       d.Restaurant.Location,
		NumberOfGuests: d.NumberOfGuests,
		Status:         d.Status.String(),
		CreatedAt:      d.CreatedAt,
		CancelledAt:    d.CancelledAt,
	}
	if d.User != nil {
		n.UserName = d.User.Name
	}
	return n
}
