package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/table-reservation/internal/model"
)

// UserBookings is a user's bookings partitioned by status.  All is
// newest first; the other views keep that order.  No slice is ever nil so
// each view serializes as a JSON array.
type UserBookings struct {
	All       []model.BookingDetail `json:"all"`
	Active    []model.BookingDetail `json:"active"`
	Completed []model.BookingDetail `json:"completed"`
	Cancelled []model.BookingDetail `json:"cancelled"`
	Count     int                   `json:"count"`
}

// QueryService answers read-only questions about bookings.
type QueryService struct {
	store  InventoryStore
	tracer trace.Tracer
}

func NewQueryService(store InventoryStore) *QueryService {
	if store == nil {
		panic("service: nil inventory store")
	}
	return &QueryService{store: store, tracer: otel.Tracer(tracerName)}
}

// ListForUser returns every booking of userID with its restaurant.
func (q *QueryService) ListForUser(ctx context.Context, userID uint64) (*UserBookings, error) {
	ctx, span := q.tracer.Start(ctx, "reservation.list", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
	))
	defer span.End()

	if userID == 0 {
		err := &ValidationError{Field: "userId", Reason: "is required"}
		recordErr(span, err)
		return nil, err
	}

	all, err := q.store.ListBookingsByUser(ctx, userID)
	if err != nil {
		err = storageErr("list bookings", err)
		recordErr(span, err)
		return nil, err
	}
	out := partition(all)
	span.SetAttributes(attribute.Int("booking.count", out.Count))
	return out, nil
}

func partition(all []model.BookingDetail) *UserBookings {
	if all == nil {
		all = []model.BookingDetail{}
	}
	out := &UserBookings{
		All:       all,
		Active:    []model.BookingDetail{},
		Completed: []model.BookingDetail{},
		Cancelled: []model.BookingDetail{},
		Count:     len(all),
	}
	for _, b := range all {
		switch b.Status {
		case model.BookingActive:
			out.Active = append(out.Active, b)
		case model.BookingCompleted:
			out.Completed = append(out.Completed, b)
		case model.BookingCancelled:
			out.Cancelled = append(out.Cancelled, b)
		}
	}
	return out
}
