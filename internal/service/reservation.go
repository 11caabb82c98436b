package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// DefaultTimeout bounds a single reserve or cancel unit of work when the
// caller does not configure one.
const DefaultTimeout = 5 * time.Second

// notifyTimeout bounds the post-commit notifier call.
const notifyTimeout = 3 * time.Second

const tracerName = "github.com/iliyamo/table-reservation/internal/service"

// InventoryStore is the transactional data store the reservation protocol
// runs against.  WithinTx must commit when fn returns nil and roll back
// otherwise, including when ctx expires.
type InventoryStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.InventoryTx) error) error
	FindActiveBooking(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.BookingDetail, error)
}

// ReserveInput is the request to hold NumberOfGuests seats for UserID at
// RestaurantID.  NumberOfGuests is signed so that negative input can be
// reported rather than wrapped.
type ReserveInput struct {
	RestaurantID   uint64
	UserID         uint64
	NumberOfGuests int64
}

// ReservationService implements reserve and cancel as atomic
// seat-adjustment plus status-transition units.
type ReservationService struct {
	store    InventoryStore
	notifier Notifier
	log      *zap.Logger
	timeout  time.Duration
	tracer   trace.Tracer
	now      func() time.Time
}

// NewReservationService wires the service.  A nil notifier disables
// notifications; a non-positive timeout falls back to DefaultTimeout.
func NewReservationService(store InventoryStore, notifier Notifier, log *zap.Logger, timeout time.Duration) *ReservationService {
	if store == nil {
		panic("service: nil inventory store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReservationService{
		store:    store,
		notifier: notifier,
		log:      log,
		timeout:  timeout,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve creates an ACTIVE booking and takes its seats from the
// restaurant in one unit of work.  The returned detail carries the
// restaurant as it stands after the decrement and the user projection.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (*model.BookingDetail, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.reserve", trace.WithAttributes(
		attribute.Int64("restaurant.id", int64(in.RestaurantID)),
		attribute.Int64("user.id", int64(in.UserID)),
		attribute.Int64("booking.guests", in.NumberOfGuests),
	))
	defer span.End()

	detail, err := s.reserve(ctx, in)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("booking.id", int64(detail.ID)))

	s.log.Info("booking created",
		zap.Uint64("booking_id", detail.ID),
		zap.Uint64("user_id", detail.UserID),
		zap.Uint64("restaurant_id", detail.RestaurantID),
		zap.Uint32("guests", detail.NumberOfGuests),
		zap.Uint32("seats_available", detail.Restaurant.SeatsAvailable))

	s.notify(ctx, "created", detail, s.notifierCreated)
	return detail, nil
}

func (s *ReservationService) reserve(ctx context.Context, in ReserveInput) (*model.BookingDetail, error) {
	switch {
	case in.RestaurantID == 0:
		return nil, &ValidationError{Field: "restaurantId", Reason: "is required"}
	case in.UserID == 0:
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	case in.NumberOfGuests <= 0:
		return nil, &ValidationError{Field: "numberOfGuests", Reason: "must be a positive integer"}
	case in.NumberOfGuests > int64(^uint32(0)):
		return nil, &ValidationError{Field: "numberOfGuests", Reason: "is too large"}
	}
	guests := uint32(in.NumberOfGuests)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Fast path.  The authoritative check runs again under the restaurant
	// lock below.
	existing, err := s.store.FindActiveBooking(ctx, in.UserID, in.RestaurantID)
	if err != nil {
		return nil, storageErr("find active booking", err)
	}
	if existing != nil {
		return nil, &DuplicateBookingError{ExistingBookingID: existing.ID}
	}

	var out *model.BookingDetail
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.InventoryTx) error {
		rest, err := tx.RestaurantForUpdate(ctx, in.RestaurantID)
		if errors.Is(err, repository.ErrRestaurantNotFound) {
			return &NotFoundError{Resource: "restaurant", ID: in.RestaurantID}
		}
		if err != nil {
			return err
		}
		if rest.SeatsAvailable < guests {
			return &InsufficientCapacityError{RestaurantID: rest.ID, Requested: guests, Available: rest.SeatsAvailable}
		}

		dup, err := tx.ActiveBookingForUpdate(ctx, in.UserID, in.RestaurantID)
		if err != nil {
			return err
		}
		if dup != nil {
			return &DuplicateBookingError{ExistingBookingID: dup.ID}
		}

		b := &model.Booking{UserID: in.UserID, RestaurantID: rest.ID, NumberOfGuests: guests, Status: model.BookingActive}
		if err := tx.InsertBooking(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicateActive) {
				dupErr := &DuplicateBookingError{}
				if cur, lerr := tx.ActiveBookingForUpdate(ctx, in.UserID, in.RestaurantID); lerr == nil && cur != nil {
					dupErr.ExistingBookingID = cur.ID
				}
				return dupErr
			}
			return err
		}

		if err := tx.DecrementSeats(ctx, rest.ID, guests); err != nil {
			if errors.Is(err, repository.ErrInsufficientSeats) {
				return &InsufficientCapacityError{RestaurantID: rest.ID, Requested: guests, Available: rest.SeatsAvailable}
			}
			return err
		}
		rest.SeatsAvailable -= guests

		user, err := tx.UserSummary(ctx, in.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return &NotFoundError{Resource: "user", ID: in.UserID}
		}
		if err != nil {
			return err
		}

		out = &model.BookingDetail{Booking: *b, Restaurant: *rest, User: &user}
		return nil
	})
	if err != nil {
		return nil, storageErr("reserve", err)
	}
	return out, nil
}

// Cancel moves an ACTIVE booking to CANCELLED and returns its seats to the
// restaurant in one unit of work.
func (s *ReservationService) Cancel(ctx context.Context, bookingID uint64) (*model.BookingDetail, error) {
	return s.cancelTraced(ctx, bookingID, 0)
}

// CancelForUser is Cancel restricted to bookings owned by userID.  A
// booking owned by someone else yields ErrForbidden and is left untouched.
func (s *ReservationService) CancelForUser(ctx context.Context, bookingID, userID uint64) (*model.BookingDetail, error) {
	if userID == 0 {
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	}
	return s.cancelTraced(ctx, bookingID, userID)
}

func (s *ReservationService) cancelTraced(ctx context.Context, bookingID, ownerID uint64) (*model.BookingDetail, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.cancel", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
		attribute.Int64("user.id", int64(ownerID)),
	))
	defer span.End()

	detail, err := s.cancel(ctx, bookingID, ownerID)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}

	s.log.Info("booking cancelled",
		zap.Uint64("booking_id", detail.ID),
		zap.Uint64("user_id", detail.UserID),
		zap.Uint64("restaurant_id", detail.RestaurantID),
		zap.Uint32("guests", detail.NumberOfGuests),
		zap.Uint32("seats_available", detail.Restaurant.SeatsAvailable))

	s.notify(ctx, "cancelled", detail, s.notifierCancelled)
	return detail, nil
}

// cancel runs the cancellation unit.  ownerID 0 skips the ownership check.
func (s *ReservationService) cancel(ctx context.Context, bookingID, ownerID uint64) (*model.BookingDetail, error) {
	if bookingID == 0 {
		return nil, &ValidationError{Field: "bookingId", Reason: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out *model.BookingDetail
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.InventoryTx) error {
		b, err := tx.BookingForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrBookingNotFound) {
			return &NotFoundError{Resource: "booking", ID: bookingID}
		}
		if err != nil {
			return err
		}
		if ownerID != 0 && b.UserID != ownerID {
			return ErrForbidden
		}

		// Validate against the state machine before touching the counter.
		at := s.now()
		if err := b.Cancel(at); err != nil {
			return &ConflictError{BookingID: b.ID, Status: b.Status}
		}

		if err := tx.IncrementSeats(ctx, b.RestaurantID, b.NumberOfGuests); err != nil {
			return err
		}
		if err := tx.MarkCancelled(ctx, b.ID, at); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &ConflictError{BookingID: b.ID, Status: model.BookingCancelled}
			}
			return err
		}

		rest, err := tx.RestaurantForUpdate(ctx, b.RestaurantID)
		if err != nil {
			return err
		}
		user, err := tx.UserSummary(ctx, b.UserID)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}

		out = &model.BookingDetail{Booking: *b, Restaurant: *rest}
		if err == nil {
			out.User = &user
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("cancel", err)
	}
	return out, nil
}

func (s *ReservationService) notifierCreated(ctx context.Context, email string, n BookingNotice) error {
	return s.notifier.NotifyBookingCreated(ctx, email, n)
}

func (s *ReservationService) notifierCancelled(ctx context.Context, email string, n BookingNotice) error {
	return s.notifier.NotifyBookingCancelled(ctx, email, n)
}

// notify hands the committed booking to the notifier.  It runs after the
// commit, so a failure here is logged and never returned.
func (s *ReservationService) notify(ctx context.Context, event string, d *model.BookingDetail,
	send func(context.Context, string, BookingNotice) error) {
	if s.notifier == nil || d.User == nil || d.User.Email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("notifier panicked", zap.String("event", event), zap.Uint64("booking_id", d.ID), zap.Any("panic", r))
		}
	}()
	if err := send(ctx, d.User.Email, noticeFor(d)); err != nil {
		s.log.Warn("booking notification failed",
			zap.String("event", event),
			zap.Uint64("booking_id", d.ID),
			zap.Error(err))
	}
}

// storageErr passes domain errors through and wraps anything else.
func storageErr(op string, err error) error {
	switch Kind(err) {
	case KindStorage, KindUnknown:
		var se *StorageError
		if errors.As(err, &se) {
			return err
		}
		return &StorageError{Op: op, Err: err}
	}
	return err
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
