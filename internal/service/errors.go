package service

import (
    "errors"
    "fmt"

    "github.com/iliyamo/table-reservation/internal/model"
)

// ErrForbidden is returned when the caller acts on a booking owned by
// another user.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports missing or malformed input.  It is raised before
// any storage access.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports that a referenced record does not exist.
type NotFoundError struct {
    Resource string
    ID       uint64
}

func (e *NotFoundError) Error() string {
    return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// InsufficientCapacityError reports that a restaurant does not have enough
// free seats for the requested party size.
type InsufficientCapacityError struct {
    RestaurantID uint64
    Requested    uint32
    Available    uint32
}

func (e *InsufficientCapacityError) Error() string {
    return fmt.Sprintf("restaurant %d has %d seats available, %d requested",
        e.RestaurantID, e.Available, e.Requested)
}

// DuplicateBookingError reports that the user already holds an active
// booking at the restaurant.
type DuplicateBookingError struct {
    ExistingBookingID uint64
}

func (e *DuplicateBookingError) Error() string {
    return fmt.Sprintf("active booking %d already exists for this user and restaurant", e.ExistingBookingID)
}

// ConflictError reports a status transition that the booking state
// machine does not allow.
type ConflictError struct {
    BookingID uint64
    Status    model.BookingStatus
}

func (e *ConflictError) Error() string {
    switch e.Status {
    case model.BookingCancelled:
        return fmt.Sprintf("booking %d is already cancelled", e.BookingID)
    case model.BookingCompleted:
        return fmt.Sprintf("booking %d is completed and cannot be cancelled", e.BookingID)
    }
    return fmt.Sprintf("booking %d cannot be cancelled in status %s", e.BookingID, e.Status)
}

// StorageError wraps a failure of the underlying store (begin, query,
// commit, timeout).  The unit of work has been rolled back.
type StorageError struct {
    Op  string
    Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// ErrorKind classifies service errors for transport mapping.
type ErrorKind int

const (
    KindUnknown ErrorKind = iota
    KindValidation
    KindNotFound
    KindInsufficientCapacity
    KindDuplicate
    KindConflict
    KindForbidden
    KindStorage
)

// Kind returns the classification of err.  Unrecognised errors are
// reported as KindStorage so that they surface as internal failures.
func Kind(err error) ErrorKind {
    var (
        ve *ValidationError
        nf *NotFoundError
        ic *InsufficientCapacityError
        db *DuplicateBookingError
        ce *ConflictError
    )
    switch {
    case err == nil:
        return KindUnknown
    case errors.As(err, &ve):
        return KindValidation
    case errors.As(err, &nf):
        return KindNotFound
    case errors.As(err, &ic):
        return KindInsufficientCapacity
    case errors.As(err, &db):
        return KindDuplicate
    case errors.As(err, &ce):
        return KindConflict
    case errors.Is(err, ErrForbidden):
        return KindForbidden
    }
    return KindStorage
}
