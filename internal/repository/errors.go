// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation service and handlers to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// the row is no longer in the expected state, such as cancelling a
// booking that stopped being ACTIVE.
var ErrConflict = errors.New("conflict")

// Not-found sentinels, one per table.
var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrUserNotFound       = errors.New("user not found")
)

// ErrInsufficientSeats is returned by the conditional seat decrement when
// the restaurant no longer has enough seats available.
var ErrInsufficientSeats = errors.New("insufficient seats available")

// ErrSeatOverflow is returned by the conditional seat increment when
// returning seats would push seats_available above total_seats.
var ErrSeatOverflow = errors.New("seats available would exceed total seats")

// ErrDuplicateActive is returned when inserting a second ACTIVE booking
// for the same user and restaurant violates uq_bookings_active.
var ErrDuplicateActive = errors.New("active booking already exists")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func mysqlErrNo(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicateEntry(err error) bool { return mysqlErrNo(err) == mysqlDuplicateEntry }

// isRetryable reports whether err aborted the transaction in a way that
// makes re-running the whole unit of work safe and useful.
func isRetryable(err error) bool {
	switch mysqlErrNo(err) {
	case mysqlDeadlock, mysqlLockWaitTimeout:
		return true
	}
	return false
}
