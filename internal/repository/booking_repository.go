package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/table-reservation/internal/model"
)

// BookingRepo provides access to the bookings table.  Every mutating
// method takes an open transaction: a booking is never written outside
// the unit of work that also adjusts the restaurant's seat counter.  All
// timestamps are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, restaurant_id, number_of_guests, status, created_at, updated_at, cancelled_at`

func scanBooking(s rowScanner, b *model.Booking) error {
    var (
        status      string
        cancelledAt sql.NullTime
    )
    if err := s.Scan(&b.ID, &b.UserID, &b.RestaurantID, &b.NumberOfGuests,
        &status, &b.CreatedAt, &b.UpdatedAt, &cancelledAt); err != nil {
        return err
    }
    st, err := model.ParseBookingStatus(status)
    if err != nil {
        return err
    }
    b.Status = st
    b.CancelledAt = nil
    if cancelledAt.Valid {
        t := cancelledAt.Time
        b.CancelledAt = &t
    }
    return nil
}

// CreateTx inserts an ACTIVE booking within the caller's transaction and
// populates the generated ID and timestamps on b.  A second active
// booking for the same (user, restaurant) pair trips uq_bookings_active
// and is reported as ErrDuplicateActive.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings (user_id, restaurant_id, number_of_guests, status) VALUES (?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, b.UserID, b.RestaurantID, b.NumberOfGuests, string(model.BookingActive))
    if err != nil {
        if isDuplicateEntry(err) {
            return ErrDuplicateActive
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    // Query back the full row to populate timestamps and defaults
    const sel = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    return scanBooking(tx.QueryRowContext(ctx, sel, id), b)
}

// GetByIDForUpdateTx loads a booking and locks its row for the remainder
// of the transaction.  ErrBookingNotFound is returned for unknown ids.
func (r *BookingRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
    var b model.Booking
    if err := scanBooking(tx.QueryRowContext(ctx, q, id), &b); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrBookingNotFound
        }
        return nil, err
    }
    return &b, nil
}

// FindActiveTx returns the ACTIVE booking for the pair, locking it, or
// (nil, nil) when there is none.
func (r *BookingRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, userID, restaurantID uint64) (*model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings
               WHERE user_id = ? AND restaurant_id = ? AND status = 'ACTIVE'
               LIMIT 1 FOR UPDATE`
    return r.findActive(tx.QueryRowContext(ctx, q, userID, restaurantID))
}

// FindActive is the non-locking variant of FindActiveTx used for the
// fast pre-check before a transaction is opened.
func (r *BookingRepo) FindActive(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings
               WHERE user_id = ? AND restaurant_id = ? AND status = 'ACTIVE'
               LIMIT 1`
    return r.findActive(r.db.QueryRowContext(ctx, q, userID, restaurantID))
}

func (r *BookingRepo) findActive(row *sql.Row) (*model.Booking, error) {
    var b model.Booking
    if err := scanBooking(row, &b); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, nil
        }
        return nil, err
    }
    return &b, nil
}

// MarkCancelledTx moves an ACTIVE booking to CANCELLED.  The status guard
// makes the update a no-op for a booking that is no longer active, which
// is reported as ErrConflict.
func (r *BookingRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
    const q = `UPDATE bookings
               SET status = 'CANCELLED', cancelled_at = ?
               WHERE id = ? AND status = 'ACTIVE'`
    res, err := tx.ExecContext(ctx, q, at.UTC(), id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// ListByUser returns every booking owned by userID joined with its
// restaurant, newest first.  Ties on created_at are broken by id so the
// order is stable.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.BookingDetail, error) {
    const q = `SELECT b.id, b.user_id, b.restaurant_id, b.number_of_guests, b.status,
                      b.created_at, b.updated_at, b.cancelled_at,
                      r.id, r.name, r.location, r.cuisine, r.total_seats, r.seats_available,
                      r.created_at, r.updated_at
               FROM bookings b
               JOIN restaurants r ON r.id = b.restaurant_id
               WHERE b.user_id = ?
               ORDER BY b.created_at DESC, b.id DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    out := make([]model.BookingDetail, 0)
    for rows.Next() {
        var d model.BookingDetail
        if err := scanBookingDetail(rows, &d); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// scanBookingDetail splits one joined row into the booking and restaurant
// halves by scanning into a combined destination list.
func scanBookingDetail(rows *sql.Rows, d *model.BookingDetail) error {
    var (
        status      string
        cancelledAt sql.NullTime
        cuisine     []byte
    )
    err := rows.Scan(
        &d.ID, &d.UserID, &d.RestaurantID, &d.NumberOfGuests, &status,
        &d.CreatedAt, &d.UpdatedAt, &cancelledAt,
        &d.Restaurant.ID, &d.Restaurant.Name, &d.Restaurant.Location, &cuisine,
        &d.Restaurant.TotalSeats, &d.Restaurant.SeatsAvailable,
        &d.Restaurant.CreatedAt, &d.Restaurant.UpdatedAt,
    )
    if err != nil {
        return err
    }
    if d.Status, err = model.ParseBookingStatus(status); err != nil {
        return err
    }
    if cancelledAt.Valid {
        t := cancelledAt.Time
        d.CancelledAt = &t
    }
    return decodeCuisine(cuisine, &d.Restaurant)
}
