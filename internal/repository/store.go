package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/model"
)

// InventoryTx is the view of the repositories available inside a single
// unit of work.  Every method runs on the same *sql.Tx; row locks taken
// by the ForUpdate methods are held until the unit commits or rolls back.
type InventoryTx interface {
	RestaurantForUpdate(ctx context.Context, id uint64) (*model.Restaurant, error)
	// ActiveBookingForUpdate returns (nil, nil) when the pair has no
	// ACTIVE booking.
	ActiveBookingForUpdate(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	DecrementSeats(ctx context.Context, restaurantID uint64, n uint32) error
	IncrementSeats(ctx context.Context, restaurantID uint64, n uint32) error
	BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	MarkCancelled(ctx context.Context, id uint64, at time.Time) error
	UserSummary(ctx context.Context, id uint64) (model.UserSummary, error)
}

// Store groups the repositories that take part in the reservation
// protocol and runs units of work against them.
type Store struct {
	db          *sql.DB
	restaurants *RestaurantRepo
	bookings    *BookingRepo
	users       *UserRepo
	log         *zap.Logger

	maxAttempts int
	backoff     time.Duration
}

// NewStore wires a Store over db.  Units aborted by a deadlock or a lock
// wait timeout are retried up to maxAttempts times in total.
func NewStore(db *sql.DB, log *zap.Logger, maxAttempts int) *Store {
	if db == nil {
		panic("repository: nil db")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{
		db:          db,
		restaurants: NewRestaurantRepo(db),
		bookings:    NewBookingRepo(db),
		users:       NewUserRepo(db),
		log:         log,
		maxAttempts: maxAttempts,
		backoff:     20 * time.Millisecond,
	}
}

// WithinTx runs fn inside a transaction.  fn's error rolls the
// transaction back and is returned unchanged; a nil return commits.  When
// MySQL aborts the unit with a deadlock or lock wait timeout the whole
// unit is re-run after a short backoff, so fn must not have side effects
// outside tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.runOnce(ctx, fn)
		if err != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.log.Warn("transaction aborted, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}),
	)
	return err
}

func (s *Store) newBackOff() backoff.BackOff {
	if s.backoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoff
	b.MaxInterval = 500 * time.Millisecond
	return b
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &storeTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// FindActiveBooking is a non-locking lookup outside any transaction.
func (s *Store) FindActiveBooking(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error) {
	return s.bookings.FindActive(ctx, userID, restaurantID)
}

// ListBookingsByUser returns the user's bookings with restaurant details,
// newest first.
func (s *Store) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.BookingDetail, error) {
	return s.bookings.ListByUser(ctx, userID)
}

// storeTx binds the repositories to one open transaction.
type storeTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *storeTx) RestaurantForUpdate(ctx context.Context, id uint64) (*model.Restaurant, error) {
	return t.s.restaurants.GetForUpdateTx(ctx, t.tx, id)
}

func (t *storeTx) ActiveBookingForUpdate(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error) {
	return t.s.bookings.FindActiveTx(ctx, t.tx, userID, restaurantID)
}

func (t *storeTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.CreateTx(ctx, t.tx, b)
}

func (t *storeTx) DecrementSeats(ctx context.Context, restaurantID uint64, n uint32) error {
	return t.s.restaurants.DecrementSeatsTx(ctx, t.tx, restaurantID, n)
}

func (t *storeTx) IncrementSeats(ctx context.Context, restaurantID uint64, n uint32) error {
	return t.s.restaurants.IncrementSeatsTx(ctx, t.tx, restaurantID, n)
}

func (t *storeTx) BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.s.bookings.GetByIDForUpdateTx(ctx, t.tx, id)
}

func (t *storeTx) MarkCancelled(ctx context.Context, id uint64, at time.Time) error {
	return t.s.bookings.MarkCancelledTx(ctx, t.tx, id, at)
}

func (t *storeTx) UserSummary(ctx context.Context, id uint64) (model.UserSummary, error) {
	return t.s.users.SummaryTx(ctx, t.tx, id)
}
