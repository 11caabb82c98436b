package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// fakeStore is an in-memory InventoryStore.  Writes are applied in place
// and undone on rollback; row locks are per restaurant and per booking and
// are held until the unit ends, like InnoDB's FOR UPDATE locks.
type fakeStore struct {
	mu          sync.Mutex
	restaurants map[uint64]*model.Restaurant
	bookings    map[uint64]*model.Booking
	users       map[uint64]model.UserSummary
	nextID      uint64
	base        time.Time

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	// failDecrement, when set, is returned by DecrementSeats after the
	// booking row was inserted.
	failDecrement error
	txCount       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		restaurants: map[uint64]*model.Restaurant{},
		bookings:    map[uint64]*model.Booking{},
		users:       map[uint64]model.UserSummary{},
		base:        time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		locks:       map[string]chan struct{}{},
	}
}

func (s *fakeStore) addRestaurant(id uint64, total, available uint32) {
	s.restaurants[id] = &model.Restaurant{
		ID: id, Name: "Restaurant", Location: "Downtown", Cuisine: []string{"Fusion"},
		TotalSeats: total, SeatsAvailable: available, CreatedAt: s.base, UpdatedAt: s.base,
	}
}

func (s *fakeStore) addUser(id uint64, name, email string) {
	s.users[id] = model.UserSummary{ID: id, Name: name, Email: email}
}

func (s *fakeStore) seats(id uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restaurants[id].SeatsAvailable
}

func (s *fakeStore) activeCount(userID, restaurantID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.UserID == userID && b.RestaurantID == restaurantID && b.Status == model.BookingActive {
			n++
		}
	}
	return n
}

func (s *fakeStore) transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

func (s *fakeStore) lockChan(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.InventoryTx) error) error {
	s.mu.Lock()
	s.txCount++
	s.mu.Unlock()

	tx := &fakeTx{s: s, held: map[string]bool{}}
	err := fn(ctx, tx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
	}
	tx.release()
	return err
}

func (s *fakeStore) FindActiveBooking(_ context.Context, userID, restaurantID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.UserID == userID && b.RestaurantID == restaurantID && b.Status == model.BookingActive {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListBookingsByUser(_ context.Context, userID uint64) ([]model.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.BookingDetail{}
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		out = append(out, model.BookingDetail{Booking: *b, Restaurant: *s.restaurants[b.RestaurantID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type fakeTx struct {
	s    *fakeStore
	held map[string]bool
	undo []func()
}

func (t *fakeTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	select {
	case t.s.lockChan(key) <- struct{}{}:
		t.held[key] = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *fakeTx) release() {
	for key := range t.held {
		<-t.s.lockChan(key)
	}
	t.held = nil
}

func (t *fakeTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func restaurantKey(id uint64) string { return "restaurant:" + strconv.FormatUint(id, 10) }
func bookingKey(id uint64) string    { return "booking:" + strconv.FormatUint(id, 10) }

func (t *fakeTx) RestaurantForUpdate(ctx context.Context, id uint64) (*model.Restaurant, error) {
	t.s.mu.Lock()
	_, ok := t.s.restaurants[id]
	t.s.mu.Unlock()
	if !ok {
		return nil, repository.ErrRestaurantNotFound
	}
	if err := t.lock(ctx, restaurantKey(id)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cp := *t.s.restaurants[id]
	return &cp, nil
}

// ActiveBookingForUpdate relies on the restaurant lock the caller already
// holds for serialization.
func (t *fakeTx) ActiveBookingForUpdate(ctx context.Context, userID, restaurantID uint64) (*model.Booking, error) {
	return t.s.FindActiveBooking(ctx, userID, restaurantID)
}

func (t *fakeTx) InsertBooking(_ context.Context, b *model.Booking) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, cur := range t.s.bookings {
		if cur.UserID == b.UserID && cur.RestaurantID == b.RestaurantID && cur.Status == model.BookingActive {
			return repository.ErrDuplicateActive
		}
	}
	t.s.nextID++
	b.ID = t.s.nextID
	b.Status = model.BookingActive
	b.CreatedAt = t.s.base.Add(time.Duration(b.ID) * time.Minute)
	b.UpdatedAt = b.CreatedAt
	cp := *b
	t.s.bookings[b.ID] = &cp
	id := b.ID
	t.undo = append(t.undo, func() { delete(t.s.bookings, id) })
	return nil
}

func (t *fakeTx) DecrementSeats(ctx context.Context, restaurantID uint64, n uint32) error {
	if t.s.failDecrement != nil {
		return t.s.failDecrement
	}
	if err := t.lock(ctx, restaurantKey(restaurantID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r := t.s.restaurants[restaurantID]
	if r.SeatsAvailable < n {
		return repository.ErrInsufficientSeats
	}
	r.SeatsAvailable -= n
	t.undo = append(t.undo, func() { r.SeatsAvailable += n })
	return nil
}

func (t *fakeTx) IncrementSeats(ctx context.Context, restaurantID uint64, n uint32) error {
	if err := t.lock(ctx, restaurantKey(restaurantID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r := t.s.restaurants[restaurantID]
	if r.SeatsAvailable+n > r.TotalSeats {
		return repository.ErrSeatOverflow
	}
	r.SeatsAvailable += n
	t.undo = append(t.undo, func() { r.SeatsAvailable -= n })
	return nil
}

func (t *fakeTx) BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	t.s.mu.Lock()
	_, ok := t.s.bookings[id]
	t.s.mu.Unlock()
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	if err := t.lock(ctx, bookingKey(id)); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cp := *t.s.bookings[id]
	return &cp, nil
}

func (t *fakeTx) MarkCancelled(_ context.Context, id uint64, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b := t.s.bookings[id]
	if b == nil || b.Status != model.BookingActive {
		return repository.ErrConflict
	}
	prev := *b
	b.Status = model.BookingCancelled
	b.CancelledAt = &at
	b.UpdatedAt = at
	t.undo = append(t.undo, func() { *b = prev })
	return nil
}

func (t *fakeTx) UserSummary(_ context.Context, id uint64) (model.UserSummary, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[id]
	if !ok {
		return model.UserSummary{}, repository.ErrUserNotFound
	}
	return u, nil
}

var errInjected = errors.New("injected storage failure")
