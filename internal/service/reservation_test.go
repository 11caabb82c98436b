package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyBookingCreated(ctx context.Context, email string, n BookingNotice) error {
	return m.Called(ctx, email, n).Error(0)
}

func (m *mockNotifier) NotifyBookingCancelled(ctx context.Context, email string, n BookingNotice) error {
	return m.Called(ctx, email, n).Error(0)
}

const (
	userA      = uint64(1)
	userB      = uint64(2)
	restaurant = uint64(100)
)

func newTestService(t *testing.T) (*ReservationService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.addRestaurant(restaurant, 10, 10)
	store.addUser(userA, "Alice", "alice@example.com")
	store.addUser(userB, "Bob", "bob@example.com")
	return NewReservationService(store, nil, zap.NewNop(), time.Second), store
}

func TestReserve_Scenario(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 4})
	require.NoError(t, err)
	assert.Equal(t, model.BookingActive, first.Status)
	assert.Equal(t, uint32(6), first.Restaurant.SeatsAvailable)
	require.NotNil(t, first.User)
	assert.Equal(t, "alice@example.com", first.User.Email)
	assert.Equal(t, uint32(6), store.seats(restaurant))

	_, err = svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 2})
	var dup *DuplicateBookingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingBookingID)

	_, err = svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userB, NumberOfGuests: 7})
	var ic *InsufficientCapacityError
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, uint32(6), ic.Available)
	assert.Equal(t, uint32(7), ic.Requested)

	cancelled, err := svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, uint32(10), store.seats(restaurant))

	second, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userB, NumberOfGuests: 7})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), second.Restaurant.SeatsAvailable)
	assert.Equal(t, uint32(3), store.seats(restaurant))

	// A cancelled booking does not block a fresh one for the same pair.
	again, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 1})
	require.NoError(t, err)

	list, err := NewQueryService(store).ListForUser(ctx, userA)
	require.NoError(t, err)
	require.Len(t, list.All, 2)
	assert.Equal(t, again.ID, list.All[0].ID)
	assert.Equal(t, first.ID, list.All[1].ID)
	require.Len(t, list.Cancelled, 1)
	assert.Equal(t, first.ID, list.Cancelled[0].ID)
	require.Len(t, list.Active, 1)
	assert.Empty(t, list.Completed)
	assert.Equal(t, 2, list.Count)
}

func TestReserve_ValidationNeverTouchesStorage(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    ReserveInput
		field string
	}{
		{"missing restaurant", ReserveInput{UserID: userA, NumberOfGuests: 2}, "restaurantId"},
		{"missing user", ReserveInput{RestaurantID: restaurant, NumberOfGuests: 2}, "userId"},
		{"zero guests", ReserveInput{RestaurantID: restaurant, UserID: userA}, "numberOfGuests"},
		{"negative guests", ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: -3}, "numberOfGuests"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Reserve(ctx, tc.in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, KindValidation, Kind(err))
		})
	}
	assert.Zero(t, store.transactions())
	assert.Equal(t, uint32(10), store.seats(restaurant))
}

func TestReserve_UnknownRestaurant(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: 999, UserID: userA, NumberOfGuests: 1})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "restaurant", nf.Resource)
	assert.Equal(t, uint64(999), nf.ID)
}

func TestReserve_RollsBackWhenDecrementFails(t *testing.T) {
	svc, store := newTestService(t)
	store.failDecrement = errInjected

	_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 2})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, KindStorage, Kind(err))

	assert.Zero(t, store.activeCount(userA, restaurant), "no orphan booking")
	assert.Equal(t, uint32(10), store.seats(restaurant))
}

func TestReserve_TimeoutRollsBack(t *testing.T) {
	store := newFakeStore()
	store.addRestaurant(restaurant, 10, 10)
	store.addUser(userA, "Alice", "alice@example.com")
	svc := NewReservationService(store, nil, zap.NewNop(), 50*time.Millisecond)

	// Another unit holds the restaurant row lock for longer than the timeout.
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.InventoryTx) error {
			if _, err := tx.RestaurantForUpdate(ctx, restaurant); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 2})
	close(release)
	<-done

	require.Error(t, err)
	assert.Equal(t, KindStorage, Kind(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, store.activeCount(userA, restaurant))
	assert.Equal(t, uint32(10), store.seats(restaurant))
}

func TestReserve_ConcurrentSamePair(t *testing.T) {
	svc, store := newTestService(t)
	const n = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 2})
			mu.Lock()
			defer mu.Unlock()
			var dup *DuplicateBookingError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &dup):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dups)
	assert.Equal(t, 1, store.activeCount(userA, restaurant))
	assert.Equal(t, uint32(8), store.seats(restaurant))
}

func TestReserve_ConcurrentLastSeats(t *testing.T) {
	store := newFakeStore()
	const k = 3
	store.addRestaurant(restaurant, 10, k)
	svc := NewReservationService(store, nil, zap.NewNop(), time.Second)

	const n = 12
	for u := uint64(1); u <= n; u++ {
		store.addUser(u, "Guest", "")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		short     int
	)
	start := make(chan struct{})
	for u := uint64(1); u <= n; u++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			<-start
			_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: user, NumberOfGuests: k})
			mu.Lock()
			defer mu.Unlock()
			var ic *InsufficientCapacityError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &ic):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, short)
	assert.Zero(t, store.seats(restaurant))
}

func TestCancel_Twice(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	b, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 4})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, model.BookingCancelled, ce.Status)
	assert.Contains(t, ce.Error(), "already cancelled")
	assert.Equal(t, uint32(10), store.seats(restaurant), "seats returned exactly once")
}

func TestCancel_ConcurrentTwice(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 4})
	require.NoError(t, err)

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Cancel(ctx, b.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, KindConflict, Kind(err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, uint32(10), store.seats(restaurant))
}

func TestCancel_CompletedBooking(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 2})
	require.NoError(t, err)

	store.mu.Lock()
	store.bookings[b.ID].Status = model.BookingCompleted
	store.mu.Unlock()

	_, err = svc.Cancel(ctx, b.ID)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, model.BookingCompleted, ce.Status)
	assert.Equal(t, uint32(8), store.seats(restaurant))
}

func TestCancel_NotFoundAndValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Cancel(context.Background(), 0)
	assert.Equal(t, KindValidation, Kind(err))

	_, err = svc.Cancel(context.Background(), 42)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "booking", nf.Resource)
}

func TestCancelForUser_OtherOwner(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 3})
	require.NoError(t, err)

	_, err = svc.CancelForUser(ctx, b.ID, userB)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindForbidden, Kind(err))
	assert.Equal(t, uint32(7), store.seats(restaurant))
	assert.Equal(t, 1, store.activeCount(userA, restaurant))

	_, err = svc.CancelForUser(ctx, b.ID, userA)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), store.seats(restaurant))
}

func TestReserve_NotifierFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.addRestaurant(restaurant, 10, 10)
	store.addUser(userA, "Alice", "alice@example.com")
	n := new(mockNotifier)
	svc := NewReservationService(store, n, zap.NewNop(), time.Second)

	n.On("NotifyBookingCreated", mock.Anything, "alice@example.com", mock.MatchedBy(func(bn BookingNotice) bool {
		return bn.UserName == "Alice" && bn.NumberOfGuests == 4 && bn.RestaurantName == "Restaurant" && bn.Status == "ACTIVE"
	})).Return(errors.New("smtp down")).Once()
	n.On("NotifyBookingCancelled", mock.Anything, "alice@example.com", mock.MatchedBy(func(bn BookingNotice) bool {
		return bn.CancelledAt != nil && bn.Status == "CANCELLED"
	})).Return(nil).Once()

	b, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 4})
	require.NoError(t, err)
	assert.Equal(t, uint32(6), store.seats(restaurant), "commit stands despite notifier failure")

	_, err = svc.Cancel(context.Background(), b.ID)
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestReserve_NotifierNotCalledOnFailure(t *testing.T) {
	store := newFakeStore()
	store.addRestaurant(restaurant, 2, 2)
	store.addUser(userA, "Alice", "alice@example.com")
	n := new(mockNotifier)
	svc := NewReservationService(store, n, zap.NewNop(), time.Second)

	_, err := svc.Reserve(context.Background(), ReserveInput{RestaurantID: restaurant, UserID: userA, NumberOfGuests: 5})
	assert.Equal(t, KindInsufficientCapacity, Kind(err))
	n.AssertNotCalled(t, "NotifyBookingCreated", mock.Anything, mock.Anything, mock.Anything)
}

func TestSeatInvariantUnderMixedLoad(t *testing.T) {
	store := newFakeStore()
	store.addRestaurant(restaurant, 10, 10)
	const users = 15
	for u := uint64(1); u <= users; u++ {
		store.addUser(u, "Guest", "")
	}
	svc := NewReservationService(store, nil, zap.NewNop(), time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := uint64(1); u <= users; u++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				b, err := svc.Reserve(ctx, ReserveInput{RestaurantID: restaurant, UserID: user, NumberOfGuests: int64(1 + (user+uint64(round))%3)})
				if err != nil {
					continue
				}
				if round%2 == 0 {
					_, _ = svc.Cancel(ctx, b.ID)
				}
			}
		}(u)
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	var held uint32
	active := map[uint64]int{}
	for _, b := range store.bookings {
		if b.Status == model.BookingActive {
			held += b.NumberOfGuests
			active[b.UserID]++
		}
	}
	r := store.restaurants[restaurant]
	assert.LessOrEqual(t, r.SeatsAvailable, r.TotalSeats)
	assert.Equal(t, r.TotalSeats-held, r.SeatsAvailable)
	for user, n := range active {
		assert.LessOrEqual(t, n, 1, "user %d has more than one active booking", user)
	}
}
