package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
)

func TestListForUser_EmptyViewsSerializeAsArrays(t *testing.T) {
	store := newFakeStore()
	out, err := NewQueryService(store).ListForUser(context.Background(), 77)
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":[],"active":[],"completed":[],"cancelled":[],"count":0}`, string(raw))
}

func TestListForUser_RequiresUser(t *testing.T) {
	_, err := NewQueryService(newFakeStore()).ListForUser(context.Background(), 0)
	assert.Equal(t, KindValidation, Kind(err))
}

func TestPartition_PreservesOrder(t *testing.T) {
	all := []model.BookingDetail{
		{Booking: model.Booking{ID: 5, Status: model.BookingActive}},
		{Booking: model.Booking{ID: 4, Status: model.BookingCompleted}},
		{Booking: model.Booking{ID: 3, Status: model.BookingCancelled}},
		{Booking: model.Booking{ID: 2, Status: model.BookingCompleted}},
		{Booking: model.Booking{ID: 1, Status: model.BookingCancelled}},
	}
	out := partition(all)

	ids := func(ds []model.BookingDetail) []uint64 {
		r := []uint64{}
		for _, d := range ds {
			r = append(r, d.ID)
		}
		return r
	}
	assert.Equal(t, []uint64{5, 4, 3, 2, 1}, ids(out.All))
	assert.Equal(t, []uint64{5}, ids(out.Active))
	assert.Equal(t, []uint64{4, 2}, ids(out.Completed))
	assert.Equal(t, []uint64{3, 1}, ids(out.Cancelled))
	assert.Equal(t, 5, out.Count)
}

type failingListStore struct{ *fakeStore }

func (failingListStore) ListBookingsByUser(context.Context, uint64) ([]model.BookingDetail, error) {
	return nil, errors.New("read timeout")
}

func TestListForUser_StorageFailure(t *testing.T) {
	_, err := NewQueryService(failingListStore{newFakeStore()}).ListForUser(context.Background(), 1)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list bookings", se.Op)
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{&ValidationError{Field: "x", Reason: "y"}, KindValidation},
		{&NotFoundError{Resource: "booking", ID: 1}, KindNotFound},
		{&InsufficientCapacityError{}, KindInsufficientCapacity},
		{&DuplicateBookingError{ExistingBookingID: 9}, KindDuplicate},
		{&ConflictError{Status: model.BookingCompleted}, KindConflict},
		{ErrForbidden, KindForbidden},
		{&StorageError{Op: "commit", Err: errors.New("broken pipe")}, KindStorage},
		{errors.New("anything else"), KindStorage},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Kind(tc.err), "%v", tc.err)
	}
}
