package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/utils"
)

type stubUsers struct{}

func (stubUsers) Create(context.Context, string, string, string, string, int) (uint64, error) {
	return 1, nil
}
func (stubUsers) GetByEmail(context.Context, string) (model.User, error) { return model.User{}, nil }
func (stubUsers) GetByID(context.Context, uint64) (model.User, error)    { return model.User{ID: 1}, nil }

type stubTokens struct{}

func (stubTokens) StoreRefresh(context.Context, uint64, string, time.Time) error { return nil }
func (stubTokens) Rotate(context.Context, string, string, time.Time) (uint64, error) {
	return 1, nil
}
func (stubTokens) RevokeByHash(context.Context, string) error       { return nil }
func (stubTokens) RevokeAllForUser(context.Context, uint64) error { return nil }

type stubRestaurants struct{}

func (stubRestaurants) Create(context.Context, *model.Restaurant) error { return nil }
func (stubRestaurants) GetByID(_ context.Context, id uint64) (*model.Restaurant, error) {
	return &model.Restaurant{ID: id, Cuisine: []string{}}, nil
}
func (stubRestaurants) ListAll(context.Context) ([]model.Restaurant, error) {
	return []model.Restaurant{}, nil
}

type stubReservations struct{}

func (stubReservations) Reserve(_ context.Context, in service.ReserveInput) (*model.BookingDetail, error) {
	return &model.BookingDetail{Booking: model.Booking{ID: 1, UserID: in.UserID, Status: model.BookingActive}}, nil
}
func (stubReservations) Cancel(context.Context, uint64) (*model.BookingDetail, error) {
	return &model.BookingDetail{}, nil
}
func (stubReservations) CancelForUser(context.Context, uint64, uint64) (*model.BookingDetail, error) {
	return &model.BookingDetail{}, nil
}
func (stubReservations) ListForUser(context.Context, uint64) (*service.UserBookings, error) {
	return &service.UserBookings{}, nil
}

const secret = "router-secret"

func newTestRouter() http.Handler {
	log := zap.NewNop()
	return New(Deps{
		Log:          log,
		JWTSecret:    secret,
		Auth:         handler.NewAuthHandler(config.Config{JWTSecret: secret}, stubUsers{}, stubTokens{}, log),
		Restaurants:  handler.NewRestaurantHandler(stubRestaurants{}, nil, log),
		Reservations: handler.NewReservationHandler(stubReservations{}, stubReservations{}, nil, log),
	})
}

func TestNew_RegistersRoutes(t *testing.T) {
	e := New(Deps{
		Log:          zap.NewNop(),
		JWTSecret:    secret,
		Auth:         handler.NewAuthHandler(config.Config{}, stubUsers{}, stubTokens{}, nil),
		Restaurants:  handler.NewRestaurantHandler(stubRestaurants{}, nil, nil),
		Reservations: handler.NewReservationHandler(stubReservations{}, stubReservations{}, nil, nil),
	})
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"POST /v1/auth/register",
		"POST /v1/auth/login",
		"POST /v1/auth/refresh",
		"POST /v1/auth/logout",
		"GET /v1/me",
		"GET /v1/restaurants",
		"GET /v1/restaurants/:id",
		"POST /v1/restaurants",
		"POST /v1/reservations",
		"DELETE /v1/reservations/:id",
		"DELETE /v1/reservations",
		"GET /v1/reservations/user/:userId",
		"GET /v1/my-reservations",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
}

func TestRouter_Access(t *testing.T) {
	h := newTestRouter()
	customer, err := utils.NewAccessToken(secret, 7, "c@example.com", model.RoleCustomer, 5)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK},
		{"catalogue is public", http.MethodGet, "/v1/restaurants", "", http.StatusOK},
		{"reservations need a token", http.MethodGet, "/v1/my-reservations", "", http.StatusUnauthorized},
		{"customer lists own", http.MethodGet, "/v1/my-reservations", customer.Token, http.StatusOK},
		{"customer cannot create restaurants", http.MethodPost, "/v1/restaurants", customer.Token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
