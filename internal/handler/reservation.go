package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/service"
)

// Reserver runs the reservation protocol.
type Reserver interface {
    Reserve(ctx context.Context, in service.ReserveInput) (*model.BookingDetail, error)
    Cancel(ctx context.Context, bookingID uint64) (*model.BookingDetail, error)
    CancelForUser(ctx context.Context, bookingID, userID uint64) (*model.BookingDetail, error)
}

// BookingLister answers the partitioned booking listing.
type BookingLister interface {
    ListForUser(ctx context.Context, userID uint64) (*service.UserBookings, error)
}

// ReservationHandler exposes reserve, cancel and list.  Every route sits
// behind JWTAuth; the principal on the context is the acting user.
type ReservationHandler struct {
    Reservations Reserver
    Bookings     BookingLister
    Cache        CachePurger
    Log          *zap.Logger
}

func NewReservationHandler(r Reserver, b BookingLister, cache CachePurger, log *zap.Logger) *ReservationHandler {
    if r == nil || b == nil {
        panic("nil service passed to NewReservationHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &ReservationHandler{Reservations: r, Bookings: b, Cache: cache, Log: log}
}

type reserveReq struct {
    RestaurantID   uint64  `json:"restaurantId"`
    UserID         *uint64 `json:"userId"`
    NumberOfGuests int64   `json:"numberOfGuests"`
}

type cancelReq struct {
    BookingID uint64 `json:"bookingId" validate:"required"`
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
    uid, _, okp := principal(c)
    if !okp {
        return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
    }
    var req reserveReq
    if err := bind(c, &req); err != nil {
        return writeError(c, h.Log, err)
    }
    if req.UserID != nil && *req.UserID != uid {
        return fail(c, http.StatusForbidden, "FORBIDDEN", "userId does not match the authenticated user")
    }

    ctx := c.Request().Context()
    detail, err := h.Reservations.Reserve(ctx, service.ReserveInput{
        RestaurantID:   req.RestaurantID,
        UserID:         uid,
        NumberOfGuests: req.NumberOfGuests,
    })
    if err != nil {
        return writeError(c, h.Log, err)
    }
    purge(ctx, h.Cache, h.Log)
    return created(c, detail)
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return h.cancel(c, id)
}

// CancelByBody handles DELETE /v1/reservations with {"bookingId": n}.
func (h *ReservationHandler) CancelByBody(c echo.Context) error {
    var req cancelReq
    if err := bind(c, &req); err != nil {
        return writeError(c, h.Log, err)
    }
    return h.cancel(c, req.BookingID)
}

// cancel lets an admin cancel any booking; everyone else only their own.
func (h *ReservationHandler) cancel(c echo.Context, bookingID uint64) error {
    uid, role, okp := principal(c)
    if !okp {
        return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
    }
    ctx := c.Request().Context()

    var (
        detail *model.BookingDetail
        err    error
    )
    if role == model.RoleAdmin {
        detail, err = h.Reservations.Cancel(ctx, bookingID)
    } else {
        detail, err = h.Reservations.CancelForUser(ctx, bookingID, uid)
    }
    if err != nil {
        return writeError(c, h.Log, err)
    }
    purge(ctx, h.Cache, h.Log)
    return ok(c, detail)
}

// ListForUser handles GET /v1/reservations/user/:userId.  Users may only
// list their own bookings unless they are an admin.
func (h *ReservationHandler) ListForUser(c echo.Context) error {
    uid, role, okp := principal(c)
    if !okp {
        return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
    }
    target, err := pathID(c, "userId")
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if target != uid && role != model.RoleAdmin {
        return fail(c, http.StatusForbidden, "FORBIDDEN", "cannot list another user's reservations")
    }
    return h.list(c, target)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
    uid, _, okp := principal(c)
    if !okp {
        return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
    }
    return h.list(c, uid)
}

func (h *ReservationHandler) list(c echo.Context, userID uint64) error {
    views, err := h.Bookings.ListForUser(c.Request().Context(), userID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return ok(c, views)
}
