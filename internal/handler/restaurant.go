package handler

import (
    "context"
    "errors"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/repository"
    "github.com/iliyamo/table-reservation/internal/service"
)

// RestaurantStore is the slice of repository.RestaurantRepo used here.
type RestaurantStore interface {
    Create(ctx context.Context, rest *model.Restaurant) error
    GetByID(ctx context.Context, id uint64) (*model.Restaurant, error)
    ListAll(ctx context.Context) ([]model.Restaurant, error)
}

// CachePurger drops cached catalogue responses after seat counts change.
type CachePurger interface {
    Purge(ctx context.Context) error
}

// RestaurantHandler serves the public catalogue and admin creation.
type RestaurantHandler struct {
    Restaurants RestaurantStore
    Cache       CachePurger
    Log         *zap.Logger
}

func NewRestaurantHandler(r RestaurantStore, cache CachePurger, log *zap.Logger) *RestaurantHandler {
    if r == nil {
        panic("nil repository passed to NewRestaurantHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &RestaurantHandler{Restaurants: r, Cache: cache, Log: log}
}

type createRestaurantReq struct {
    Name           string   `json:"name" validate:"required,max=255"`
    Location       string   `json:"location" validate:"required,max=255"`
    Cuisine        []string `json:"cuisine" validate:"required,min=1,dive,required,max=64"`
    TotalSeats     uint32   `json:"totalSeats" validate:"required,gt=0"`
    SeatsAvailable *uint32  `json:"seatsAvailable"`
}

// List handles GET /v1/restaurants.
func (h *RestaurantHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    list, err := h.Restaurants.ListAll(ctx)
    if err != nil {
        return writeError(c, h.Log, &service.StorageError{Op: "list restaurants", Err: err})
    }
    return ok(c, echo.Map{"restaurants": list, "count": len(list)})
}

// Get handles GET /v1/restaurants/:id.
func (h *RestaurantHandler) Get(c echo.Context) error {
    id, err := pathID(c, "id")
    if err != nil {
        return writeError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rest, err := h.Restaurants.GetByID(ctx, id)
    if errors.Is(err, repository.ErrRestaurantNotFound) {
        return writeError(c, h.Log, &service.NotFoundError{Resource: "restaurant", ID: id})
    }
    if err != nil {
        return writeError(c, h.Log, &service.StorageError{Op: "get restaurant", Err: err})
    }
    return ok(c, rest)
}

// Create handles POST /v1/restaurants (ADMIN).  seatsAvailable defaults to
// totalSeats when omitted.
func (h *RestaurantHandler) Create(c echo.Context) error {
    var req createRestaurantReq
    if err := bind(c, &req); err != nil {
        return writeError(c, h.Log, err)
    }
    rest := &model.Restaurant{
        Name:           req.Name,
        Location:       req.Location,
        Cuisine:        req.Cuisine,
        TotalSeats:     req.TotalSeats,
        SeatsAvailable: req.TotalSeats,
    }
    if req.SeatsAvailable != nil {
        rest.SeatsAvailable = *req.SeatsAvailable
    }
    if err := rest.Validate(); err != nil {
        return writeError(c, h.Log, &service.ValidationError{Field: "restaurant", Reason: err.Error()})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Restaurants.Create(ctx, rest); err != nil {
        return writeError(c, h.Log, &service.StorageError{Op: "create restaurant", Err: err})
    }
    purge(ctx, h.Cache, h.Log)
    return created(c, rest)
}

// purge clears the catalogue cache.  A failure only delays freshness until
// the entries expire, so it is logged and ignored.
func purge(ctx context.Context, cache CachePurger, log *zap.Logger) {
    if cache == nil {
        return
    }
    if err := cache.Purge(ctx); err != nil {
        log.Warn("cache purge failed", zap.Error(err))
    }
}
