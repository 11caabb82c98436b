package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/model"
)

// Deps is everything the route table needs.  Limiter and Cache may be
// nil, in which case their middleware is a pass-through.
type Deps struct {
	Log          *zap.Logger
	JWTSecret    string
	Health       echo.HandlerFunc
	Auth         *handler.AuthHandler
	Restaurants  *handler.RestaurantHandler
	Reservations *handler.ReservationHandler
	Limiter      *middleware.RateLimiter
	Cache        *middleware.ResponseCache
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(
		middleware.RequestID(),
		middleware.RequestLogger(d.Log),
		middleware.Recover(d.Log),
	)

	RegisterRoutes(e, d.Health)
	RegisterAuth(e, d.Auth, d.JWTSecret, d.Limiter)
	RegisterRestaurants(e, d.Restaurants, d.JWTSecret, d.Limiter, d.Cache)
	RegisterReservations(e, d.Reservations, d.JWTSecret, d.Limiter)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	if health == nil {
		health = handler.Health(nil)
	}
	e.GET("/healthz", health)
}

// RegisterAuth registers authentication routes.  Register, login, refresh
// and logout live under /v1/auth without a session; /v1/me requires one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, rl *middleware.RateLimiter) {
	g := e.Group("/v1/auth", rl.Middleware())
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout takes either a refresh token in the body or a bearer header,
	// so it stays outside JWTAuth
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterRestaurants registers the catalogue.  Reads are public and
// cached; creation requires the ADMIN role.
func RegisterRestaurants(e *echo.Echo, h *handler.RestaurantHandler, jwtSecret string, rl *middleware.RateLimiter, cache *middleware.ResponseCache) {
	pub := e.Group("/v1/restaurants", rl.Middleware(), cache.Middleware())
	pub.GET("", h.List)
	pub.GET("/:id", h.Get)

	e.POST("/v1/restaurants", h.Create,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
}

// RegisterReservations registers booking endpoints.  All of them act on
// behalf of the authenticated principal.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rl *middleware.RateLimiter) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
		rl.Middleware(),
	)
	g.POST("/reservations", h.Create)
	g.DELETE("/reservations/:id", h.Cancel)
	g.DELETE("/reservations", h.CancelByBody)
	g.GET("/reservations/user/:userId", h.ListForUser)
	g.GET("/my-reservations", h.ListMine)
}
