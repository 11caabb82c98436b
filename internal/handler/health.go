package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health answers load-balancer probes.  With a database attached it also
// checks that MySQL responds, returning 503 when it does not.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                return fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
            }
        }
        return ok(c, echo.Map{"status": "ok"})
    }
}
