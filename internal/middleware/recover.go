package middleware

import (
    "fmt"
    "net/http"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"
)

// Recover turns a handler panic into a 500 envelope and logs the stack
// through zap instead of Echo's default logger.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
    return echomw.RecoverWithConfig(echomw.RecoverConfig{
        DisableStackAll: true,
        LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
            log.Error("panic recovered",
                zap.String("request_id", requestID(c)),
                zap.String("path", c.Request().URL.Path),
                zap.Error(err),
                zap.ByteString("stack", stack),
            )
            if c.Response().Committed {
                return nil
            }
            return deny(c, http.StatusInternalServerError, "INTERNAL", fmt.Sprintf("internal error (request %s)", requestID(c)))
        },
    })
}
