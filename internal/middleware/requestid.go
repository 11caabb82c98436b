package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// CtxRequestID is the context key holding the request id.
const CtxRequestID = "request_id"

// RequestID propagates an inbound X-Request-ID or assigns a fresh UUID,
// echoing it back on the response.
func RequestID() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := c.Request().Header.Get(echo.HeaderXRequestID)
            if id == "" || len(id) > 128 {
                id = uuid.NewString()
            }
            c.Set(CtxRequestID, id)
            c.Response().Header().Set(echo.HeaderXRequestID, id)
            return next(c)
        }
    }
}

// RequestLogger logs one line per request with zap.  Server errors are
// logged at ERROR, client errors at WARN and the rest at INFO.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let Echo's error handler write the response so the
                // status below is the one the client sees
                c.Error(err)
            }

            status := c.Response().Status
            fields := []zap.Field{
                zap.String("request_id", requestID(c)),
                zap.String("method", c.Request().Method),
                zap.String("route", c.Path()),
                zap.String("path", c.Request().URL.Path),
                zap.Int("status", status),
                zap.Duration("latency", time.Since(start)),
                zap.String("remote_ip", c.RealIP()),
                zap.String("user", identity(c)),
            }
            if err != nil {
                fields = append(fields, zap.Error(err))
            }
            switch {
            case status >= 500:
                log.Error("request", fields...)
            case status >= 400:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        }
    }
}

func requestID(c echo.Context) string {
    id, _ := c.Get(CtxRequestID).(string)
    return id
}
