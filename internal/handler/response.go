package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/table-reservation/internal/middleware"
    "github.com/iliyamo/table-reservation/internal/service"
)

// Response is the envelope every JSON endpoint writes.
type Response struct {
    Success bool       `json:"success"`
    Data    any        `json:"data,omitempty"`
    Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
    Code    string `json:"code"`
    Message string `json:"message"`
}

func ok(c echo.Context, data any) error {
    return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c echo.Context, data any) error {
    return c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func fail(c echo.Context, status int, code, msg string) error {
    return c.JSON(status, Response{Success: false, Error: &ErrorBody{Code: code, Message: msg}})
}

// writeError maps a service error onto its HTTP status.  Storage errors
// are logged and reported without internal detail.
func writeError(c echo.Context, log *zap.Logger, err error) error {
    switch service.Kind(err) {
    case service.KindValidation:
        return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
    case service.KindNotFound:
        return fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
    case service.KindInsufficientCapacity:
        return fail(c, http.StatusConflict, "INSUFFICIENT_CAPACITY", err.Error())
    case service.KindDuplicate:
        return fail(c, http.StatusConflict, "DUPLICATE_BOOKING", err.Error())
    case service.KindConflict:
        return fail(c, http.StatusConflict, "CONFLICT", err.Error())
    case service.KindForbidden:
        return fail(c, http.StatusForbidden, "FORBIDDEN", "booking belongs to another user")
    }
    rid, _ := c.Get(middleware.CtxRequestID).(string)
    log.Error("request failed",
        zap.String("request_id", rid),
        zap.String("path", c.Request().URL.Path),
        zap.Error(err))
    if errors.Is(err, context.DeadlineExceeded) {
        return fail(c, http.StatusServiceUnavailable, "TIMEOUT", "request timed out")
    }
    return fail(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

// principal returns the authenticated user id and role placed on the
// context by middleware.JWTAuth.
func principal(c echo.Context) (uint64, string, bool) {
    uid, ok := c.Get(middleware.CtxUserID).(uint64)
    if !ok || uid == 0 {
        return 0, "", false
    }
    role, _ := c.Get(middleware.CtxRole).(string)
    return uid, role, true
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, &service.ValidationError{Field: name, Reason: "must be a positive integer"}
    }
    return id, nil
}
