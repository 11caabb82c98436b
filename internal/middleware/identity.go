package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// identity returns the authenticated user id as a string for use in
// rate-limit keys and logs, or "anon" when the request carries no
// principal.
func identity(c echo.Context) string {
    if uid, ok := c.Get(CtxUserID).(uint64); ok && uid != 0 {
        return strconv.FormatUint(uid, 10)
    }
    return "anon"
}
