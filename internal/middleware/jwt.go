package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/table-reservation/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id" // uint64
    CtxEmail  = "email"   // string
    CtxRole   = "role"    // string
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the authenticated principal into the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers
// read the principal via c.Get(CtxUserID), c.Get(CtxEmail) and
// c.Get(CtxRole) and trust it without re-validating credentials.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
            }
            // ParseAccessToken has already checked that sub is numeric.
            uid, _ := claims.UserID()

            c.Set(CtxUserID, uid)
            c.Set(CtxEmail, claims.Email)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}

// deny writes the standard error envelope used across the API.
func deny(c echo.Context, status int, code, msg string) error {
    return c.JSON(status, echo.Map{
        "success": false,
        "error":   echo.Map{"code": code, "message": msg},
    })
}
