package middleware

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/model"
    "github.com/iliyamo/ticket-waitroom/internal/session"
)

// SessionAuth returns an Echo middleware that resolves the X-Session-ID
// header against the session registry and slides the idle TTL, so any
// request on a session-scoped route keeps the session alive.  Handlers
// access the resolved session via `c.Get("session")` and its id via
// `c.Get("session_id")`.  Malformed ids are rejected before touching
// Redis; unknown or expired ids get a 401 so clients know to start over
// at POST /v1/sessions.
func SessionAuth(reg *session.Registry) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := c.Request().Header.Get("X-Session-ID")
            if !session.ValidID(id) {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or malformed session id"})
            }
            s, err := reg.Get(c.Request().Context(), id)
            if err != nil {
                if errors.Is(err, session.ErrSessionNotFound) {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown or expired session"})
                }
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session lookup failed"})
            }
            if err := reg.Touch(c.Request().Context(), id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
                c.Logger().Warnf("session touch failed for %s: %v", id, err)
            }
            c.Set("session_id", id)
            c.Set("session", s)
            return next(c)
        }
    }
}

// SessionFrom retrieves the session stored by SessionAuth.
func SessionFrom(c echo.Context) model.Session {
    s, _ := c.Get("session").(model.Session)
    return s
}
