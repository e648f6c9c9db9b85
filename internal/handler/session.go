package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/middleware"
    "github.com/iliyamo/ticket-waitroom/internal/session"
)

// SessionHandler issues and inspects the opaque waiting-room sessions
// every other endpoint is scoped to.
type SessionHandler struct {
    Sessions *session.Registry
}

func NewSessionHandler(s *session.Registry) *SessionHandler {
    return &SessionHandler{Sessions: s}
}

// Create mints a fresh anonymous session.  The returned id is the only
// credential the client needs for the queue and seat flow; pass it as
// the X-Session-ID header on subsequent calls.
func (h *SessionHandler) Create(c echo.Context) error {
    s, err := h.Sessions.Create(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session store unavailable"})
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "session_id": s.ID,
        "state":      s.State,
        "expires_at": s.ExpiresAt,
    })
}

// Get returns the current session record, already resolved by the
// session middleware.
func (h *SessionHandler) Get(c echo.Context) error {
    s := middleware.SessionFrom(c)
    return c.JSON(http.StatusOK, echo.Map{
        "session_id": s.ID,
        "state":      s.State,
        "event_id":   s.EventID,
        "booking_id": s.BookingID,
        "expires_at": s.ExpiresAt,
    })
}

// Delete discards the session, releasing nothing by itself; holds and
// bookings lapse through their own deadlines.
func (h *SessionHandler) Delete(c echo.Context) error {
    id, _ := c.Get("session_id").(string)
    if err := h.Sessions.Delete(c.Request().Context(), id); err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session store unavailable"})
    }
    return c.NoContent(http.StatusNoContent)
}
