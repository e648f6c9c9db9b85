package handler

import (
    "context"
    "database/sql"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/repository"
)

// EventHandler serves the public event catalog and the waiting page
// the client polls before the sale opens.
type EventHandler struct {
    Events *repository.EventRepo
}

func NewEventHandler(e *repository.EventRepo) *EventHandler {
    return &EventHandler{Events: e}
}

func eventIDParam(c echo.Context) (uint64, error) {
    return strconv.ParseUint(c.Param("id"), 10, 64)
}

// List returns upcoming events.  The response is a natural target for
// the response cache middleware since the catalog changes rarely.
func (h *EventHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    events, err := h.Events.ListUpcoming(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list events failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// Get returns a single event by id.
func (h *EventHandler) Get(c echo.Context) error {
    id, err := eventIDParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load event failed"})
    }
    return c.JSON(http.StatusOK, ev)
}

// Waiting implements the pre-sale waiting page.  Until sales_open_at
// the client shows a countdown and polls; once the countdown reaches
// zero it may enter the queue.
func (h *EventHandler) Waiting(c echo.Context) error {
    id, err := eventIDParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load event failed"})
    }

    now := time.Now().UTC()
    countdown := int64(0)
    if ev.SalesOpenAt.After(now) {
        countdown = int64(time.Until(ev.SalesOpenAt).Seconds())
    }
    return c.JSON(http.StatusOK, echo.Map{
        "event_id":          ev.ID,
        "name":              ev.Name,
        "sales_open_at":     ev.SalesOpenAt,
        "can_enter_queue":   countdown == 0,
        "countdown_seconds": countdown,
    })
}
