package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/model"
    "github.com/iliyamo/ticket-waitroom/internal/queue"
    "github.com/iliyamo/ticket-waitroom/internal/repository"
    "github.com/iliyamo/ticket-waitroom/internal/session"
)

// QueueHandler exposes the admission queue to clients.  Every endpoint
// is session scoped: the session middleware resolves X-Session-ID
// before these handlers run.
type QueueHandler struct {
    Queue    *queue.AdmissionQueue
    Events   *repository.EventRepo
    Sessions *session.Registry
}

func NewQueueHandler(q *queue.AdmissionQueue, e *repository.EventRepo, s *session.Registry) *QueueHandler {
    return &QueueHandler{Queue: q, Events: e, Sessions: s}
}

type enterReq struct {
    EventID uint64 `json:"event_id"`
}

// Enter puts the session at the back of the event's queue.  Entering
// is idempotent: re-entering returns the position already held, so a
// retried request never loses the client's place.
func (h *QueueHandler) Enter(c echo.Context) error {
    var req enterReq
    if err := c.Bind(&req); err != nil || req.EventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id required"})
    }
    sid, _ := c.Get("session_id").(string)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, req.EventID)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load event failed"})
    }
    if ev.SalesOpenAt.After(time.Now().UTC()) {
        return c.JSON(http.StatusConflict, echo.Map{"error": "sales not open yet"})
    }

    pos, err := h.Queue.Enter(ctx, req.EventID, sid)
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "queue unavailable"})
    }
    if err := h.Sessions.SetState(ctx, sid, model.SessionWaiting, req.EventID, ""); err != nil {
        c.Logger().Warnf("session state update failed for %s: %v", sid, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "event_id": req.EventID,
        "position": pos,
    })
}

// Position reports where the session stands.  Clients poll this while
// on the queue page; once can_proceed flips to true they move on to
// seat selection.
func (h *QueueHandler) Position(c echo.Context) error {
    eventID, err := strconv.ParseUint(c.QueryParam("event_id"), 10, 64)
    if err != nil || eventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id required"})
    }
    sid, _ := c.Get("session_id").(string)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    status, err := h.Queue.Position(ctx, eventID, sid)
    if err != nil {
        if errors.Is(err, queue.ErrNotInQueue) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "not in queue"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "queue unavailable"})
    }
    return c.JSON(http.StatusOK, status)
}

// Leave removes the session from the queue.  Leaving after admission
// does not hand the slot to anyone; freed capacity is only reopened
// by the admission controller.
func (h *QueueHandler) Leave(c echo.Context) error {
    var req enterReq
    if err := c.Bind(&req); err != nil || req.EventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id required"})
    }
    sid, _ := c.Get("session_id").(string)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Queue.Exit(ctx, req.EventID, sid); err != nil {
        if errors.Is(err, queue.ErrNotInQueue) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "not in queue"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "queue unavailable"})
    }
    if err := h.Sessions.SetState(ctx, sid, model.SessionUnqueued, req.EventID, ""); err != nil {
        c.Logger().Warnf("session state update failed for %s: %v", sid, err)
    }
    return c.NoContent(http.StatusNoContent)
}
