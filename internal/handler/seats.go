package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/booking"
    "github.com/iliyamo/ticket-waitroom/internal/ledger"
    "github.com/iliyamo/ticket-waitroom/internal/middleware"
    "github.com/iliyamo/ticket-waitroom/internal/model"
)

// SeatHandler serves the seat map and the hold endpoints.  Listing and
// locking are restricted to sessions the admission controller has let
// through; sessions still waiting get a 403 and keep polling the
// queue.
type SeatHandler struct {
    Ledger *ledger.Ledger
    Orch   *booking.Orchestrator
}

func NewSeatHandler(l *ledger.Ledger, o *booking.Orchestrator) *SeatHandler {
    return &SeatHandler{Ledger: l, Orch: o}
}

// admitted reports whether the session has passed the queue for seat
// selection.  awaiting_payment still counts: the client may want the
// seat map visible while it pays.
func admitted(s model.Session) bool {
    switch s.State {
    case model.SessionSelecting, model.SessionAwaitingPayment, model.SessionConfirmed:
        return true
    }
    return false
}

type seatView struct {
    SeatID     string `json:"seat_id"`
    Row        string `json:"row"`
    Number     uint32 `json:"number"`
    PriceCents uint32 `json:"price_cents"`
    Status     string `json:"status"`
    Mine       bool   `json:"mine,omitempty"`
}

// List returns the live seat map for an event.  Holds owned by the
// calling session are flagged so the client can render them apart
// from seats held by strangers.
func (h *SeatHandler) List(c echo.Context) error {
    eventID, err := eventIDParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    s := middleware.SessionFrom(c)
    if !admitted(s) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not admitted"})
    }

    seats, err := h.Ledger.Snapshot(eventID)
    if err != nil {
        if errors.Is(err, ledger.ErrEventNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seat map failed"})
    }
    views := make([]seatView, 0, len(seats))
    for _, seat := range seats {
        views = append(views, seatView{
            SeatID:     seat.ID,
            Row:        seat.Row,
            Number:     seat.Number,
            PriceCents: seat.PriceCents,
            Status:     string(seat.Status),
            Mine:       seat.HeldBy == s.ID && seat.Status != model.SeatAvailable,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "seats": views})
}

type lockReq struct {
    EventID uint64 `json:"event_id"`
    SeatID  string `json:"seat_id"`
}

// Lock places an exclusive hold on a seat.  Exactly one concurrent
// caller wins; everyone else gets a 409 and picks another seat.  The
// response carries locked_until, after which the hold is reclaimed
// unless the booking is confirmed and paid first.
func (h *SeatHandler) Lock(c echo.Context) error {
    var req lockReq
    if err := c.Bind(&req); err != nil || req.EventID == 0 || req.SeatID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and seat_id required"})
    }
    s := middleware.SessionFrom(c)
    if !admitted(s) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not admitted"})
    }

    res, err := h.Orch.RequestHold(c.Request().Context(), s.ID, req.EventID, req.SeatID)
    if err != nil {
        switch {
        case errors.Is(err, ledger.ErrEventNotFound), errors.Is(err, ledger.ErrSeatNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
        case errors.Is(err, ledger.ErrSeatUnavailable):
            return c.JSON(http.StatusConflict, echo.Map{"error": "seat unavailable"})
        case errors.Is(err, ledger.ErrAlreadyHolding):
            return c.JSON(http.StatusConflict, echo.Map{"error": "already holding a seat"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lock failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "event_id":     res.EventID,
        "seat_id":      res.SeatID,
        "locked_until": res.ExpiresAt.Unix(),
    })
}

// Release gives a held seat back voluntarily.
func (h *SeatHandler) Release(c echo.Context) error {
    var req lockReq
    if err := c.Bind(&req); err != nil || req.EventID == 0 || req.SeatID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and seat_id required"})
    }
    s := middleware.SessionFrom(c)

    if err := h.Orch.ReleaseHold(c.Request().Context(), s.ID, req.EventID, req.SeatID); err != nil {
        switch {
        case errors.Is(err, ledger.ErrEventNotFound), errors.Is(err, ledger.ErrSeatNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
        case errors.Is(err, ledger.ErrNotHolder), errors.Is(err, ledger.ErrSeatUnavailable):
            return c.JSON(http.StatusConflict, echo.Map{"error": "not holding this seat"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "release failed"})
    }
    return c.NoContent(http.StatusNoContent)
}
