package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-waitroom/internal/booking"
    "github.com/iliyamo/ticket-waitroom/internal/ledger"
    "github.com/iliyamo/ticket-waitroom/internal/middleware"
    "github.com/iliyamo/ticket-waitroom/internal/model"
    "github.com/iliyamo/ticket-waitroom/internal/repository"
)

// BookingHandler drives a hold through payment to a final outcome.
// The payment outcome endpoint stands in for a gateway callback: the
// service never talks to a provider itself, it only reacts to the
// reported result.
type BookingHandler struct {
    Orch    *booking.Orchestrator
    Archive *repository.BookingRepo
}

func NewBookingHandler(o *booking.Orchestrator, a *repository.BookingRepo) *BookingHandler {
    return &BookingHandler{Orch: o, Archive: a}
}

type confirmReq struct {
    EventID uint64   `json:"event_id"`
    SeatIDs []string `json:"seat_ids"`
}

type bookingView struct {
    BookID      string   `json:"book_id"`
    PaymentID   string   `json:"payment_id,omitempty"`
    EventID     uint64   `json:"event_id"`
    SeatIDs     []string `json:"seat_ids"`
    AmountCents uint32   `json:"amount_cents"`
    State       string   `json:"state"`
    PayBy       int64    `json:"pay_by,omitempty"`
}

func viewOf(b model.Booking, withPayment bool) bookingView {
    v := bookingView{
        BookID:      b.ID,
        EventID:     b.EventID,
        SeatIDs:     b.SeatIDs,
        AmountCents: b.AmountCents,
        State:       string(b.State),
    }
    if withPayment {
        v.PaymentID = b.PaymentID
        v.PayBy = b.PaymentDeadline.Unix()
    }
    return v
}

// Confirm turns the session's active hold into a booking awaiting
// payment.  The response carries the payment id and amount the client
// needs for checkout, plus the deadline the outcome must arrive by.
func (h *BookingHandler) Confirm(c echo.Context) error {
    var req confirmReq
    if err := c.Bind(&req); err != nil || req.EventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id required"})
    }
    s := middleware.SessionFrom(c)

    b, err := h.Orch.Confirm(c.Request().Context(), s.ID, req.EventID, req.SeatIDs)
    if err != nil {
        if errors.Is(err, booking.ErrNoActiveHold) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "no active hold"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirm failed"})
    }
    return c.JSON(http.StatusCreated, viewOf(b, true))
}

type outcomeReq struct {
    PaymentID string `json:"payment_id"`
    Status    string `json:"status"` // success | failed
}

// PaymentOutcome records the gateway's verdict.  The booking id is the
// idempotency key: replaying the same outcome is harmless, flipping a
// decided booking is rejected.
func (h *BookingHandler) PaymentOutcome(c echo.Context) error {
    var req outcomeReq
    if err := c.Bind(&req); err != nil || req.PaymentID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id required"})
    }
    var outcome booking.PaymentOutcome
    switch req.Status {
    case string(booking.OutcomeSuccess):
        outcome = booking.OutcomeSuccess
    case string(booking.OutcomeFailure):
        outcome = booking.OutcomeFailure
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be success or failed"})
    }

    id, err := h.Orch.ResolvePaymentID(req.PaymentID)
    if err != nil {
        // Evicted from memory or pre-restart: the archive still
        // answers replayed callbacks for decided bookings.
        ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
        defer cancel()
        archived, aerr := h.Archive.GetByPaymentID(ctx, req.PaymentID)
        if aerr != nil {
            if aerr == sql.ErrNoRows {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown payment id"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load booking failed"})
        }
        if (outcome == booking.OutcomeSuccess && archived.State == model.BookingPaid) ||
            (outcome == booking.OutcomeFailure && archived.State == model.BookingFailed) {
            return c.JSON(http.StatusOK, viewOf(archived, false))
        }
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking already finalized", "state": string(archived.State)})
    }
    b, err := h.Orch.ConfirmPayment(c.Request().Context(), id, outcome)
    if err != nil {
        switch {
        case errors.Is(err, booking.ErrAlreadyFinalized):
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking already finalized", "state": string(b.State)})
        case errors.Is(err, ledger.ErrHoldExpired):
            return c.JSON(http.StatusConflict, echo.Map{"error": "hold expired before payment"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "apply outcome failed"})
    }
    return c.JSON(http.StatusOK, viewOf(b, false))
}

// Cancel terminates a pending booking at the user's request.
func (h *BookingHandler) Cancel(c echo.Context) error {
    id := c.Param("id")
    b, err := h.Orch.Cancel(c.Request().Context(), id)
    if err != nil {
        switch {
        case errors.Is(err, booking.ErrBookingNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        case errors.Is(err, booking.ErrAlreadyFinalized):
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking already finalized", "state": string(b.State)})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
    }
    return c.JSON(http.StatusOK, viewOf(b, false))
}

// Get returns booking state, first from the orchestrator's live set,
// then from the archive for bookings that predate the current
// process.
func (h *BookingHandler) Get(c echo.Context) error {
    id := c.Param("id")
    if b, err := h.Orch.Get(id); err == nil {
        return c.JSON(http.StatusOK, viewOf(b, b.State == model.BookingPendingPayment))
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    archived, err := h.Archive.GetByID(ctx, id)
    if err != nil {
        if err == sql.ErrNoRows {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load booking failed"})
    }
    return c.JSON(http.StatusOK, viewOf(archived, false))
}
