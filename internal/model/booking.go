package model

import "time"

// BookingState enumerates the lifecycle of a booking.  A booking is
// created in pending_payment when a hold is converted into a payment
// attempt; every other state is terminal.
type BookingState string

const (
    BookingPendingPayment BookingState = "pending_payment" // awaiting the payment outcome
    BookingPaid           BookingState = "paid"            // payment succeeded, seats sold
    BookingFailed         BookingState = "failed"          // payment declined, seats released
    BookingExpired        BookingState = "expired"         // payment deadline elapsed
    BookingCancelled      BookingState = "cancelled"       // explicit cancellation
)

// Terminal reports whether the state admits no further transitions.
func (s BookingState) Terminal() bool { return s != BookingPendingPayment }

// Booking aggregates the seats a session is paying for.  Active
// bookings (pending_payment) always reference seats currently held by
// the same session; a seat belongs to at most one active booking at a
// time.  Terminal bookings are archived to the bookings table.
//
// Fields:
//  ID              – opaque booking identifier (UUID).
//  PaymentID       – identifier handed to the payment gateway (UUID).
//  EventID         – event the seats belong to.
//  SessionID       – session that owns the booking.
//  SeatIDs         – seats covered by this booking.
//  AmountCents     – total price in cents across all seats.
//  State           – booking lifecycle state.
//  PaymentDeadline – hard deadline for the payment outcome.
//  CreatedAt       – creation timestamp.
type Booking struct {
    ID              string       // bookings.id
    PaymentID       string       // bookings.payment_id
    EventID         uint64       // bookings.event_id
    SessionID       string       // bookings.session_id
    SeatIDs         []string     // booking_seats.seat_id rows
    AmountCents     uint32       // bookings.amount_cents
    State           BookingState // bookings.state
    PaymentDeadline time.Time    // bookings.payment_deadline
    CreatedAt       time.Time    // bookings.created_at
}
