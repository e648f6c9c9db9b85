// Package booking drives a session from seat hold through payment
// to confirmation, enforcing exactly-once seat commitment and the
// bounded payment window.
package booking

import "errors"

// ErrBookingNotFound is returned when no booking exists for the
// given booking or payment identifier.
var ErrBookingNotFound = errors.New("booking not found")

// ErrAlreadyFinalized is returned when a payment outcome would flip
// a terminal booking into a different terminal state.  Repeating the
// outcome that finalized the booking is a no-op instead.
var ErrAlreadyFinalized = errors.New("booking already finalized")

// ErrNoActiveHold is returned when a session confirms a booking
// without holding a seat, or names seats it does not hold.
var ErrNoActiveHold = errors.New("no active hold for session")
