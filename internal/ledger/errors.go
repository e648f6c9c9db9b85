// Package ledger is the sole authority over seat status for an
// event.  These sentinel values let handlers and the orchestrator
// distinguish expected contention from caller mistakes.  Contention
// (ErrSeatUnavailable) and expiry (ErrHoldExpired) are routine under
// load and are surfaced to the client for reselection; ErrNotHolder
// indicates client/server state divergence and is worth logging.
package ledger

import "errors"

// ErrEventNotFound is returned when the event has not been seeded
// into the ledger.  Handlers should translate this into a 404.
var ErrEventNotFound = errors.New("event not found")

// ErrSeatNotFound is returned when the seat id does not exist for
// the event.
var ErrSeatNotFound = errors.New("seat not found")

// ErrSeatUnavailable is returned when a hold is requested for a seat
// that is already held or sold by someone else.  This is the
// expected outcome of losing a seat race.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrAlreadyHolding is returned when a session that already has an
// active hold for the event requests another seat.  One active hold
// per session per event is enforced here.
var ErrAlreadyHolding = errors.New("session already holds a seat")

// ErrNotHolder is returned when a session tries to release or
// confirm a seat it does not hold.
var ErrNotHolder = errors.New("caller is not the holder")

// ErrHoldExpired is returned when a confirm arrives after the hold's
// TTL has lapsed; the seat is reclaimed in the same call.
var ErrHoldExpired = errors.New("hold expired")
