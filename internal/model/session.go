package model

import "time"

// SessionState tracks where a session stands in the booking flow.
// The admission queue moves a session from unqueued through waiting
// to admitted; the orchestrator then drives selecting through
// awaiting_payment into a terminal state.
type SessionState string

const (
    SessionUnqueued        SessionState = "unqueued"        // registered, not yet in any queue
    SessionWaiting         SessionState = "waiting"         // in the admission queue
    SessionSelecting       SessionState = "selecting"       // admitted, browsing seats
    SessionAwaitingPayment SessionState = "awaiting_payment" // hold granted, payment pending
    SessionConfirmed       SessionState = "confirmed"       // booking paid
    SessionExpired         SessionState = "expired"         // hold or payment window elapsed
    SessionCancelled       SessionState = "cancelled"       // explicit cancellation
)

// Session is the server-owned record behind an opaque bearer
// identifier.  Clients hold only the identifier; all authoritative
// state lives in the registry.  Sessions are garbage collected by
// the registry TTL independent of booking state.
//
// Fields:
//  ID         – opaque identifier (session_<64 hex>, 32 random bytes).
//  CustomerID – owning customer; zero until bound after login.
//  State      – current position in the booking flow.
//  EventID    – event the session is queued or booking for.
//  BookingID  – active booking, if any.
//  CreatedAt  – first contact timestamp.
//  ExpiresAt  – registry expiry, refreshed on activity.
type Session struct {
    ID         string       `json:"id"`
    CustomerID uint64       `json:"customer_id,omitempty"`
    State      SessionState `json:"state"`
    EventID    uint64       `json:"event_id,omitempty"`
    BookingID  string       `json:"booking_id,omitempty"`
    CreatedAt  time.Time    `json:"created_at"`
    ExpiresAt  time.Time    `json:"expires_at"`
}
