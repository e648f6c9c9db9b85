// Package notify defines the out-of-band publish channel that tells
// a session when its queue or booking state changes.  Delivery is
// best-effort and at-most-once: the polling endpoints remain the
// source of truth, so a dropped message is self-healing.
package notify

// EventType discriminates the payloads a session can receive.
type EventType string

const (
    EventQueueUpdate  EventType = "queue_update"
    EventBookingState EventType = "booking_state_changed"
    EventError        EventType = "error"
)

// Notification is the envelope pushed to a single session.  Only the
// fields relevant to the Type are populated.
type Notification struct {
    Type       EventType `json:"type"`
    SessionID  string    `json:"session_id"`
    Position   int64     `json:"position,omitempty"`
    CanProceed bool      `json:"can_proceed,omitempty"`
    BookingID  string    `json:"booking_id,omitempty"`
    NewState   string    `json:"new_state,omitempty"`
    Reason     string    `json:"reason,omitempty"`
    At         string    `json:"at"`
}

// BookingConfirmedEvent is published to the booking.confirmed queue
// when a payment succeeds.  It carries enough for downstream
// consumers to log or trigger fulfilment without querying the
// primary database.
type BookingConfirmedEvent struct {
    BookingID   string   `json:"booking_id"`
    PaymentID   string   `json:"payment_id"`
    EventID     uint64   `json:"event_id"`
    SessionID   string   `json:"session_id"`
    CustomerID  uint64   `json:"customer_id,omitempty"`
    SeatIDs     []string `json:"seats"`
    AmountCents uint32   `json:"amount_cents"`
    ConfirmedAt string   `json:"confirmed_at"`
}
