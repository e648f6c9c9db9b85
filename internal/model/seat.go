package model

import "time"

// SeatStatus enumerates the three states a seat can be in.  A seat
// moves available→held→{available, sold}; sold is terminal and is the
// only state written through to the catalog store.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "available" // free to be held by any session
    SeatHeld      SeatStatus = "held"      // exclusively claimed until HoldExpiresAt
    SeatSold      SeatStatus = "sold"      // permanently owned; no further mutation
)

// Seat is the ledger's view of a single seat for an event.  The
// invariant maintained by the ledger is that HeldBy is non-empty
// exactly when Status is held or sold, and HoldExpiresAt is set only
// while the seat is held.
//
// Fields:
//  EventID       – event this seat belongs to.
//  ID            – seat identifier, unique within the event (e.g. "A1").
//  Row           – row label.
//  Number        – number of the seat within the row.
//  PriceCents    – price in cents, seeded from the catalog.
//  Status        – availability status (available, held, sold).
//  HeldBy        – session currently holding or owning the seat.
//  HoldExpiresAt – when the current hold lapses; zero unless held.
//  Version       – bumped on every transition, for diagnostics.
type Seat struct {
    EventID       uint64     // seats.event_id
    ID            string     // seats.seat_id
    Row           string     // seats.row_label
    Number        uint32     // seats.seat_number
    PriceCents    uint32     // seats.price_cents
    Status        SeatStatus // in-memory; seats.status stores only available/sold
    HeldBy        string     // session id, empty when available
    HoldExpiresAt time.Time  // zero unless held
    Version       uint64     // transition counter
}
