package model

import "time"

// Event represents a ticketed event that sessions queue for.  Each
// event owns its own admission queue, seat inventory and sale window.
// Seat rows are seeded from the catalog store when the coordinator
// starts; the event row itself is read-only at runtime.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – display name of the event.
//  Venue       – venue name shown to clients.
//  SalesOpenAt – when the waiting page lets sessions enter the queue.
//  StartsAt    – when the event itself begins.
//  CreatedAt   – timestamp when the record was created.
type Event struct {
    ID          uint64    // events.id
    Name        string    // events.name
    Venue       string    // events.venue
    SalesOpenAt time.Time // events.sales_open_at
    StartsAt    time.Time // events.starts_at
    CreatedAt   time.Time // events.created_at
}
