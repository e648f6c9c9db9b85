package ledger

import (
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/ticket-waitroom/internal/model"
)

// HoldResult reports a granted hold back to the caller.  ExpiresAt
// is the hard deadline after which the sweep reclaims the seat.
type HoldResult struct {
    EventID   uint64
    SeatID    string
    ExpiresAt time.Time
}

// Reclaimed identifies a hold that the sweep returned to available.
// The orchestrator uses these to expire the matching bookings and
// notify the sessions that lost their seats.
type Reclaimed struct {
    EventID   uint64
    SeatID    string
    SessionID string
}

// seatSlot pairs a seat with its own mutex.  All transitions for one
// seat are serialized on this lock; seats never share a lock, so
// contention stays proportional to the popularity of an individual
// seat rather than the size of the event.
type seatSlot struct {
    mu   sync.Mutex
    seat model.Seat
}

// eventSeats is the per-event seat inventory plus the bookkeeping
// needed to enforce one active hold per session per event.  holdsMu
// guards only the holds map, never any seat.
type eventSeats struct {
    seats   map[string]*seatSlot
    holdsMu sync.Mutex
    holds   map[string]string // session id -> seat id
}

// Ledger keeps the authoritative seat state for every seeded event.
// It is purely in-memory; the terminal sold state is persisted by the
// orchestrator after ConfirmSale succeeds.  The events map is written
// only during seeding, so lookups take the read lock.
type Ledger struct {
    mu     sync.RWMutex
    events map[uint64]*eventSeats
    now    func() time.Time
}

// New returns an empty ledger.  Seed must be called for each event
// before any hold can be granted.
func New() *Ledger {
    return &Ledger{
        events: make(map[uint64]*eventSeats),
        now:    func() time.Time { return time.Now().UTC() },
    }
}

// Seed registers an event's seats, typically loaded from the catalog
// store at startup.  Seats already sold in the catalog keep their
// sold status so a restart never resells them.  Seeding the same
// event again replaces its inventory.
func (l *Ledger) Seed(eventID uint64, seats []model.Seat) {
    ev := &eventSeats{
        seats: make(map[string]*seatSlot, len(seats)),
        holds: make(map[string]string),
    }
    for _, s := range seats {
        s.EventID = eventID
        if s.Status == "" {
            s.Status = model.SeatAvailable
        }
        ev.seats[s.ID] = &seatSlot{seat: s}
    }
    l.mu.Lock()
    l.events[eventID] = ev
    l.mu.Unlock()
}

func (l *Ledger) event(eventID uint64) (*eventSeats, error) {
    l.mu.RLock()
    ev, ok := l.events[eventID]
    l.mu.RUnlock()
    if !ok {
        return nil, ErrEventNotFound
    }
    return ev, nil
}

// expireLocked reclaims the slot's hold if it has lapsed.  The
// caller must hold slot.mu.  This is the lazy counterpart of
// SweepExpired that closes the race window between sweep cycles.
func (ev *eventSeats) expireLocked(slot *seatSlot, now time.Time) {
    if slot.seat.Status == model.SeatHeld && !slot.seat.HoldExpiresAt.After(now) {
        holder := slot.seat.HeldBy
        slot.seat.Status = model.SeatAvailable
        slot.seat.HeldBy = ""
        slot.seat.HoldExpiresAt = time.Time{}
        slot.seat.Version++
        ev.clearHold(holder, slot.seat.ID)
    }
}

// clearHold removes the session's active-hold marker, but only if it
// still points at the given seat.
func (ev *eventSeats) clearHold(sessionID, seatID string) {
    ev.holdsMu.Lock()
    if ev.holds[sessionID] == seatID {
        delete(ev.holds, sessionID)
    }
    ev.holdsMu.Unlock()
}

// Hold atomically transitions a seat from available to held on
// behalf of sessionID, recording expiry = now+ttl.  It fails with
// ErrSeatUnavailable when the seat is held or sold by anyone else,
// and with ErrAlreadyHolding when the session already has an active
// hold for this event.  First-writer-wins is decided by the per-seat
// lock, not by network arrival order.
func (l *Ledger) Hold(eventID uint64, seatID, sessionID string, ttl time.Duration) (HoldResult, error) {
    ev, err := l.event(eventID)
    if err != nil {
        return HoldResult{}, err
    }
    slot, ok := ev.seats[seatID]
    if !ok {
        return HoldResult{}, ErrSeatNotFound
    }
    now := l.now()

    // Lock ordering everywhere in this package is seat lock first,
    // then holdsMu, so the marker map is only ever inspected or
    // claimed without a seat lock held the other way around.
    ev.holdsMu.Lock()
    prev, hadPrev := ev.holds[sessionID]
    ev.holdsMu.Unlock()
    if hadPrev {
        // A marker pointing at a seat whose hold already lapsed, or
        // that the session no longer actually holds, does not count
        // as an active hold.
        if prevSlot, ok := ev.seats[prev]; ok {
            prevSlot.mu.Lock()
            stillHeld := prevSlot.seat.Status == model.SeatHeld &&
                prevSlot.seat.HeldBy == sessionID &&
                prevSlot.seat.HoldExpiresAt.After(now)
            if stillHeld {
                prevSlot.mu.Unlock()
                return HoldResult{}, ErrAlreadyHolding
            }
            ev.expireLocked(prevSlot, now)
            prevSlot.mu.Unlock()
        }
        ev.clearHold(sessionID, prev)
    }

    // Claim the session's single hold slot before touching the seat
    // so two concurrent holds by the same session cannot both win.
    ev.holdsMu.Lock()
    if _, exists := ev.holds[sessionID]; exists {
        ev.holdsMu.Unlock()
        return HoldResult{}, ErrAlreadyHolding
    }
    ev.holds[sessionID] = seatID
    ev.holdsMu.Unlock()

    slot.mu.Lock()
    ev.expireLocked(slot, now)
    if slot.seat.Status != model.SeatAvailable {
        slot.mu.Unlock()
        ev.clearHold(sessionID, seatID)
        return HoldResult{}, ErrSeatUnavailable
    }
    slot.seat.Status = model.SeatHeld
    slot.seat.HeldBy = sessionID
    slot.seat.HoldExpiresAt = now.Add(ttl)
    slot.seat.Version++
    res := HoldResult{EventID: eventID, SeatID: seatID, ExpiresAt: slot.seat.HoldExpiresAt}
    slot.mu.Unlock()
    return res, nil
}

// Release transitions held→available when the caller is the current
// holder.  Releasing a seat that is already available again is a
// no-op, not an error: the hold may simply have expired between the
// client's timer and this call.  ErrNotHolder is returned when the
// seat is held by somebody else, ErrSeatUnavailable when it was
// already sold.
func (l *Ledger) Release(eventID uint64, seatID, sessionID string) error {
    ev, err := l.event(eventID)
    if err != nil {
        return err
    }
    slot, ok := ev.seats[seatID]
    if !ok {
        return ErrSeatNotFound
    }
    slot.mu.Lock()
    defer slot.mu.Unlock()
    ev.expireLocked(slot, l.now())
    switch slot.seat.Status {
    case model.SeatAvailable:
        return nil
    case model.SeatSold:
        return ErrSeatUnavailable
    }
    if slot.seat.HeldBy != sessionID {
        return ErrNotHolder
    }
    slot.seat.Status = model.SeatAvailable
    slot.seat.HeldBy = ""
    slot.seat.HoldExpiresAt = time.Time{}
    slot.seat.Version++
    ev.clearHold(sessionID, seatID)
    return nil
}

// ConfirmSale transitions held→sold when the caller is the current
// holder and the hold has not lapsed.  This is the only path to
// sold, and sold is terminal.  An expired hold is reclaimed in the
// same call and reported as ErrHoldExpired.
func (l *Ledger) ConfirmSale(eventID uint64, seatID, sessionID string) (model.Seat, error) {
    ev, err := l.event(eventID)
    if err != nil {
        return model.Seat{}, err
    }
    slot, ok := ev.seats[seatID]
    if !ok {
        return model.Seat{}, ErrSeatNotFound
    }
    now := l.now()
    slot.mu.Lock()
    defer slot.mu.Unlock()
    switch slot.seat.Status {
    case model.SeatSold:
        if slot.seat.HeldBy == sessionID {
            // Idempotent re-confirm by the owner.
            return slot.seat, nil
        }
        return model.Seat{}, ErrSeatUnavailable
    case model.SeatAvailable:
        return model.Seat{}, ErrNotHolder
    }
    if slot.seat.HeldBy != sessionID {
        return model.Seat{}, ErrNotHolder
    }
    if !slot.seat.HoldExpiresAt.After(now) {
        ev.expireLocked(slot, now)
        return model.Seat{}, ErrHoldExpired
    }
    slot.seat.Status = model.SeatSold
    slot.seat.HoldExpiresAt = time.Time{}
    slot.seat.Version++
    ev.clearHold(sessionID, seatID)
    return slot.seat, nil
}

// ActiveHold returns the seat currently held by the session for the
// event, if any.  The orchestrator uses this to convert a hold into
// a booking without trusting the seat ids the client sent.
func (l *Ledger) ActiveHold(eventID uint64, sessionID string) (model.Seat, bool) {
    ev, err := l.event(eventID)
    if err != nil {
        return model.Seat{}, false
    }
    ev.holdsMu.Lock()
    seatID, ok := ev.holds[sessionID]
    ev.holdsMu.Unlock()
    if !ok {
        return model.Seat{}, false
    }
    slot, ok := ev.seats[seatID]
    if !ok {
        return model.Seat{}, false
    }
    now := l.now()
    slot.mu.Lock()
    defer slot.mu.Unlock()
    ev.expireLocked(slot, now)
    if slot.seat.Status != model.SeatHeld || slot.seat.HeldBy != sessionID {
        return model.Seat{}, false
    }
    return slot.seat, true
}

// SweepExpired scans every seeded event for holds whose expiry has
// passed and returns them to available.  Each seat is locked for the
// duration of a single transition only; the sweep never holds a lock
// across seats.  Returns the reclaimed holds so callers can expire
// the matching bookings and notify the displaced sessions.
func (l *Ledger) SweepExpired() []Reclaimed {
    l.mu.RLock()
    events := make(map[uint64]*eventSeats, len(l.events))
    for id, ev := range l.events {
        events[id] = ev
    }
    l.mu.RUnlock()

    now := l.now()
    var reclaimed []Reclaimed
    for eventID, ev := range events {
        for seatID, slot := range ev.seats {
            slot.mu.Lock()
            if slot.seat.Status == model.SeatHeld && !slot.seat.HoldExpiresAt.After(now) {
                holder := slot.seat.HeldBy
                ev.expireLocked(slot, now)
                reclaimed = append(reclaimed, Reclaimed{EventID: eventID, SeatID: seatID, SessionID: holder})
            }
            slot.mu.Unlock()
        }
    }
    return reclaimed
}

// Snapshot returns a copy of every seat for the event, sorted by row
// then number, with expired holds already reported as available.
// This feeds the public seat-map endpoint.
func (l *Ledger) Snapshot(eventID uint64) ([]model.Seat, error) {
    ev, err := l.event(eventID)
    if err != nil {
        return nil, err
    }
    now := l.now()
    seats := make([]model.Seat, 0, len(ev.seats))
    for _, slot := range ev.seats {
        slot.mu.Lock()
        s := slot.seat
        slot.mu.Unlock()
        if s.Status == model.SeatHeld && !s.HoldExpiresAt.After(now) {
            s.Status = model.SeatAvailable
            s.HeldBy = ""
            s.HoldExpiresAt = time.Time{}
        }
        seats = append(seats, s)
    }
    sort.Slice(seats, func(i, j int) bool {
        if seats[i].Row != seats[j].Row {
            return seats[i].Row < seats[j].Row
        }
        if seats[i].Number != seats[j].Number {
            return seats[i].Number < seats[j].Number
        }
        return seats[i].ID < seats[j].ID
    })
    return seats, nil
}
