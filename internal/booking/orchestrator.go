package booking

import (
    "context"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/ticket-waitroom/internal/ledger"
    "github.com/iliyamo/ticket-waitroom/internal/model"
    "github.com/iliyamo/ticket-waitroom/internal/notify"
)

// PaymentOutcome is the opaque result reported by the payment
// gateway callback.  The orchestrator never talks to a provider
// directly.
type PaymentOutcome string

const (
    OutcomeSuccess PaymentOutcome = "success"
    OutcomeFailure PaymentOutcome = "failed"
)

// SeatLedger is the slice of the ledger the orchestrator needs.
type SeatLedger interface {
    Hold(eventID uint64, seatID, sessionID string, ttl time.Duration) (ledger.HoldResult, error)
    Release(eventID uint64, seatID, sessionID string) error
    ConfirmSale(eventID uint64, seatID, sessionID string) (model.Seat, error)
    ActiveHold(eventID uint64, sessionID string) (model.Seat, bool)
}

// Archive persists terminal booking state to the shared store.  All
// writes are idempotent upserts keyed by booking id, so a retried
// confirm can never double-record.
type Archive interface {
    SaveBooking(ctx context.Context, b *model.Booking) error
    MarkSeatsSold(ctx context.Context, eventID uint64, seatIDs []string, sessionID string) error
}

// SessionStates is the slice of the session registry the
// orchestrator updates as a booking progresses.
type SessionStates interface {
    SetState(ctx context.Context, id string, state model.SessionState, eventID uint64, bookingID string) error
}

// tracked wraps a booking with its own lock so state transitions
// for one booking are serialized without a lock spanning all
// bookings.
type tracked struct {
    mu     sync.Mutex
    b      model.Booking
    doneAt time.Time // when the booking reached a terminal state
}

// activeKey identifies the one booking a session may have in flight
// for an event.
type activeKey struct {
    eventID   uint64
    sessionID string
}

// terminalRetention keeps finished bookings resolvable in memory so
// replayed payment callbacks stay idempotent; after the window the
// archive answers instead.
const terminalRetention = 15 * time.Minute

// Orchestrator owns every booking.  Bookings are held in memory
// (they live for minutes) and archived to the store on reaching a
// terminal state; terminal records linger for terminalRetention so
// repeated payment callbacks resolve idempotently, then the sweep
// evicts them.
type Orchestrator struct {
    ledger   SeatLedger
    archive  Archive
    sessions SessionStates
    pub      notify.Publisher

    holdTTL       time.Duration
    paymentWindow time.Duration
    now           func() time.Time

    mu        sync.Mutex
    bookings  map[string]*tracked
    byPayment map[string]string    // payment id -> booking id
    active    map[activeKey]string // (event, session) -> pending booking id
}

// New returns an orchestrator with the given hold TTL and payment
// window.  The payment window is typically shorter than or equal to
// the hold TTL; both deadlines are enforced by sweeps regardless.
func New(l SeatLedger, a Archive, s SessionStates, p notify.Publisher, holdTTL, paymentWindow time.Duration) *Orchestrator {
    return &Orchestrator{
        ledger:        l,
        archive:       a,
        sessions:      s,
        pub:           p,
        holdTTL:       holdTTL,
        paymentWindow: paymentWindow,
        now:           func() time.Time { return time.Now().UTC() },
        bookings:      make(map[string]*tracked),
        byPayment:     make(map[string]string),
        active:        make(map[activeKey]string),
    }
}

func (o *Orchestrator) setSession(ctx context.Context, id string, state model.SessionState, eventID uint64, bookingID string) {
    if err := o.sessions.SetState(ctx, id, state, eventID, bookingID); err != nil {
        log.Printf("booking: session state update failed for %s: %v", id, err)
    }
}

func (o *Orchestrator) notifyState(ctx context.Context, b model.Booking) {
    if err := o.pub.BookingState(ctx, b.SessionID, b.ID, string(b.State)); err != nil {
        log.Printf("booking: notify failed for %s: %v", b.SessionID, err)
    }
}

// RequestHold forwards to the seat ledger and, on success, moves the
// session into awaiting_payment.  Ledger failures propagate to the
// caller unmodified: a losing session must reselect, never retry
// internally.
func (o *Orchestrator) RequestHold(ctx context.Context, sessionID string, eventID uint64, seatID string) (ledger.HoldResult, error) {
    res, err := o.ledger.Hold(eventID, seatID, sessionID, o.holdTTL)
    if err != nil {
        return ledger.HoldResult{}, err
    }
    o.setSession(ctx, sessionID, model.SessionAwaitingPayment, eventID, "")
    return res, nil
}

// ReleaseHold gives the session's hold back voluntarily.
func (o *Orchestrator) ReleaseHold(ctx context.Context, sessionID string, eventID uint64, seatID string) error {
    if err := o.ledger.Release(eventID, seatID, sessionID); err != nil {
        return err
    }
    o.setSession(ctx, sessionID, model.SessionSelecting, eventID, "")
    return nil
}

// Confirm converts the session's active hold into a booking pending
// payment.  The seat set the client sent is validated against what
// the session actually holds; the ledger, not the request, is the
// authority.  A hold backs at most one booking: repeating the
// confirm returns the pending booking already minted instead of a
// rival with its own payment id.  Returns the booking carrying the
// payment id and amount the client needs for checkout.
func (o *Orchestrator) Confirm(ctx context.Context, sessionID string, eventID uint64, seatIDs []string) (model.Booking, error) {
    held, ok := o.ledger.ActiveHold(eventID, sessionID)
    if !ok {
        return model.Booking{}, ErrNoActiveHold
    }
    for _, id := range seatIDs {
        if id != held.ID {
            return model.Booking{}, ErrNoActiveHold
        }
    }

    key := activeKey{eventID, sessionID}

    o.mu.Lock()
    if id, ok := o.active[key]; ok {
        prev := o.bookings[id]
        o.mu.Unlock()
        prev.mu.Lock()
        pb := prev.b
        prev.mu.Unlock()
        if !pb.State.Terminal() {
            return pb, nil
        }
        // The indexed booking finished between the finalizer's state
        // change and its index cleanup.  Re-take the index; if a
        // racing confirm already replaced it, return its booking.
        o.mu.Lock()
        if cur, ok := o.active[key]; ok && cur != id {
            next := o.bookings[cur]
            o.mu.Unlock()
            next.mu.Lock()
            nb := next.b
            next.mu.Unlock()
            return nb, nil
        }
        delete(o.active, key)
    }

    now := o.now()
    t := &tracked{b: model.Booking{
        ID:              uuid.NewString(),
        PaymentID:       uuid.NewString(),
        EventID:         eventID,
        SessionID:       sessionID,
        SeatIDs:         []string{held.ID},
        AmountCents:     held.PriceCents,
        State:           model.BookingPendingPayment,
        PaymentDeadline: now.Add(o.paymentWindow),
        CreatedAt:       now,
    }}
    o.bookings[t.b.ID] = t
    o.byPayment[t.b.PaymentID] = t.b.ID
    o.active[key] = t.b.ID
    o.mu.Unlock()

    o.setSession(ctx, sessionID, model.SessionAwaitingPayment, eventID, t.b.ID)
    o.notifyState(ctx, t.b)
    return t.b, nil
}

// clearActive drops the (event, session) index entry once its
// booking leaves the pending state, so a future hold can be
// confirmed into a fresh booking.  Callers of lookup release o.mu
// before taking a booking lock, so taking o.mu here cannot deadlock
// even though the caller holds t.mu.
func (o *Orchestrator) clearActive(b model.Booking) {
    key := activeKey{b.EventID, b.SessionID}
    o.mu.Lock()
    if o.active[key] == b.ID {
        delete(o.active, key)
    }
    o.mu.Unlock()
}

func (o *Orchestrator) lookup(bookingID string) (*tracked, error) {
    o.mu.Lock()
    defer o.mu.Unlock()
    t, ok := o.bookings[bookingID]
    if !ok {
        return nil, ErrBookingNotFound
    }
    return t, nil
}

// Get returns the booking for state queries after a dropped
// connection.
func (o *Orchestrator) Get(bookingID string) (model.Booking, error) {
    t, err := o.lookup(bookingID)
    if err != nil {
        return model.Booking{}, err
    }
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.b, nil
}

// ResolvePaymentID maps a payment id from the gateway callback to
// its booking id.
func (o *Orchestrator) ResolvePaymentID(paymentID string) (string, error) {
    o.mu.Lock()
    defer o.mu.Unlock()
    id, ok := o.byPayment[paymentID]
    if !ok {
        return "", ErrBookingNotFound
    }
    return id, nil
}

// ConfirmPayment applies the gateway outcome to the booking.  The
// booking id is the idempotency key: repeating the outcome that
// finalized the booking is a no-op, while attempting to flip a
// terminal booking fails with ErrAlreadyFinalized.  A success
// commits the sale in the ledger and a
// failure releases the hold for reselection.  Success is the only
// path that commits a sale in the ledger.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, bookingID string, outcome PaymentOutcome) (model.Booking, error) {
    t, err := o.lookup(bookingID)
    if err != nil {
        return model.Booking{}, err
    }
    t.mu.Lock()
    defer t.mu.Unlock()

    if t.b.State.Terminal() {
        if (outcome == OutcomeSuccess && t.b.State == model.BookingPaid) ||
            (outcome == OutcomeFailure && t.b.State == model.BookingFailed) {
            return t.b, nil
        }
        return t.b, ErrAlreadyFinalized
    }

    switch outcome {
    case OutcomeSuccess:
        return o.finishPaidLocked(ctx, t)
    case OutcomeFailure:
        return o.finishLocked(ctx, t, model.BookingFailed, model.SessionSelecting, true), nil
    default:
        return t.b, ErrAlreadyFinalized
    }
}

// finishPaidLocked commits every seat in the booking, archives the
// sale and publishes the confirmation event.  Caller holds t.mu.
func (o *Orchestrator) finishPaidLocked(ctx context.Context, t *tracked) (model.Booking, error) {
    for _, seatID := range t.b.SeatIDs {
        if _, err := o.ledger.ConfirmSale(t.b.EventID, seatID, t.b.SessionID); err != nil {
            if errors.Is(err, ledger.ErrHoldExpired) {
                // The seat is already reclaimed; the booking dies
                // with the hold.
                o.finishLocked(ctx, t, model.BookingExpired, model.SessionExpired, false)
            }
            return model.Booking{}, err
        }
    }

    t.b.State = model.BookingPaid
    t.doneAt = o.now()
    done := t.b
    o.clearActive(done)

    if err := o.archive.MarkSeatsSold(ctx, done.EventID, done.SeatIDs, done.SessionID); err != nil {
        log.Printf("booking: seat write-through failed for %s: %v", done.ID, err)
    }
    if err := o.archive.SaveBooking(ctx, &done); err != nil {
        log.Printf("booking: archive failed for %s: %v", done.ID, err)
    }
    o.setSession(ctx, done.SessionID, model.SessionConfirmed, done.EventID, done.ID)
    o.notifyState(ctx, done)
    if err := o.pub.BookingConfirmed(ctx, notify.BookingConfirmedEvent{
        BookingID:   done.ID,
        PaymentID:   done.PaymentID,
        EventID:     done.EventID,
        SessionID:   done.SessionID,
        SeatIDs:     done.SeatIDs,
        AmountCents: done.AmountCents,
        ConfirmedAt: o.now().Format(time.RFC3339),
    }); err != nil {
        log.Printf("booking: confirmed event publish failed for %s: %v", done.ID, err)
    }
    return done, nil
}

// finishLocked moves an active booking to a terminal failure state,
// optionally releasing its seats immediately instead of waiting for
// the sweep.  Caller holds t.mu.
func (o *Orchestrator) finishLocked(ctx context.Context, t *tracked, state model.BookingState, sessionState model.SessionState, release bool) model.Booking {
    t.b.State = state
    t.doneAt = o.now()
    done := t.b
    o.clearActive(done)

    if release {
        for _, seatID := range done.SeatIDs {
            if err := o.ledger.Release(done.EventID, seatID, done.SessionID); err != nil &&
                !errors.Is(err, ledger.ErrNotHolder) {
                log.Printf("booking: release failed for %s seat %s: %v", done.ID, seatID, err)
            }
        }
    }
    if err := o.archive.SaveBooking(ctx, &done); err != nil {
        log.Printf("booking: archive failed for %s: %v", done.ID, err)
    }
    o.setSession(ctx, done.SessionID, sessionState, done.EventID, done.ID)
    o.notifyState(ctx, done)
    return done
}

// Cancel terminates a booking at the user's request and releases
// its seats immediately, not waiting for the sweep.  Cancelling an
// already cancelled booking is a no-op; any other terminal state
// fails with ErrAlreadyFinalized.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID string) (model.Booking, error) {
    t, err := o.lookup(bookingID)
    if err != nil {
        return model.Booking{}, err
    }
    t.mu.Lock()
    defer t.mu.Unlock()

    if t.b.State.Terminal() {
        if t.b.State == model.BookingCancelled {
            return t.b, nil
        }
        return t.b, ErrAlreadyFinalized
    }
    return o.finishLocked(ctx, t, model.BookingCancelled, model.SessionCancelled, true), nil
}

// ExpireStale marks every awaiting-payment booking past its
// deadline as expired and releases its seats.  Run on a timer
// alongside the ledger sweep; a session that never calls back still
// has its seat reclaimed.  The same pass evicts terminal bookings
// older than terminalRetention, bounding the in-memory set over a
// long sale; callers arriving later are served from the archive.
func (o *Orchestrator) ExpireStale(ctx context.Context) int {
    now := o.now()
    o.mu.Lock()
    candidates := make([]*tracked, 0)
    for _, t := range o.bookings {
        candidates = append(candidates, t)
    }
    o.mu.Unlock()

    expired := 0
    evict := make([]model.Booking, 0)
    for _, t := range candidates {
        t.mu.Lock()
        switch {
        case !t.b.State.Terminal() && t.b.PaymentDeadline.Before(now):
            o.finishLocked(ctx, t, model.BookingExpired, model.SessionExpired, true)
            expired++
        case t.b.State.Terminal() && now.Sub(t.doneAt) > terminalRetention:
            evict = append(evict, t.b)
        }
        t.mu.Unlock()
    }

    if len(evict) > 0 {
        o.mu.Lock()
        for _, b := range evict {
            delete(o.bookings, b.ID)
            delete(o.byPayment, b.PaymentID)
        }
        o.mu.Unlock()
    }
    return expired
}

// HandleReclaimed reacts to holds the ledger sweep took back: any
// active booking whose seat was reclaimed is expired, and displaced
// sessions are notified so their clients stop polling a dead hold.
func (o *Orchestrator) HandleReclaimed(ctx context.Context, reclaimed []ledger.Reclaimed) {
    if len(reclaimed) == 0 {
        return
    }
    o.mu.Lock()
    candidates := make([]*tracked, 0, len(o.bookings))
    for _, t := range o.bookings {
        candidates = append(candidates, t)
    }
    o.mu.Unlock()

    for _, rc := range reclaimed {
        var hit *tracked
        for _, t := range candidates {
            t.mu.Lock()
            match := !t.b.State.Terminal() && t.b.EventID == rc.EventID && t.b.SessionID == rc.SessionID
            if match {
                match = false
                for _, seatID := range t.b.SeatIDs {
                    if seatID == rc.SeatID {
                        match = true
                        break
                    }
                }
            }
            t.mu.Unlock()
            if match {
                hit = t
                break
            }
        }

        if hit != nil {
            hit.mu.Lock()
            if !hit.b.State.Terminal() {
                o.finishLocked(ctx, hit, model.BookingExpired, model.SessionExpired, false)
            }
            hit.mu.Unlock()
            continue
        }
        // No booking yet: the session merely lost its hold.
        o.setSession(ctx, rc.SessionID, model.SessionSelecting, rc.EventID, "")
        if err := o.pub.Error(ctx, rc.SessionID, "hold expired"); err != nil {
            log.Printf("booking: notify failed for %s: %v", rc.SessionID, err)
        }
    }
}
