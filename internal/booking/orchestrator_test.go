package booking

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/ticket-waitroom/internal/ledger"
    "github.com/iliyamo/ticket-waitroom/internal/model"
    "github.com/iliyamo/ticket-waitroom/internal/notify"
)

const testEvent = uint64(1)

// mockArchive records write-through calls the orchestrator makes on
// terminal transitions.
type mockArchive struct{ mock.Mock }

func (m *mockArchive) SaveBooking(ctx context.Context, b *model.Booking) error {
    return m.Called(ctx, b).Error(0)
}

func (m *mockArchive) MarkSeatsSold(ctx context.Context, eventID uint64, seatIDs []string, sessionID string) error {
    return m.Called(ctx, eventID, seatIDs, sessionID).Error(0)
}

// fakeSessions remembers the latest state per session.
type fakeSessions struct {
    mu     sync.Mutex
    states map[string]model.SessionState
}

func newFakeSessions() *fakeSessions {
    return &fakeSessions{states: make(map[string]model.SessionState)}
}

func (f *fakeSessions) SetState(_ context.Context, id string, state model.SessionState, _ uint64, _ string) error {
    f.mu.Lock()
    f.states[id] = state
    f.mu.Unlock()
    return nil
}

func (f *fakeSessions) state(id string) model.SessionState {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.states[id]
}

func newTestOrchestrator(t *testing.T, holdTTL, paymentWindow time.Duration) (*Orchestrator, *ledger.Ledger, *mockArchive, *fakeSessions) {
    t.Helper()
    l := ledger.New()
    l.Seed(testEvent, []model.Seat{
        {ID: "A1", Row: "A", Number: 1, PriceCents: 5000},
        {ID: "B2", Row: "B", Number: 2, PriceCents: 3500},
    })
    ar := &mockArchive{}
    ses := newFakeSessions()
    o := New(l, ar, ses, notify.NopPublisher{}, holdTTL, paymentWindow)
    return o, l, ar, ses
}

func TestConfirmRequiresActiveHold(t *testing.T) {
    o, _, _, _ := newTestOrchestrator(t, time.Minute, time.Minute)

    _, err := o.Confirm(context.Background(), "session_x", testEvent, []string{"A1"})
    assert.ErrorIs(t, err, ErrNoActiveHold)
}

func TestConfirmValidatesSeatSetAgainstHold(t *testing.T) {
    o, _, _, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)

    // The client may only confirm the seat it actually holds.
    _, err = o.Confirm(ctx, "session_x", testEvent, []string{"B2"})
    assert.ErrorIs(t, err, ErrNoActiveHold)

    b, err := o.Confirm(ctx, "session_x", testEvent, []string{"A1"})
    require.NoError(t, err)
    assert.Equal(t, model.BookingPendingPayment, b.State)
    assert.Equal(t, uint32(5000), b.AmountCents)
    assert.NotEmpty(t, b.PaymentID)
}

func TestConfirmPaymentSuccessIsIdempotent(t *testing.T) {
    o, l, ar, ses := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("MarkSeatsSold", ctx, testEvent, []string{"A1"}, "session_x").Return(nil).Once()
    ar.On("SaveBooking", ctx, mock.AnythingOfType("*model.Booking")).Return(nil).Once()

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    first, err := o.ConfirmPayment(ctx, b.ID, OutcomeSuccess)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPaid, first.State)
    assert.Equal(t, model.SessionConfirmed, ses.state("session_x"))

    // Repeating the same outcome is a no-op: no second sale, no
    // second archive write.
    second, err := o.ConfirmPayment(ctx, b.ID, OutcomeSuccess)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPaid, second.State)
    ar.AssertExpectations(t)

    // The seat is sold for everyone else.
    _, err = l.Hold(testEvent, "A1", "session_y", time.Minute)
    assert.ErrorIs(t, err, ledger.ErrSeatUnavailable)
}

func TestConfirmPaymentConflictingOutcome(t *testing.T) {
    o, _, ar, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("MarkSeatsSold", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    _, err = o.ConfirmPayment(ctx, b.ID, OutcomeSuccess)
    require.NoError(t, err)

    got, err := o.ConfirmPayment(ctx, b.ID, OutcomeFailure)
    assert.ErrorIs(t, err, ErrAlreadyFinalized)
    assert.Equal(t, model.BookingPaid, got.State)
}

func TestConfirmPaymentFailureReleasesSeat(t *testing.T) {
    o, l, ar, ses := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    got, err := o.ConfirmPayment(ctx, b.ID, OutcomeFailure)
    require.NoError(t, err)
    assert.Equal(t, model.BookingFailed, got.State)
    assert.Equal(t, model.SessionSelecting, ses.state("session_x"))

    // Failure is recoverable: the seat is free again, for anyone.
    _, err = l.Hold(testEvent, "A1", "session_y", time.Minute)
    assert.NoError(t, err)
}

func TestCancelReleasesSeatImmediately(t *testing.T) {
    o, l, ar, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    got, err := o.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, got.State)

    // Cancelling again is a no-op.
    again, err := o.Cancel(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, again.State)

    _, err = l.Hold(testEvent, "A1", "session_y", time.Minute)
    assert.NoError(t, err)
}

func TestCancelUnknownBooking(t *testing.T) {
    o, _, _, _ := newTestOrchestrator(t, time.Minute, time.Minute)

    _, err := o.Cancel(context.Background(), "no-such-id")
    assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestExpireStaleReclaimsPastDeadline(t *testing.T) {
    o, l, ar, ses := newTestOrchestrator(t, time.Hour, time.Minute)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
    o.now = func() time.Time { return now }

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    assert.Zero(t, o.ExpireStale(ctx), "deadline not reached yet")

    now = now.Add(2 * time.Minute)
    assert.Equal(t, 1, o.ExpireStale(ctx))

    got, err := o.Get(b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingExpired, got.State)
    assert.Equal(t, model.SessionExpired, ses.state("session_x"))

    // The payment window elapsed but the hold TTL did not; the
    // orchestrator must still have released the seat.
    _, err = l.Hold(testEvent, "A1", "session_y", time.Minute)
    assert.NoError(t, err)

    // A late gateway callback cannot resurrect the booking.
    _, err = o.ConfirmPayment(ctx, b.ID, OutcomeSuccess)
    assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestHandleReclaimedExpiresBooking(t *testing.T) {
    o, l, ar, ses := newTestOrchestrator(t, 30*time.Millisecond, time.Hour)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "B2")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    time.Sleep(50 * time.Millisecond)
    reclaimed := l.SweepExpired()
    require.Len(t, reclaimed, 1)

    o.HandleReclaimed(ctx, reclaimed)

    got, err := o.Get(b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingExpired, got.State)
    assert.Equal(t, model.SessionExpired, ses.state("session_x"))
}

func TestResolvePaymentID(t *testing.T) {
    o, _, _, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    id, err := o.ResolvePaymentID(b.PaymentID)
    require.NoError(t, err)
    assert.Equal(t, b.ID, id)

    _, err = o.ResolvePaymentID("payment_unknown")
    assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestConfirmPaymentAfterHoldExpiry(t *testing.T) {
    o, _, ar, _ := newTestOrchestrator(t, 30*time.Millisecond, time.Hour)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    time.Sleep(50 * time.Millisecond)

    _, err = o.ConfirmPayment(ctx, b.ID, OutcomeSuccess)
    assert.ErrorIs(t, err, ledger.ErrHoldExpired)

    got, err := o.Get(b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingExpired, got.State)
}

func TestRepeatConfirmReturnsSamePendingBooking(t *testing.T) {
    o, l, ar, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("MarkSeatsSold", ctx, testEvent, []string{"A1"}, "session_x").Return(nil).Once()
    ar.On("SaveBooking", ctx, mock.AnythingOfType("*model.Booking")).Return(nil).Once()

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)

    b1, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)

    // The seat is still held after the first confirm, so a replayed
    // confirm must hand back the same booking, not mint a rival with
    // its own payment id.
    b2, err := o.Confirm(ctx, "session_x", testEvent, []string{"A1"})
    require.NoError(t, err)
    assert.Equal(t, b1.ID, b2.ID, "one hold backs at most one booking")
    assert.Equal(t, b1.PaymentID, b2.PaymentID)

    paid, err := o.ConfirmPayment(ctx, b1.ID, OutcomeSuccess)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPaid, paid.State)

    // Replaying success through the second handle resolves to the
    // same booking: no second sale, no second archive write.
    again, err := o.ConfirmPayment(ctx, b2.ID, OutcomeSuccess)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPaid, again.State)
    ar.AssertExpectations(t)

    _, err = l.Hold(testEvent, "A1", "session_y", time.Minute)
    assert.ErrorIs(t, err, ledger.ErrSeatUnavailable)
}

func TestConfirmAfterFailedPaymentMintsFreshBooking(t *testing.T) {
    o, _, ar, _ := newTestOrchestrator(t, time.Minute, time.Minute)
    ctx := context.Background()

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b1, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)
    _, err = o.ConfirmPayment(ctx, b1.ID, OutcomeFailure)
    require.NoError(t, err)

    // The failure released the seat; a fresh hold starts a fresh
    // booking rather than resurrecting the failed one.
    _, err = o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b2, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)
    assert.NotEqual(t, b1.ID, b2.ID)
    assert.Equal(t, model.BookingPendingPayment, b2.State)
}

func TestSweepEvictsFinishedBookings(t *testing.T) {
    o, _, ar, _ := newTestOrchestrator(t, time.Hour, time.Minute)
    ctx := context.Background()

    now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
    o.now = func() time.Time { return now }

    ar.On("SaveBooking", mock.Anything, mock.Anything).Return(nil)

    _, err := o.RequestHold(ctx, "session_x", testEvent, "A1")
    require.NoError(t, err)
    b, err := o.Confirm(ctx, "session_x", testEvent, nil)
    require.NoError(t, err)
    _, err = o.ConfirmPayment(ctx, b.ID, OutcomeFailure)
    require.NoError(t, err)

    // Inside the retention window the sweep keeps decided bookings
    // around so replayed callbacks still resolve.
    o.ExpireStale(ctx)
    replay, err := o.ConfirmPayment(ctx, b.ID, OutcomeFailure)
    require.NoError(t, err)
    assert.Equal(t, model.BookingFailed, replay.State)

    now = now.Add(terminalRetention + time.Minute)
    o.ExpireStale(ctx)

    _, err = o.Get(b.ID)
    assert.ErrorIs(t, err, ErrBookingNotFound)
    _, err = o.ResolvePaymentID(b.PaymentID)
    assert.ErrorIs(t, err, ErrBookingNotFound)
}
