package ledger

import (
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/ticket-waitroom/internal/model"
)

const testEvent = uint64(1)

// newTestLedger seeds a small event and pins the clock so tests can
// advance time without sleeping.
func newTestLedger(t *testing.T) (*Ledger, *time.Time) {
    t.Helper()
    l := New()
    now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
    l.now = func() time.Time { return now }
    l.Seed(testEvent, []model.Seat{
        {ID: "A1", Row: "A", Number: 1, PriceCents: 5000},
        {ID: "A2", Row: "A", Number: 2, PriceCents: 5000},
        {ID: "B2", Row: "B", Number: 2, PriceCents: 3500},
    })
    return l, &now
}

func TestHoldGrantsExclusiveClaim(t *testing.T) {
    l, now := newTestLedger(t)

    res, err := l.Hold(testEvent, "A1", "session_x", 5*time.Minute)
    require.NoError(t, err)
    assert.Equal(t, "A1", res.SeatID)
    assert.Equal(t, now.Add(5*time.Minute), res.ExpiresAt)

    _, err = l.Hold(testEvent, "A1", "session_y", 5*time.Minute)
    assert.ErrorIs(t, err, ErrSeatUnavailable)
}

func TestConcurrentHoldsExactlyOneWins(t *testing.T) {
    l, _ := newTestLedger(t)

    const n = 64
    var wg sync.WaitGroup
    errs := make([]error, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            sid := "session_" + string(rune('a'+i%26)) + string(rune('a'+i/26))
            _, errs[i] = l.Hold(testEvent, "A1", sid, time.Minute)
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, err := range errs {
        if err == nil {
            wins++
        } else {
            assert.ErrorIs(t, err, ErrSeatUnavailable)
        }
    }
    assert.Equal(t, 1, wins, "exactly one concurrent hold must succeed")
}

func TestOneActiveHoldPerSessionPerEvent(t *testing.T) {
    l, now := newTestLedger(t)

    _, err := l.Hold(testEvent, "A1", "session_x", 5*time.Minute)
    require.NoError(t, err)

    _, err = l.Hold(testEvent, "A2", "session_x", 5*time.Minute)
    assert.ErrorIs(t, err, ErrAlreadyHolding)

    // Once the first hold lapses the session may hold another seat.
    *now = now.Add(6 * time.Minute)
    _, err = l.Hold(testEvent, "A2", "session_x", 5*time.Minute)
    assert.NoError(t, err)
}

func TestReleaseSemantics(t *testing.T) {
    l, now := newTestLedger(t)

    _, err := l.Hold(testEvent, "A1", "session_x", 5*time.Minute)
    require.NoError(t, err)

    assert.ErrorIs(t, l.Release(testEvent, "A1", "session_y"), ErrNotHolder)
    require.NoError(t, l.Release(testEvent, "A1", "session_x"))

    // Releasing an already-available seat is a no-op, not an error.
    assert.NoError(t, l.Release(testEvent, "A1", "session_x"))

    // Release after expiry is equally a no-op.
    _, err = l.Hold(testEvent, "A1", "session_x", time.Minute)
    require.NoError(t, err)
    *now = now.Add(2 * time.Minute)
    assert.NoError(t, l.Release(testEvent, "A1", "session_x"))

    // A sold seat can never be released.
    _, err = l.Hold(testEvent, "A2", "session_x", time.Minute)
    require.NoError(t, err)
    _, err = l.ConfirmSale(testEvent, "A2", "session_x")
    require.NoError(t, err)
    assert.ErrorIs(t, l.Release(testEvent, "A2", "session_x"), ErrSeatUnavailable)
}

func TestConfirmSaleAfterExpiryFails(t *testing.T) {
    l, now := newTestLedger(t)

    _, err := l.Hold(testEvent, "B2", "session_x", 5*time.Second)
    require.NoError(t, err)

    *now = now.Add(6 * time.Second)
    _, err = l.ConfirmSale(testEvent, "B2", "session_x")
    assert.ErrorIs(t, err, ErrHoldExpired)

    // The failed confirm reclaimed the seat, so another session can
    // hold it straight away.
    _, err = l.Hold(testEvent, "B2", "session_y", 5*time.Second)
    assert.NoError(t, err)
}

func TestSweepReclaimsExpiredHolds(t *testing.T) {
    l, now := newTestLedger(t)

    _, err := l.Hold(testEvent, "B2", "session_x", 5*time.Second)
    require.NoError(t, err)

    assert.Empty(t, l.SweepExpired(), "nothing to reclaim before expiry")

    *now = now.Add(6 * time.Second)
    reclaimed := l.SweepExpired()
    require.Len(t, reclaimed, 1)
    assert.Equal(t, Reclaimed{EventID: testEvent, SeatID: "B2", SessionID: "session_x"}, reclaimed[0])

    seats, err := l.Snapshot(testEvent)
    require.NoError(t, err)
    for _, s := range seats {
        if s.ID == "B2" {
            assert.Equal(t, model.SeatAvailable, s.Status)
            assert.Empty(t, s.HeldBy)
        }
    }
}

func TestNoDoubleBooking(t *testing.T) {
    l, _ := newTestLedger(t)

    _, err := l.Hold(testEvent, "A1", "session_x", 5*time.Minute)
    require.NoError(t, err)

    _, err = l.Hold(testEvent, "A1", "session_y", 5*time.Minute)
    assert.ErrorIs(t, err, ErrSeatUnavailable)

    sold, err := l.ConfirmSale(testEvent, "A1", "session_x")
    require.NoError(t, err)
    assert.Equal(t, model.SeatSold, sold.Status)
    assert.Equal(t, "session_x", sold.HeldBy)

    _, err = l.Hold(testEvent, "A1", "session_y", 5*time.Minute)
    assert.ErrorIs(t, err, ErrSeatUnavailable)

    // Re-confirm by the owner stays idempotent; anyone else is misuse.
    _, err = l.ConfirmSale(testEvent, "A1", "session_x")
    assert.NoError(t, err)
    _, err = l.ConfirmSale(testEvent, "A1", "session_y")
    assert.ErrorIs(t, err, ErrSeatUnavailable)
}

func TestActiveHoldTracksCurrentSeat(t *testing.T) {
    l, now := newTestLedger(t)

    _, ok := l.ActiveHold(testEvent, "session_x")
    assert.False(t, ok)

    _, err := l.Hold(testEvent, "A1", "session_x", time.Minute)
    require.NoError(t, err)

    seat, ok := l.ActiveHold(testEvent, "session_x")
    require.True(t, ok)
    assert.Equal(t, "A1", seat.ID)

    *now = now.Add(2 * time.Minute)
    _, ok = l.ActiveHold(testEvent, "session_x")
    assert.False(t, ok, "expired hold must not be reported as active")
}

func TestUnknownEventAndSeat(t *testing.T) {
    l, _ := newTestLedger(t)

    _, err := l.Hold(99, "A1", "session_x", time.Minute)
    assert.ErrorIs(t, err, ErrEventNotFound)

    _, err = l.Hold(testEvent, "Z9", "session_x", time.Minute)
    assert.ErrorIs(t, err, ErrSeatNotFound)

    _, err = l.Snapshot(99)
    assert.True(t, errors.Is(err, ErrEventNotFound))
}

func TestSnapshotSortedByRowAndNumber(t *testing.T) {
    l, _ := newTestLedger(t)

    seats, err := l.Snapshot(testEvent)
    require.NoError(t, err)
    require.Len(t, seats, 3)
    assert.Equal(t, []string{"A1", "A2", "B2"}, []string{seats[0].ID, seats[1].ID, seats[2].ID})
}
