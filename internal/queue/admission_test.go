package queue

import (
    "context"
    "testing"
    "time"

    "github.com/go-redis/redismock/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*AdmissionQueue, redismock.ClientMock, time.Time) {
    t.Helper()
    db, mock := redismock.NewClientMock()
    q := NewAdmissionQueue(db, 30*time.Second)
    now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
    q.now = func() time.Time { return now }
    return q, mock, now
}

func TestEnterReturnsOneBasedPosition(t *testing.T) {
    q, mock, now := newTestQueue(t)
    ctx := context.Background()

    mock.ExpectEvalSha(enterScript.Hash(), []string{"wr:queue:1"}, "session_a", now.UnixNano()).
        SetVal(int64(0))

    pos, err := q.Enter(ctx, 1, "session_a")
    require.NoError(t, err)
    assert.Equal(t, int64(1), pos)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnterIdempotentKeepsPosition(t *testing.T) {
    q, mock, now := newTestQueue(t)
    ctx := context.Background()

    // The script returns the existing rank when the member is
    // already present, regardless of the new score.
    mock.ExpectEvalSha(enterScript.Hash(), []string{"wr:queue:1"}, "session_a", now.UnixNano()).
        SetVal(int64(4))

    pos, err := q.Enter(ctx, 1, "session_a")
    require.NoError(t, err)
    assert.Equal(t, int64(5), pos)
}

func TestPositionInsideAdmittedWindow(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    mock.ExpectZRank("wr:queue:1", "session_a").SetVal(4)
    mock.ExpectGet("wr:admitted:1").SetVal("10")
    mock.ExpectZCard("wr:queue:1").SetVal(15)

    st, err := q.Position(ctx, 1, "session_a")
    require.NoError(t, err)
    assert.Equal(t, int64(5), st.Position)
    assert.True(t, st.CanProceed)
    assert.Zero(t, st.EstimatedWait)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionEstimatesWaitFromRate(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    mock.ExpectZRank("wr:queue:1", "session_a").SetVal(13)
    mock.ExpectGet("wr:admitted:1").SetVal("10")
    mock.ExpectZCard("wr:queue:1").SetVal(15)
    mock.ExpectHGet("wr:stats:1", "rate").SetVal("2.0")

    st, err := q.Position(ctx, 1, "session_a")
    require.NoError(t, err)
    assert.Equal(t, int64(14), st.Position)
    assert.False(t, st.CanProceed)
    // 4 sessions ahead at 2 admissions/sec.
    assert.Equal(t, int64(2), st.EstimatedWait)
}

func TestPositionFallsBackToDefaultWait(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    mock.ExpectZRank("wr:queue:1", "session_a").SetVal(10)
    mock.ExpectGet("wr:admitted:1").RedisNil()
    mock.ExpectZCard("wr:queue:1").SetVal(11)
    mock.ExpectHGet("wr:stats:1", "rate").RedisNil()

    st, err := q.Position(ctx, 1, "session_a")
    require.NoError(t, err)
    assert.Equal(t, int64(11), st.Position)
    assert.False(t, st.CanProceed)
    assert.Equal(t, int64(30), st.EstimatedWait)
}

func TestPositionUnknownSession(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    mock.ExpectZRank("wr:queue:1", "session_zz").RedisNil()

    _, err := q.Position(ctx, 1, "session_zz")
    assert.ErrorIs(t, err, ErrNotInQueue)
}

func TestAdmitNextReturnsNewlyAdmitted(t *testing.T) {
    q, mock, now := newTestQueue(t)
    ctx := context.Background()

    keys := []string{"wr:queue:1", "wr:admitted:1", "wr:stats:1"}
    mock.ExpectEvalSha(admitScript.Hash(), keys, int64(2), now.UnixMilli()).
        SetVal([]interface{}{int64(10), int64(12)})
    mock.ExpectZRange("wr:queue:1", 10, 11).SetVal([]string{"session_k", "session_l"})

    admitted, err := q.AdmitNext(ctx, 1, 2)
    require.NoError(t, err)
    assert.Equal(t, []string{"session_k", "session_l"}, admitted)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitNextBoundedByWaiting(t *testing.T) {
    q, mock, now := newTestQueue(t)
    ctx := context.Background()

    // Script reports no window growth: everyone is already admitted.
    keys := []string{"wr:queue:1", "wr:admitted:1", "wr:stats:1"}
    mock.ExpectEvalSha(admitScript.Hash(), keys, int64(5), now.UnixMilli()).
        SetVal([]interface{}{int64(7), int64(7)})

    admitted, err := q.AdmitNext(ctx, 1, 5)
    require.NoError(t, err)
    assert.Empty(t, admitted)
}

func TestAdmitNextNonPositive(t *testing.T) {
    q, _, _ := newTestQueue(t)

    admitted, err := q.AdmitNext(context.Background(), 1, 0)
    require.NoError(t, err)
    assert.Nil(t, admitted)
}

func TestExit(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    keys := []string{"wr:queue:1", "wr:admitted:1"}
    mock.ExpectEvalSha(exitScript.Hash(), keys, "session_a").SetVal(int64(1))

    require.NoError(t, q.Exit(ctx, 1, "session_a"))
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExitUnknownSession(t *testing.T) {
    q, mock, _ := newTestQueue(t)
    ctx := context.Background()

    keys := []string{"wr:queue:1", "wr:admitted:1"}
    mock.ExpectEvalSha(exitScript.Hash(), keys, "session_b").SetVal(int64(0))

    assert.ErrorIs(t, q.Exit(ctx, 1, "session_b"), ErrNotInQueue)
    assert.NoError(t, mock.ExpectationsWereMet())
}
