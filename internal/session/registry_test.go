package session

import (
    "context"
    "encoding/json"
    "testing"
    "time"

    "github.com/go-redis/redismock/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/ticket-waitroom/internal/model"
)

func TestNewIDFormat(t *testing.T) {
    id, err := NewID()
    require.NoError(t, err)
    assert.True(t, ValidID(id), "generated id %q must match the issued format", id)
    assert.Len(t, id, len("session_")+64)

    // Two ids must never collide in practice; at minimum they differ.
    other, err := NewID()
    require.NoError(t, err)
    assert.NotEqual(t, id, other)
}

func TestValidIDRejectsGarbage(t *testing.T) {
    assert.False(t, ValidID(""))
    assert.False(t, ValidID("session_"))
    assert.False(t, ValidID("session_XYZ"))
    assert.False(t, ValidID("other_0000000000000000000000000000000000000000000000000000000000000000"))
}

func TestGetRoundTrip(t *testing.T) {
    db, mock := redismock.NewClientMock()
    r := NewRegistry(db, 24*time.Hour)

    s := model.Session{
        ID:        "session_" + repeat64("a"),
        State:     model.SessionWaiting,
        EventID:   7,
        CreatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
    }
    raw, err := json.Marshal(s)
    require.NoError(t, err)

    mock.ExpectGet("wr:session:" + s.ID).SetVal(string(raw))

    got, err := r.Get(context.Background(), s.ID)
    require.NoError(t, err)
    assert.Equal(t, s.State, got.State)
    assert.Equal(t, uint64(7), got.EventID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownSession(t *testing.T) {
    db, mock := redismock.NewClientMock()
    r := NewRegistry(db, 24*time.Hour)

    id := "session_" + repeat64("b")
    mock.ExpectGet("wr:session:" + id).RedisNil()

    _, err := r.Get(context.Background(), id)
    assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetRejectsMalformedIDWithoutRedis(t *testing.T) {
    db, mock := redismock.NewClientMock()
    r := NewRegistry(db, 24*time.Hour)

    _, err := r.Get(context.Background(), "not-a-session")
    assert.ErrorIs(t, err, ErrSessionNotFound)
    assert.NoError(t, mock.ExpectationsWereMet(), "malformed ids must not reach redis")
}

func TestTouchMissingSession(t *testing.T) {
    db, mock := redismock.NewClientMock()
    r := NewRegistry(db, 24*time.Hour)

    id := "session_" + repeat64("c")
    mock.ExpectExpire("wr:session:"+id, 24*time.Hour).SetVal(false)

    assert.ErrorIs(t, r.Touch(context.Background(), id), ErrSessionNotFound)
}

func repeat64(s string) string {
    out := ""
    for i := 0; i < 64; i++ {
        out += s
    }
    return out
}
