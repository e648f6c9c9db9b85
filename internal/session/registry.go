// Package session owns the registry that maps opaque bearer
// identifiers to server-side session records.  Clients hold only the
// identifier; queue position, holds and bookings are correlated
// through it.  Records live in Redis under a TTL, so expired
// sessions are garbage collected without a sweep of their own.
package session

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "regexp"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-waitroom/internal/model"
)

// ErrSessionNotFound is returned when no record exists for the
// identifier, either because it never did or because it expired.
var ErrSessionNotFound = errors.New("session not found")

// idPattern matches the identifier format handed to clients:
// "session_" followed by 64 hex characters (32 random bytes).
var idPattern = regexp.MustCompile(`^session_[0-9a-f]{64}$`)

// NewID returns a fresh session identifier with 256 bits of entropy.
func NewID() (string, error) {
    b := make([]byte, 32)
    if _, err := rand.Read(b); err != nil {
        return "", fmt.Errorf("session: generate id: %w", err)
    }
    return "session_" + hex.EncodeToString(b), nil
}

// ValidID reports whether s looks like an identifier this registry
// could have issued.  Anything else is rejected before touching
// Redis.
func ValidID(s string) bool { return idPattern.MatchString(s) }

// Registry stores session records in Redis with a sliding TTL.
type Registry struct {
    rdb *redis.Client
    ttl time.Duration
    now func() time.Time
}

// NewRegistry returns a registry whose records expire ttl after the
// last touch.
func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
    return &Registry{
        rdb: rdb,
        ttl: ttl,
        now: func() time.Time { return time.Now().UTC() },
    }
}

func (r *Registry) key(id string) string { return "wr:session:" + id }

// Create mints a new session record and returns it.  Sessions start
// unqueued and anonymous; BindCustomer attaches an identity later.
func (r *Registry) Create(ctx context.Context) (model.Session, error) {
    id, err := NewID()
    if err != nil {
        return model.Session{}, err
    }
    now := r.now()
    s := model.Session{
        ID:        id,
        State:     model.SessionUnqueued,
        CreatedAt: now,
        ExpiresAt: now.Add(r.ttl),
    }
    if err := r.write(ctx, s); err != nil {
        return model.Session{}, err
    }
    return s, nil
}

// Get loads the record behind the identifier.
func (r *Registry) Get(ctx context.Context, id string) (model.Session, error) {
    if !ValidID(id) {
        return model.Session{}, ErrSessionNotFound
    }
    raw, err := r.rdb.Get(ctx, r.key(id)).Result()
    if errors.Is(err, redis.Nil) {
        return model.Session{}, ErrSessionNotFound
    }
    if err != nil {
        return model.Session{}, fmt.Errorf("session: get: %w", err)
    }
    var s model.Session
    if err := json.Unmarshal([]byte(raw), &s); err != nil {
        return model.Session{}, fmt.Errorf("session: unmarshal: %w", err)
    }
    return s, nil
}

// Touch refreshes the TTL without changing the record.  Every
// authenticated request path calls this so active sessions never
// lapse mid-booking.
func (r *Registry) Touch(ctx context.Context, id string) error {
    ok, err := r.rdb.Expire(ctx, r.key(id), r.ttl).Result()
    if err != nil {
        return fmt.Errorf("session: touch: %w", err)
    }
    if !ok {
        return ErrSessionNotFound
    }
    return nil
}

// BindCustomer attaches the authenticated customer to the session.
func (r *Registry) BindCustomer(ctx context.Context, id string, customerID uint64) error {
    return r.mutate(ctx, id, func(s *model.Session) {
        s.CustomerID = customerID
    })
}

// SetState records where the session stands in the booking flow,
// together with the event and booking it concerns.
func (r *Registry) SetState(ctx context.Context, id string, state model.SessionState, eventID uint64, bookingID string) error {
    return r.mutate(ctx, id, func(s *model.Session) {
        s.State = state
        if eventID != 0 {
            s.EventID = eventID
        }
        s.BookingID = bookingID
    })
}

// Delete removes the record immediately, e.g. on explicit logout.
func (r *Registry) Delete(ctx context.Context, id string) error {
    if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
        return fmt.Errorf("session: delete: %w", err)
    }
    return nil
}

func (r *Registry) mutate(ctx context.Context, id string, fn func(*model.Session)) error {
    s, err := r.Get(ctx, id)
    if err != nil {
        return err
    }
    fn(&s)
    s.ExpiresAt = r.now().Add(r.ttl)
    return r.write(ctx, s)
}

func (r *Registry) write(ctx context.Context, s model.Session) error {
    data, err := json.Marshal(s)
    if err != nil {
        return fmt.Errorf("session: marshal: %w", err)
    }
    if err := r.rdb.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
        return fmt.Errorf("session: write: %w", err)
    }
    return nil
}
