// Package queue implements the per-event admission queue that bounds
// how many sessions may proceed to seat selection at once.  State
// lives in Redis so a coordinator restart does not lose anyone's
// place in line: a sorted set per event ordered by enqueue time
// (ties broken lexicographically by session id, which makes
// positions a total order), an admitted counter, and a small stats
// hash feeding the wait estimate.
package queue

import (
    "context"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/ticket-waitroom/internal/model"
)

// ErrNotInQueue is returned by Position for a session that has no
// entry in the event's queue.  Handlers should translate this into
// a 404.
var ErrNotInQueue = errors.New("session not in queue")

// enterScript appends the session to the queue tail unless it is
// already present, then returns its 0-based rank.  Running this as
// one script makes re-entry idempotent: the same session can never
// occupy two positions.
var enterScript = redis.NewScript(`
    local qkey = KEYS[1]
    local member = ARGV[1]
    local score = tonumber(ARGV[2])

    if redis.call('ZSCORE', qkey, member) == false then
        redis.call('ZADD', qkey, score, member)
    end
    return redis.call('ZRANK', qkey, member)
`)

// admitScript widens the admitted window by up to n, bounded by the
// number of sessions currently waiting, and folds the admission into
// the moving-average rate used for wait estimates.  Returns the
// window before and after.
var admitScript = redis.NewScript(`
    local qkey = KEYS[1]
    local akey = KEYS[2]
    local skey = KEYS[3]
    local n = tonumber(ARGV[1])
    local now_ms = tonumber(ARGV[2])

    local waiting = redis.call('ZCARD', qkey)
    local cur = tonumber(redis.call('GET', akey) or '0')
    local target = cur + n
    if target > waiting then target = waiting end
    if target < cur then target = cur end
    redis.call('SET', akey, target)

    local added = target - cur
    if added > 0 then
        local last_ms = tonumber(redis.call('HGET', skey, 'last_ms') or '0')
        if last_ms > 0 and now_ms > last_ms then
            local inst = (added * 1000.0) / (now_ms - last_ms)
            local rate = tonumber(redis.call('HGET', skey, 'rate') or '0')
            if rate > 0 then
                rate = (0.3 * inst) + (0.7 * rate)
            else
                rate = inst
            end
            redis.call('HSET', skey, 'rate', rate)
        end
        redis.call('HSET', skey, 'last_ms', now_ms)
    end
    return { cur, target }
`)

// exitScript removes the member and, when it sat inside the admitted
// window, shrinks the window by one.  Removal shifts every later
// rank down, so without the decrement an exit would silently admit
// the next waiting session; slot freedom must come from AdmitNext
// alone.
var exitScript = redis.NewScript(`
    local qkey = KEYS[1]
    local akey = KEYS[2]
    local member = ARGV[1]

    local rank = redis.call('ZRANK', qkey, member)
    if rank == false then
        return 0
    end
    redis.call('ZREM', qkey, member)
    local admitted = tonumber(redis.call('GET', akey) or '0')
    if rank < admitted then
        redis.call('SET', akey, admitted - 1)
    end
    return 1
`)

// AdmissionQueue wraps the Redis structures for every event queue.
// DefaultWait is reported while no admission history exists yet.
type AdmissionQueue struct {
    rdb         *redis.Client
    defaultWait time.Duration
    now         func() time.Time
}

// NewAdmissionQueue returns a queue bound to the given Redis client.
func NewAdmissionQueue(rdb *redis.Client, defaultWait time.Duration) *AdmissionQueue {
    return &AdmissionQueue{
        rdb:         rdb,
        defaultWait: defaultWait,
        now:         func() time.Time { return time.Now().UTC() },
    }
}

func queueKey(eventID uint64) string    { return fmt.Sprintf("wr:queue:%d", eventID) }
func admittedKey(eventID uint64) string { return fmt.Sprintf("wr:admitted:%d", eventID) }
func statsKey(eventID uint64) string    { return fmt.Sprintf("wr:stats:%d", eventID) }

// Enter appends the session to the tail of the event's queue and
// returns its 1-based position.  Entering again is idempotent and
// returns the existing position.
func (q *AdmissionQueue) Enter(ctx context.Context, eventID uint64, sessionID string) (int64, error) {
    score := q.now().UnixNano()
    rank, err := enterScript.Run(ctx, q.rdb, []string{queueKey(eventID)}, sessionID, score).Int64()
    if err != nil {
        return 0, fmt.Errorf("queue enter: %w", err)
    }
    return rank + 1, nil
}

// Position reports where the session stands: its 1-based position,
// whether it falls inside the admitted window, and an estimated wait
// derived from the moving-average admission rate.
func (q *AdmissionQueue) Position(ctx context.Context, eventID uint64, sessionID string) (model.QueueStatus, error) {
    rank, err := q.rdb.ZRank(ctx, queueKey(eventID), sessionID).Result()
    if errors.Is(err, redis.Nil) {
        return model.QueueStatus{}, ErrNotInQueue
    }
    if err != nil {
        return model.QueueStatus{}, fmt.Errorf("queue rank: %w", err)
    }

    admitted, err := q.rdb.Get(ctx, admittedKey(eventID)).Int64()
    if err != nil && !errors.Is(err, redis.Nil) {
        return model.QueueStatus{}, fmt.Errorf("queue admitted: %w", err)
    }
    waiting, err := q.rdb.ZCard(ctx, queueKey(eventID)).Result()
    if err != nil {
        return model.QueueStatus{}, fmt.Errorf("queue card: %w", err)
    }

    position := rank + 1
    st := model.QueueStatus{
        Position:      position,
        AdmittedCount: admitted,
        Waiting:       waiting,
        CanProceed:    position <= admitted,
    }
    if !st.CanProceed {
        st.EstimatedWait = q.estimateWait(ctx, eventID, position-admitted)
    }
    return st, nil
}

// estimateWait converts the number of sessions ahead of the caller
// into seconds using the stored admission rate, falling back to the
// configured default when no history exists.
func (q *AdmissionQueue) estimateWait(ctx context.Context, eventID uint64, ahead int64) int64 {
    if ahead <= 0 {
        return 0
    }
    rateStr, err := q.rdb.HGet(ctx, statsKey(eventID), "rate").Result()
    if err != nil {
        return int64(q.defaultWait / time.Second)
    }
    rate, err := strconv.ParseFloat(rateStr, 64)
    if err != nil || rate <= 0 {
        return int64(q.defaultWait / time.Second)
    }
    return int64(float64(ahead)/rate + 0.5)
}

// AdmitNext widens the admitted window by up to n, bounded by the
// number of waiting sessions, and returns the session ids that just
// became admitted so the caller can notify them.  This is invoked by
// the capacity controller loop, never by client requests.
func (q *AdmissionQueue) AdmitNext(ctx context.Context, eventID uint64, n int64) ([]string, error) {
    if n <= 0 {
        return nil, nil
    }
    keys := []string{queueKey(eventID), admittedKey(eventID), statsKey(eventID)}
    vals, err := admitScript.Run(ctx, q.rdb, keys, n, q.now().UnixMilli()).Int64Slice()
    if err != nil {
        return nil, fmt.Errorf("queue admit: %w", err)
    }
    if len(vals) != 2 || vals[1] <= vals[0] {
        return nil, nil
    }
    // Positions cur..target-1 (0-based ranks) just entered the window.
    members, err := q.rdb.ZRange(ctx, queueKey(eventID), vals[0], vals[1]-1).Result()
    if err != nil {
        return nil, fmt.Errorf("queue range: %w", err)
    }
    return members, nil
}

// Exit removes the session's entry entirely.  A leaver inside the
// admitted window also shrinks the window by one: removal shifts
// every later rank down, and the decrement keeps the set of admitted
// sessions unchanged.  New slots open through AdmitNext alone.
// Returns ErrNotInQueue when the session was not queued.
func (q *AdmissionQueue) Exit(ctx context.Context, eventID uint64, sessionID string) error {
    keys := []string{queueKey(eventID), admittedKey(eventID)}
    removed, err := exitScript.Run(ctx, q.rdb, keys, sessionID).Int64()
    if err != nil {
        return fmt.Errorf("queue exit: %w", err)
    }
    if removed == 0 {
        return ErrNotInQueue
    }
    return nil
}
