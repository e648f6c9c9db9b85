package model

import "time"

// QueueEntry is a session's place in an event's admission queue.
// Positions are a total order consistent with enqueue time, ties
// broken by session id, and a session has at most one entry per
// event.  Entries live in Redis; this struct is the shape returned
// to callers of the queue.
//
// Fields:
//  EventID   – event whose queue the session is waiting in.
//  SessionID – session holding the place.
//  EnteredAt – when the session joined.
//  Position  – 1-based place in line.
type QueueEntry struct {
    EventID   uint64    `json:"event_id"`
    SessionID string    `json:"session_id"`
    EnteredAt time.Time `json:"entered_at"`
    Position  int64     `json:"position"`
}

// QueueStatus is the polling view of a session's place in line.
// CanProceed becomes true once Position falls inside the admitted
// window; EstimatedWait is derived from the moving-average admission
// rate.
type QueueStatus struct {
    Position      int64 `json:"position"`
    AdmittedCount int64 `json:"admitted_count"`
    Waiting       int64 `json:"waiting"`
    CanProceed    bool  `json:"can_proceed"`
    EstimatedWait int64 `json:"estimated_wait_seconds"`
}
