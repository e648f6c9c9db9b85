package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-waitroom/internal/model"
)

// EventRepo reads the event catalog.  Events and their seat maps are
// authored out of band; at runtime the coordinator only reads them,
// with the single exception of marking seats sold after a successful
// payment (see BookingRepo.MarkSeatsSold).
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo given a DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// GetByID returns a single event.  sql.ErrNoRows is returned when no
// event with the given id exists.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	var e model.Event
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, venue, sales_open_at, starts_at, created_at
		 FROM events WHERE id = ? LIMIT 1`,
		id).Scan(&e.ID, &e.Name, &e.Venue, &e.SalesOpenAt, &e.StartsAt, &e.CreatedAt)
	return e, err
}

// ListUpcoming returns events whose start time is still in the
// future, ordered by start time ascending.
func (r *EventRepo) ListUpcoming(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, venue, sales_open_at, starts_at, created_at
		 FROM events WHERE starts_at > NOW() ORDER BY starts_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Venue, &e.SalesOpenAt, &e.StartsAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LoadSeats returns every seat row for an event, used to seed the
// in-memory ledger at startup.  Seats previously sold come back with
// their status and owning session intact so a restart never reopens
// a sold seat.
func (r *EventRepo) LoadSeats(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id, row_label, seat_number, price_cents, status, COALESCE(sold_to, '')
		 FROM seats WHERE event_id = ?
		 ORDER BY row_label, seat_number`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		var status string
		s.EventID = eventID
		if err := rows.Scan(&s.ID, &s.Row, &s.Number, &s.PriceCents, &status, &s.HeldBy); err != nil {
			return nil, err
		}
		// The store only persists available and sold; holds are
		// volatile and die with the process.
		s.Status = model.SeatAvailable
		if status == string(model.SeatSold) {
			s.Status = model.SeatSold
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}
