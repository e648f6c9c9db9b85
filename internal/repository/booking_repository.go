package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/ticket-waitroom/internal/model"
)

// BookingRepo archives terminal bookings and writes sold seats
// through to the catalog.  Bookings live in memory while active; a
// row only ever appears here once the outcome is decided, which is
// why every write is an idempotent upsert keyed by booking id.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// SaveBooking upserts a booking and its seat rows in one
// transaction.  Re-archiving the same booking (a retried callback, a
// sweep racing a cancel) overwrites the state column and leaves the
// seat rows untouched.
func (r *BookingRepo) SaveBooking(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO bookings (id, payment_id, event_id, session_id, amount_cents, state, payment_deadline, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE state = VALUES(state)`
	if _, err := tx.ExecContext(ctx, q,
		b.ID, b.PaymentID, b.EventID, b.SessionID, b.AmountCents,
		string(b.State), b.PaymentDeadline.UTC(), b.CreatedAt.UTC()); err != nil {
		return err
	}

	if len(b.SeatIDs) > 0 {
		query := `INSERT IGNORE INTO booking_seats (booking_id, event_id, seat_id) VALUES `
		args := make([]interface{}, 0, len(b.SeatIDs)*3)
		for i, seatID := range b.SeatIDs {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, b.ID, b.EventID, seatID)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkSeatsSold flips the given seats to sold in the catalog,
// recording the owning session.  Seats already sold are left alone
// so a replayed success callback cannot reassign an owner.
func (r *BookingRepo) MarkSeatsSold(ctx context.Context, eventID uint64, seatIDs []string, sessionID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(seatIDs))
	args := make([]interface{}, 0, len(seatIDs)+2)
	args = append(args, sessionID, eventID)
	for i, id := range seatIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE seats SET status = 'sold', sold_to = ?
	          WHERE event_id = ? AND seat_id IN (` + strings.Join(placeholders, ",") + `)
	          AND status <> 'sold'`
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByID loads an archived booking with its seats.  Only terminal
// bookings exist in the store; lookups for a still-active booking
// return sql.ErrNoRows and should fall back to the orchestrator.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	return r.getWhere(ctx, "id", id)
}

// GetByPaymentID resolves an archived booking from a gateway payment
// id, for callbacks that replay after the booking left memory.
func (r *BookingRepo) GetByPaymentID(ctx context.Context, paymentID string) (model.Booking, error) {
	return r.getWhere(ctx, "payment_id", paymentID)
}

func (r *BookingRepo) getWhere(ctx context.Context, column, value string) (model.Booking, error) {
	var b model.Booking
	var state string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, payment_id, event_id, session_id, amount_cents, state, payment_deadline, created_at
		 FROM bookings WHERE `+column+` = ? LIMIT 1`,
		value).Scan(&b.ID, &b.PaymentID, &b.EventID, &b.SessionID, &b.AmountCents, &state, &b.PaymentDeadline, &b.CreatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.State = model.BookingState(state)

	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var seatID string
		if err := rows.Scan(&seatID); err != nil {
			return model.Booking{}, err
		}
		b.SeatIDs = append(b.SeatIDs, seatID)
	}
	return b, rows.Err()
}
