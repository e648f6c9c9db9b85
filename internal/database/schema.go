package database

import (
	"context"
	"database/sql"
)

// schema holds the DDL for every table the service touches.  Each
// statement is idempotent so Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		venue         VARCHAR(255) NOT NULL,
		sales_open_at DATETIME NOT NULL,
		starts_at     DATETIME NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		event_id    BIGINT UNSIGNED NOT NULL,
		seat_id     VARCHAR(16) NOT NULL,
		row_label   VARCHAR(8) NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		status      ENUM('available','sold') NOT NULL DEFAULT 'available',
		sold_to     VARCHAR(80) NULL,
		PRIMARY KEY (event_id, seat_id),
		KEY idx_seats_row (event_id, row_label, seat_number)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id               CHAR(36) PRIMARY KEY,
		payment_id       CHAR(36) NOT NULL UNIQUE,
		event_id         BIGINT UNSIGNED NOT NULL,
		session_id       VARCHAR(80) NOT NULL,
		amount_cents     INT UNSIGNED NOT NULL,
		state            VARCHAR(20) NOT NULL,
		payment_deadline DATETIME NOT NULL,
		created_at       DATETIME NOT NULL,
		KEY idx_bookings_session (session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id CHAR(36) NOT NULL,
		event_id   BIGINT UNSIGNED NOT NULL,
		seat_id    VARCHAR(16) NOT NULL,
		PRIMARY KEY (booking_id, seat_id)
	)`,
}

// Migrate applies the schema.  All statements use IF NOT EXISTS, so
// running against an existing database is harmless.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
