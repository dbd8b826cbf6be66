package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the single source of truth for the reading, settings and
// admin tables. Statements are idempotent so every service can run the
// bootstrap at startup.
const schema = `
CREATE TABLE IF NOT EXISTS reading (
	temperature    REAL      NOT NULL,
	humidity       REAL      NOT NULL,
	recording_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reading_time ON reading (recording_time);

CREATE TABLE IF NOT EXISTS pico_reading (
	plant_id       INTEGER   NOT NULL,
	moisture       REAL      NOT NULL,
	recording_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pico_reading_plant_time ON pico_reading (plant_id, recording_time);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT      NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS admin (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	password_hash TEXT      NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
`

// Bootstrap creates the required tables if they are absent.
func (db *DB) Bootstrap(ctx context.Context) error {
	if err := db.check(); err != nil {
		return err
	}
	return db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	})
}

// SeedAdmin inserts the admin row with the given password hash if no
// admin has been configured yet. An existing row is never overwritten.
func (db *DB) SeedAdmin(ctx context.Context, passwordHash, recordedAt string) error {
	if err := db.check(); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO admin (id, password_hash, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, passwordHash, recordedAt)
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	return nil
}

// AdminPasswordHash returns the stored admin hash, or sql.ErrNoRows
// when the admin password has not been configured.
func (db *DB) AdminPasswordHash(ctx context.Context) (string, error) {
	if err := db.check(); err != nil {
		return "", err
	}
	var hash string
	err := db.conn.QueryRowContext(ctx, "SELECT password_hash FROM admin WHERE id = 1").Scan(&hash)
	if err != nil {
		return "", err
	}
	return hash, nil
}
