package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// Dates of reservations and item attributes are stored as proleptic Gregorian
// day ordinals (INTEGER), item state timestamps as Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS user_teams (
    user_id INTEGER NOT NULL REFERENCES users(id),
    team_id TEXT NOT NULL,
    PRIMARY KEY (user_id, team_id)
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bays (
    id          TEXT PRIMARY KEY,
    external_id TEXT,
    name        TEXT NOT NULL,
    description TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id                 TEXT PRIMARY KEY,
    external_id        TEXT,
    manufacturer       TEXT,
    model              TEXT,
    serial_number      TEXT,
    manufacture_date   INTEGER,
    purchase_date      INTEGER,
    first_use_date     INTEGER,
    name               TEXT NOT NULL,
    description        TEXT,
    report_profile_id  TEXT,
    total_report_state TEXT CHECK (total_report_state IN ('fit', 'limited', 'unfit')),
    condition          TEXT NOT NULL DEFAULT 'new' CHECK (condition IN ('new', 'good', 'ok', 'bad', 'gone')),
    condition_comment  TEXT,
    last_service       INTEGER,
    picture_id         TEXT,
    group_id           TEXT,
    tags               TEXT NOT NULL DEFAULT '[]',
    bay_id             TEXT REFERENCES bays(id) ON DELETE SET NULL,
    reservation_id     TEXT,
    image              BLOB,
    image_mime         TEXT,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_external_id ON items(external_id);

CREATE TABLE IF NOT EXISTS reservations (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL CHECK (type IN ('private', 'team')),
    code       TEXT NOT NULL,
    state      TEXT NOT NULL DEFAULT 'reserved' CHECK (state IN ('reserved', 'taken', 'returned')),
    active     INTEGER NOT NULL DEFAULT 1,
    name       TEXT NOT NULL,
    start_day  INTEGER NOT NULL,
    end_day    INTEGER NOT NULL CHECK (end_day >= start_day),
    user_id    TEXT NOT NULL,
    team_id    TEXT,
    contact    TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reservations_active_range
    ON reservations(active, end_day, start_day);
CREATE INDEX IF NOT EXISTS idx_reservations_user_range
    ON reservations(user_id, end_day, start_day);
CREATE INDEX IF NOT EXISTS idx_reservations_code ON reservations(code);
CREATE INDEX IF NOT EXISTS idx_reservations_state ON reservations(state);

CREATE TABLE IF NOT EXISTS item_reservations (
    id             TEXT PRIMARY KEY,
    reservation_id TEXT NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
    item_id        TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    state          TEXT NOT NULL CHECK (state IN ('reserved', 'taken', 'returned', 'return-problem')),
    start_day      INTEGER NOT NULL,
    end_day        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_item_reservations_item_range
    ON item_reservations(item_id, end_day, start_day);
CREATE INDEX IF NOT EXISTS idx_item_reservations_range
    ON item_reservations(end_day, start_day);
CREATE INDEX IF NOT EXISTS idx_item_reservations_reservation
    ON item_reservations(reservation_id);

CREATE TABLE IF NOT EXISTS item_states (
    id        TEXT PRIMARY KEY,
    item_id   TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    timestamp INTEGER NOT NULL,
    changes   TEXT NOT NULL,
    user_id   TEXT NOT NULL,
    comment   TEXT
);

CREATE INDEX IF NOT EXISTS idx_item_states_item_time
    ON item_states(item_id, timestamp DESC);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
