package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Booking dates are stored as unix
// seconds so that range comparisons in SQL are plain integer comparisons.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    email         TEXT NOT NULL,
    full_name     TEXT NOT NULL DEFAULT '',
    campus        TEXT NOT NULL DEFAULT '',
    avatar_url    TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('manager', 'admin', 'user')),
    is_active     INTEGER NOT NULL DEFAULT 1,
    is_banned     INTEGER NOT NULL DEFAULT 0,
    banned_until  DATETIME,
    ban_reason    TEXT NOT NULL DEFAULT '',
    is_verified   INTEGER NOT NULL DEFAULT 0,
    rating        REAL NOT NULL DEFAULT 0,
    review_count  INTEGER NOT NULL DEFAULT 0,
    version       INTEGER NOT NULL DEFAULT 1,
    last_active   DATETIME,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id             INTEGER PRIMARY KEY,
    owner_id       INTEGER NOT NULL REFERENCES users(id),
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL DEFAULT '',
    campus         TEXT NOT NULL DEFAULT '',
    daily_rate     REAL NOT NULL CHECK (daily_rate >= 0),
    availability   TEXT NOT NULL DEFAULT 'available' CHECK (availability IN ('available', 'unavailable')),
    is_active      INTEGER NOT NULL DEFAULT 1,
    image_url      TEXT NOT NULL DEFAULT '',
    view_count     INTEGER NOT NULL DEFAULT 0,
    favorite_count INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);

CREATE TABLE IF NOT EXISTS lending_requests (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    borrower_id  INTEGER NOT NULL REFERENCES users(id),
    lender_id    INTEGER NOT NULL REFERENCES users(id),
    start_date   INTEGER NOT NULL,
    end_date     INTEGER NOT NULL,
    total_cost   REAL NOT NULL,
    message      TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'pending'
                 CHECK (status IN ('pending', 'accepted', 'rejected', 'cancelled', 'active', 'completed')),
    cancelled_by INTEGER REFERENCES users(id),
    version      INTEGER NOT NULL DEFAULT 1,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (borrower_id <> lender_id),
    CHECK (start_date < end_date)
);

CREATE INDEX IF NOT EXISTS idx_requests_item_status ON lending_requests(item_id, status);
CREATE INDEX IF NOT EXISTS idx_requests_borrower ON lending_requests(borrower_id);
CREATE INDEX IF NOT EXISTS idx_requests_lender ON lending_requests(lender_id);

CREATE TABLE IF NOT EXISTS messages (
    id                 INTEGER PRIMARY KEY,
    kind               TEXT NOT NULL CHECK (kind IN ('booking', 'inquiry')),
    lending_request_id INTEGER REFERENCES lending_requests(id),
    item_id            INTEGER REFERENCES items(id),
    inquirer_id        INTEGER REFERENCES users(id),
    sender_id          INTEGER NOT NULL REFERENCES users(id),
    recipient_id       INTEGER NOT NULL REFERENCES users(id),
    content            TEXT NOT NULL,
    is_read            INTEGER NOT NULL DEFAULT 0,
    read_at            DATETIME,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (
        (kind = 'booking' AND lending_request_id IS NOT NULL AND item_id IS NULL AND inquirer_id IS NULL) OR
        (kind = 'inquiry' AND lending_request_id IS NULL AND item_id IS NOT NULL AND inquirer_id IS NOT NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_messages_request ON messages(lending_request_id);
CREATE INDEX IF NOT EXISTS idx_messages_inquiry ON messages(item_id, inquirer_id);
CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id, is_read);

CREATE TABLE IF NOT EXISTS reviews (
    id                 INTEGER PRIMARY KEY,
    lending_request_id INTEGER NOT NULL REFERENCES lending_requests(id),
    reviewer_id        INTEGER NOT NULL REFERENCES users(id),
    reviewee_id        INTEGER NOT NULL REFERENCES users(id),
    rating             INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
    comment            TEXT NOT NULL DEFAULT '',
    type               TEXT NOT NULL CHECK (type IN ('borrower', 'lender')),
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (lending_request_id, reviewer_id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_reviewee ON reviews(reviewee_id);

CREATE TABLE IF NOT EXISTS reports (
    id               INTEGER PRIMARY KEY,
    reporter_id      INTEGER NOT NULL REFERENCES users(id),
    reported_item_id INTEGER REFERENCES items(id),
    reported_user_id INTEGER REFERENCES users(id),
    reason           TEXT NOT NULL,
    details          TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending'
                     CHECK (status IN ('pending', 'reviewing', 'resolved', 'dismissed')),
    admin_notes      TEXT NOT NULL DEFAULT '',
    resolved_by      INTEGER REFERENCES users(id),
    resolved_at      DATETIME,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((reported_item_id IS NULL) <> (reported_user_id IS NULL))
);

CREATE TABLE IF NOT EXISTS favorites (
    user_id    INTEGER NOT NULL REFERENCES users(id),
    item_id    INTEGER NOT NULL REFERENCES items(id),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, item_id)
);

CREATE TABLE IF NOT EXISTS blobs (
    key        TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
