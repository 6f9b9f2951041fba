// Package persistence provides the SQLite-backed implementations of the
// domain repository contracts. A single database file holds contacts,
// conversations, messages, the bot-state singleton, and contact memory;
// the delayed-job tables share the same database but are owned by the
// queue package.
package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id               TEXT PRIMARY KEY,
	channel_key      TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL DEFAULT '',
	is_active        INTEGER NOT NULL DEFAULT 1,
	skip_probability REAL NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	contact_id    TEXT NOT NULL REFERENCES contacts(id),
	channel_key   TEXT NOT NULL,
	last_activity TIMESTAMP NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	UNIQUE(contact_id, channel_key)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	contact_id      TEXT NOT NULL DEFAULT '',
	direction       TEXT NOT NULL,
	content         TEXT NOT NULL,
	external_id     TEXT NOT NULL DEFAULT '',
	was_skipped     INTEGER NOT NULL DEFAULT 0,
	is_proactive    INTEGER NOT NULL DEFAULT 0,
	delay_ms        INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS bot_state (
	id                TEXT PRIMARY KEY,
	mood              TEXT NOT NULL DEFAULT 'neutral',
	last_mood_change  TIMESTAMP NOT NULL,
	proactive_enabled INTEGER NOT NULL DEFAULT 1,
	sleep_start       TEXT NOT NULL DEFAULT '23:30',
	sleep_end         TEXT NOT NULL DEFAULT '07:30'
);

CREATE TABLE IF NOT EXISTS contact_memory (
	contact_id                TEXT PRIMARY KEY,
	facts                     TEXT NOT NULL DEFAULT '',
	message_count             INTEGER NOT NULL DEFAULT 0,
	last_processed_message_id TEXT NOT NULL DEFAULT '',
	updated_at                TIMESTAMP NOT NULL
);
`

// Open opens (or creates) the SQLite database at path and applies the
// schema. The returned handle is safe for concurrent use.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent queue workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: apply schema: %w", err)
	}
	return db, nil
}
