// Package storetest provides an in-memory SQLite stand-in for the Postgres
// store so service and handler tests run without a database server.
package storetest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

// Schema mirrors db/migrations/0001_init.up.sql in SQLite types. TIMESTAMP
// column types let the driver hand back time.Time values.
const Schema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	avatar TEXT,
	google_id TEXT UNIQUE,
	password_hash TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX idx_users_email_lower ON users (LOWER(email));

CREATE TABLE sessions (
	token_hash TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE boards (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT 'blue',
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE board_members (
	board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL DEFAULT 'member',
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (board_id, user_id)
);

CREATE TABLE lists (
	id TEXT PRIMARY KEY,
	board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	position REAL NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE cards (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT,
	position REAL NOT NULL,
	color TEXT,
	due_date TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE comments (
	id TEXT PRIMARY KEY,
	card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE attachments (
	id TEXT PRIMARY KEY,
	card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
	uploaded_by TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	file_url TEXT NOT NULL,
	file_type TEXT NOT NULL,
	storage_key TEXT NOT NULL UNIQUE,
	file_size INTEGER NOT NULL,
	uploaded_at TIMESTAMP NOT NULL
);

CREATE TABLE activity_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT REFERENCES users(id),
	board_id TEXT,
	action TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '{}',
	ip_address TEXT,
	user_agent TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// Open returns a store backed by a fresh in-memory database with the schema
// applied. The pool is pinned to one connection: every connection to
// ":memory:" would otherwise see its own empty database.
func Open(t testing.TB) *store.PostgresStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=1")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.NewPostgresStore(db)
}
