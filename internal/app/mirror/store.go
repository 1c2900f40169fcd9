// Package mirror is the local SQLite copy of each user's remote documents.
//
// Every row is scoped by owner_uid (the identity the rows were synced for)
// and keyed by (owner_uid, remote_id); the integer id is a local surrogate
// that survives re-syncs. Nothing here is authoritative: the sync engine
// can rebuild any owner's rows from the remote store.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point reads that match no row.
var ErrNotFound = errors.New("mirror record not found")

// Store wraps the mirror database.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// Open creates or opens the mirror at path and applies the schema.
// Foreign keys are enforced on every connection.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	// One writer at a time; category writes queue here instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, log: logger}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mirror schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	uid TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	is_teacher INTEGER NOT NULL DEFAULT 0,
	is_parent INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	full_name TEXT NOT NULL,
	rut TEXT NOT NULL DEFAULT '',
	birth_date INTEGER,
	grade TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS classes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	name TEXT NOT NULL,
	grade TEXT NOT NULL DEFAULT '',
	school TEXT NOT NULL DEFAULT '',
	join_code TEXT NOT NULL,
	teacher_uid TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS class_members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	class_id INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	class_remote_id TEXT NOT NULL,
	student_remote_id TEXT NOT NULL,
	parent_uid TEXT NOT NULL,
	student_name TEXT NOT NULL,
	joined_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);
CREATE INDEX IF NOT EXISTS idx_class_members_class ON class_members(class_id);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	sender_uid TEXT NOT NULL,
	recipient_uid TEXT NOT NULL,
	student_remote_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	read INTEGER NOT NULL DEFAULT 0,
	sent_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	class_remote_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	starts_at INTEGER NOT NULL,
	created_by TEXT NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS annotations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	student_remote_id TEXT NOT NULL,
	class_remote_id TEXT NOT NULL,
	teacher_uid TEXT NOT NULL,
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	student_remote_id TEXT NOT NULL,
	class_remote_id TEXT NOT NULL,
	date INTEGER NOT NULL,
	status TEXT NOT NULL,
	recorded_by TEXT NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS justifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	student_remote_id TEXT NOT NULL,
	class_remote_id TEXT NOT NULL,
	parent_uid TEXT NOT NULL,
	date INTEGER NOT NULL,
	reason TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);

CREATE TABLE IF NOT EXISTS material_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_uid TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	remote_id TEXT NOT NULL,
	class_remote_id TEXT NOT NULL,
	teacher_uid TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(owner_uid, remote_id)
);
`

// Times are stored as Unix milliseconds, the precision Mongo keeps.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
