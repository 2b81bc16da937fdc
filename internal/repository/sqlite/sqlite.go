// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// The handbook is a single-server app with per-document atomicity needs:
// appending a comment and rotating a refresh token must each be atomic, but
// there is no cross-document coordination. A single SQLite file in WAL mode
// covers that without running a database server.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite — no CGo, no C
// compiler, painless cross-compilation.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces. Lifecycle is owned by the server: New on startup, Close on
// shutdown.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — relevant for
	// a web server where comment reads and writes overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this safe to
// run on every startup; anything more elaborate (golang-migrate) can wait
// until there is a second deployment to migrate.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			nickname      TEXT NOT NULL UNIQUE,
			program       TEXT NOT NULL DEFAULT '',
			major         TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_refresh_token ON users(refresh_token);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// The enrolled-course list is a set: the composite primary key makes
	// re-adding a course a no-op (INSERT OR IGNORE).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_courses (
			username    TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			course_code TEXT NOT NULL,
			PRIMARY KEY (username, course_code)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_courses table: %w", err)
	}

	// courses exists only to anchor comments; it is created lazily on first
	// comment or first info lookup. An absent row means "no comments yet".
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS courses (
			code       TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating courses table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id          TEXT PRIMARY KEY,
			course_code TEXT NOT NULL REFERENCES courses(code) ON DELETE CASCADE,
			username    TEXT NOT NULL,
			text        TEXT NOT NULL DEFAULT '',
			difficulty  INTEGER NOT NULL,
			usefulness  INTEGER NOT NULL,
			workload    INTEGER NOT NULL,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comments_course_code ON comments(course_code);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	// One pending registration code per username; PutCode upserts.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS verification_codes (
			username   TEXT PRIMARY KEY,
			code       TEXT NOT NULL,
			expires_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating verification_codes table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column (e.g. "users.username"). modernc.org/sqlite surfaces
// these as plain errors with a stable message prefix.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}
