// Package store opens the folio SQLite database and bootstraps its schema.
//
// The aggregation core only reads domain data; schema creation exists for
// first-run setup and tests. Writes to domain tables happen in the content
// editors, which live outside this service.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	log.Debug().Str("path", path).Msg("Opened database")
	return db, nil
}

// OpenMemory opens a fresh in-memory database, used by tests and dev mode.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// A single connection keeps every statement on the same in-memory DB.
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureSchema creates any missing tables.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY REFERENCES users(id),
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL,
		trial_ends_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plan_grants (
		plan_id TEXT NOT NULL REFERENCES plans(id),
		feature_id TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 0,
		limit_value INTEGER,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (plan_id, feature_id)
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS book_views (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		book_id TEXT,
		page TEXT NOT NULL DEFAULT 'profile',
		views INTEGER NOT NULL DEFAULT 0,
		recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS blog_posts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		starts_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS awards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		featured INTEGER NOT NULL DEFAULT 0,
		awarded_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS faq_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		question TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS newsletter_subscribers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		email TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 0,
		subscribed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS contact_submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		sender TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0,
		submitted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_user ON books(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_blog_posts_user ON blog_posts(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, starts_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_awards_user ON awards(user_id, awarded_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_faq_user ON faq_entries(user_id, updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_newsletter_user ON newsletter_subscribers(user_id, subscribed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_user ON contact_submissions(user_id, submitted_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_book_views_user ON book_views(user_id, recorded_at DESC)`,
}
