// Package store provides durable persistence of feeds and feed items on
// SQLite. Uniqueness of feed URLs and of (feed_id, link) pairs is
// enforced at the schema level, so dedup holds regardless of caller
// concurrency.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// ErrFeedExists is returned by CreateFeed when a feed with the same URL
// is already registered.
var ErrFeedExists = errors.New("feed already exists")

// ErrFeedNotFound is returned by GetFeedByURL for an unregistered URL.
var ErrFeedNotFound = errors.New("feed not found")

const busyTimeoutMS = 5000

// DB wraps the database connection
type DB struct {
	*sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies pending schema migrations. The parent directory is created
// when missing.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	// WAL allows concurrent reads while writing; busy_timeout makes
	// concurrent writers queue instead of failing. foreign_keys must be
	// set in the DSN so it applies to every pooled connection.
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeoutMS)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	log.Debug().Str("path", path).Msg("Database opened")
	return &DB{db}, nil
}

// CreateFeed inserts a new feed and returns its assigned ID. Returns
// ErrFeedExists when the URL is already registered; the existing row is
// left untouched.
func (db *DB) CreateFeed(ctx context.Context, url, title string) (int64, error) {
	now := time.Now().Unix()
	res, err := db.ExecContext(ctx,
		"INSERT INTO feed (url, title, created_at) VALUES (?, ?, ?)",
		url, nullable(title), now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrFeedExists, url)
		}
		return 0, fmt.Errorf("failed to insert feed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get feed id: %w", err)
	}
	return id, nil
}

// DeleteFeed removes the feed with the given URL along with all of its
// items. Returns whether a feed was removed; an unknown URL is a no-op,
// not an error.
func (db *DB) DeleteFeed(ctx context.Context, url string) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM feed WHERE url = ?", url)
	if err != nil {
		return false, fmt.Errorf("failed to delete feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListFeeds returns all registered feeds ordered by ID.
func (db *DB) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	err := db.SelectContext(ctx, &feeds,
		"SELECT id, url, title, created_at FROM feed ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// GetFeedByURL returns the feed registered under the given URL, or
// ErrFeedNotFound when no such feed exists.
func (db *DB) GetFeedByURL(ctx context.Context, url string) (*models.Feed, error) {
	var feed models.Feed
	err := db.GetContext(ctx, &feed,
		"SELECT id, url, title, created_at FROM feed WHERE url = ?", url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

// CountItems returns the number of stored items for a feed. An unknown
// feed ID counts as zero.
func (db *DB) CountItems(ctx context.Context, feedID int64) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM feed_item WHERE feed_id = ?", feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to count feed items: %w", err)
	}
	return count, nil
}

// InsertItemIfNew inserts a feed item unless one with the same
// (feed_id, link) already exists. Returns true iff a row was inserted.
// The dedup check and insert are a single conditional write, so
// concurrent sync runs against the same feed cannot double-insert.
//
// Items without a link are never treated as duplicates of each other:
// SQLite considers NULLs distinct in unique constraints.
func (db *DB) InsertItemIfNew(ctx context.Context, feedID int64, title, link, description string, authors []string, published *time.Time) (bool, error) {
	var pub interface{}
	if published != nil {
		pub = published.Unix()
	}
	now := time.Now().Unix()

	res, err := db.ExecContext(ctx, `
		INSERT INTO feed_item (feed_id, title, link, description, author, published, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(feed_id, link) DO NOTHING`,
		feedID, nullable(title), nullable(link), nullable(description),
		nullable(strings.Join(authors, ", ")), pub, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert feed item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListItems returns all items for a feed ordered by published time,
// newest first. SQLite sorts NULL before everything else ascending, so
// with DESC items lacking a published time end up last.
func (db *DB) ListItems(ctx context.Context, feedID int64) ([]models.FeedItem, error) {
	var items []models.FeedItem
	err := db.SelectContext(ctx, &items, `
		SELECT id, feed_id, title, link, description, author, published, is_read, created_at
		FROM feed_item
		WHERE feed_id = ?
		ORDER BY published DESC, id`,
		feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed items: %w", err)
	}
	return items, nil
}

// MarkRead flags the item as read. Marking an already-read or unknown
// item is a no-op.
func (db *DB) MarkRead(ctx context.Context, itemID int64) error {
	_, err := db.ExecContext(ctx, "UPDATE feed_item SET is_read = 1 WHERE id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to mark item read: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// nullable maps the empty string to NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
