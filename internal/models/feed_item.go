package models

import "database/sql"

// FeedItem represents a row in the 'feed_item' table. Items are created
// only by the sync pipeline and belong to exactly one feed; removing the
// feed removes its items.
//
// Published and CreatedAt are Unix timestamps in seconds. Published is
// the time the source reported; CreatedAt is when the item was ingested.
type FeedItem struct {
	ID          int64          `db:"id"`
	FeedID      int64          `db:"feed_id"`
	Title       sql.NullString `db:"title"`
	Link        sql.NullString `db:"link"`
	Description sql.NullString `db:"description"`
	Author      sql.NullString `db:"author"`
	Published   sql.NullInt64  `db:"published"`
	IsRead      bool           `db:"is_read"`
	CreatedAt   int64          `db:"created_at"`
}
