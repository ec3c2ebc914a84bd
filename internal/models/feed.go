package models

import "database/sql"

// Feed represents a row in the 'feed' table. The URL is the stable
// identity of the source and never changes after creation.
type Feed struct {
	ID        int64          `db:"id"`
	URL       string         `db:"url"`
	Title     sql.NullString `db:"title"`
	CreatedAt int64          `db:"created_at"`
}

// DisplayTitle returns the feed title, falling back to the URL when the
// source never provided one.
func (f *Feed) DisplayTitle() string {
	if f.Title.Valid && f.Title.String != "" {
		return f.Title.String
	}
	return f.URL
}
