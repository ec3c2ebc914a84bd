// Package fetch retrieves RSS/Atom documents over HTTP and decodes them
// into normalized feed records.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "feedsync/1.0"
)

// Feed is a decoded feed independent of the original wire format.
type Feed struct {
	Title string
	Items []Item
}

// Item is one normalized entry from a feed. Published falls back to the
// entry's updated time when the source reports no published time, and is
// nil when neither is present.
type Item struct {
	Title       string
	Link        string
	Description string
	Authors     []string
	Published   *time.Time
}

// Error wraps any failure to retrieve or decode one feed, carrying the
// URL it was scoped to.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to fetch feed %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves and decodes feeds with a bounded per-request timeout.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

// New creates a Fetcher. A non-positive timeout selects the default.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch performs one network retrieval for url and decodes the response
// body. Network failures, non-success statuses and undecodable bodies
// are all surfaced as a *Error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	return &Feed{
		Title: parsed.Title,
		Items: lo.Map(parsed.Items, func(item *gofeed.Item, _ int) Item {
			return normalizeItem(item)
		}),
	}, nil
}

// normalizeItem maps a decoded entry onto the normalized record:
// description prefers the summary over the content body, authors are
// trimmed non-empty names, and published falls back to updated.
func normalizeItem(item *gofeed.Item) Item {
	description := item.Description
	if description == "" {
		description = item.Content
	}

	authors := lo.FilterMap(item.Authors, func(a *gofeed.Person, _ int) (string, bool) {
		if a == nil {
			return "", false
		}
		name := strings.TrimSpace(a.Name)
		return name, name != ""
	})

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}

	return Item{
		Title:       item.Title,
		Link:        item.Link,
		Description: description,
		Authors:     authors,
		Published:   published,
	}
}
