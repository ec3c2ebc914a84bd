// Package process orchestrates sync runs: it fans registered feeds out
// to the fetcher and merges normalized items into the store through the
// dedup-aware insert.
package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"feedsync/internal/fetch"
	"feedsync/internal/models"
	"feedsync/internal/store"
)

const (
	defaultWorkerCount = 4
	fetchTimeout       = 30 * time.Second
)

// Fetcher retrieves one feed URL and decodes it into a normalized
// record.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Feed, error)
}

// FeedResult is the per-feed outcome of a sync run. Err is set when the
// fetch failed; item-level storage errors only reduce NewItems.
type FeedResult struct {
	Feed     models.Feed
	NewItems int
	Err      error
}

// Summary aggregates one sync run across all feeds.
type Summary struct {
	Feeds    []FeedResult
	TotalNew int
}

// Failed returns the number of feeds whose fetch failed.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Feeds {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Syncer runs the fetch-normalize-dedup-persist pipeline.
type Syncer struct {
	db          *store.DB
	fetcher     Fetcher
	WorkerCount int
}

// NewSyncer creates a Syncer. A non-positive workerCount selects the
// default.
func NewSyncer(db *store.DB, fetcher Fetcher, workerCount int) *Syncer {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	return &Syncer{db: db, fetcher: fetcher, WorkerCount: workerCount}
}

// SyncAll fetches every registered feed and persists previously-unseen
// items. The feed list is snapshotted once at the start of the run.
// Feeds are fetched concurrently up to the worker count; a single
// unreachable feed never aborts the batch, and running twice against an
// unchanged source set yields zero new items on the second run.
func (s *Syncer) SyncAll(ctx context.Context) (*Summary, error) {
	feeds, err := s.db.ListFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load feeds: %w", err)
	}

	log.Info().Int("feeds", len(feeds)).Int("workers", s.WorkerCount).Msg("Starting sync run")

	// Each goroutine owns exactly one result slot, so aggregated counts
	// are exact without locking.
	results := make([]FeedResult, len(feeds))
	sem := make(chan struct{}, s.WorkerCount)
	var wg sync.WaitGroup

	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed models.Feed) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.syncFeed(ctx, feed)
		}(i, feed)
	}
	wg.Wait()

	summary := &Summary{Feeds: results}
	for _, r := range results {
		summary.TotalNew += r.NewItems
	}

	log.Info().
		Int("total_new", summary.TotalNew).
		Int("failed_feeds", summary.Failed()).
		Msg("Sync run finished")

	return summary, nil
}

// syncFeed fetches one feed and merges its items. A slow feed is bounded
// by the per-fetch timeout so it cannot block the rest of the batch.
func (s *Syncer) syncFeed(ctx context.Context, feed models.Feed) FeedResult {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	fetched, err := s.fetcher.Fetch(fetchCtx, feed.URL)
	if err != nil {
		log.Warn().Err(err).Int64("feed_id", feed.ID).Str("url", feed.URL).Msg("Fetch failed")
		return FeedResult{Feed: feed, Err: err}
	}

	newItems := 0
	for _, item := range fetched.Items {
		inserted, err := s.db.InsertItemIfNew(ctx,
			feed.ID, item.Title, item.Link, item.Description, item.Authors, item.Published)
		if err != nil {
			// Item-level storage failures are recorded and skipped so the
			// rest of the feed still merges.
			log.Error().Err(err).
				Int64("feed_id", feed.ID).
				Str("link", item.Link).
				Msg("Failed to store item")
			continue
		}
		if inserted {
			newItems++
		}
	}

	log.Debug().
		Int64("feed_id", feed.ID).
		Str("url", feed.URL).
		Int("fetched", len(fetched.Items)).
		Int("new", newItems).
		Msg("Feed synced")

	return FeedResult{Feed: feed, NewItems: newItems}
}

// AddFeed validates that url is fetchable and decodable, then registers
// it using the fetched title. Nothing is persisted when the fetch fails.
// Items are not ingested here; they arrive on the next sync run.
func (s *Syncer) AddFeed(ctx context.Context, url string) (*models.Feed, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	fetched, err := s.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		return nil, err
	}

	id, err := s.db.CreateFeed(ctx, url, fetched.Title)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("feed_id", id).Str("url", url).Str("title", fetched.Title).Msg("Feed added")

	// Read the row back so callers see the feed exactly as persisted,
	// creation timestamp included.
	return s.db.GetFeedByURL(ctx, url)
}

// RemoveFeed deletes the feed and all of its items. Returns whether a
// feed was removed.
func (s *Syncer) RemoveFeed(ctx context.Context, url string) (bool, error) {
	return s.db.DeleteFeed(ctx, url)
}
