package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/fetch"
	"feedsync/internal/process"
	"feedsync/internal/store"
)

const minimalFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Imported Blog</title>
    <item>
      <title>Post</title>
      <link>https://example.com/post/1</link>
    </item>
  </channel>
</rss>`

func TestImportFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, minimalFeed)
	}))
	t.Cleanup(srv.Close)

	db, err := store.Open(filepath.Join(t.TempDir(), "feedsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	csvPath := filepath.Join(t.TempDir(), "feeds.csv")
	csv := fmt.Sprintf("url\n%s/a\n%s/b\n%s/a\n%s/broken\n", srv.URL, srv.URL, srv.URL, srv.URL)
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0644))

	syncer := process.NewSyncer(db, fetch.New(0), 0)
	summary, err := New(syncer).ImportFeeds(context.Background(), csvPath)
	require.NoError(t, err)

	// Two unique reachable URLs imported; the duplicate and the broken
	// one are reported per line but not fatal.
	assert.Equal(t, 2, summary.Imported)
	assert.Len(t, summary.Errors, 2)
	assert.Contains(t, summary.Errors[0], "duplicate URL")

	feeds, err := db.ListFeeds(context.Background())
	require.NoError(t, err)
	assert.Len(t, feeds, 2)
}

func TestImportFeedsMissingURLColumn(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "feedsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	csvPath := filepath.Join(t.TempDir(), "feeds.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name\nfoo\n"), 0644))

	syncer := process.NewSyncer(db, fetch.New(0), 0)
	_, err = New(syncer).ImportFeeds(context.Background(), csvPath)
	assert.Error(t, err)
}
