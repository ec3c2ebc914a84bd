package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Blog</title>
    <link>https://example.com</link>
    <description>A test RSS feed</description>
    <item>
      <title>First Post</title>
      <link>https://example.com/post/1</link>
      <description>Summary of the first post</description>
      <pubDate>Mon, 01 Jan 2024 08:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Second Post</title>
      <link>https://example.com/post/2</link>
      <description>Summary of the second post</description>
      <pubDate>Mon, 01 Jan 2024 07:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Atom Entry</title>
    <link href="https://example.com/atom/1"/>
    <author><name>  Jane Doe  </name></author>
    <content type="text">Full content body</content>
    <updated>2024-02-19T09:00:00Z</updated>
  </entry>
</feed>`

func serveFeed(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchRSS(t *testing.T) {
	srv := serveFeed(t, testRSSFeed)

	feed, err := New(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Test Blog", feed.Title)
	require.Len(t, feed.Items, 2)

	first := feed.Items[0]
	assert.Equal(t, "First Post", first.Title)
	assert.Equal(t, "https://example.com/post/1", first.Link)
	assert.Equal(t, "Summary of the first post", first.Description)
	require.NotNil(t, first.Published)
	assert.Equal(t, int64(1704096000), first.Published.Unix())
}

func TestFetchAtomNormalization(t *testing.T) {
	srv := serveFeed(t, testAtomFeed)

	feed, err := New(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Atom Blog", feed.Title)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	assert.Equal(t, "Atom Entry", item.Title)
	assert.Equal(t, "https://example.com/atom/1", item.Link)

	// No summary: description falls back to the content body.
	assert.Equal(t, "Full content body", item.Description)

	// Author names are trimmed.
	assert.Equal(t, []string{"Jane Doe"}, item.Authors)

	// No published time: falls back to the updated time.
	require.NotNil(t, item.Published)
	assert.Equal(t, time.Date(2024, 2, 19, 9, 0, 0, 0, time.UTC).Unix(), item.Published.Unix())
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := New(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Contains(t, fetchErr.Error(), "HTTP 500")
}

func TestFetchMalformedBody(t *testing.T) {
	srv := serveFeed(t, "this is not a feed")

	_, err := New(0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(0).Fetch(context.Background(), url)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, url, fetchErr.URL)
}

func TestFetchHonorsContext(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	t.Cleanup(func() {
		close(blocked)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(0).Fetch(ctx, srv.URL)
	require.Error(t, err)
}
