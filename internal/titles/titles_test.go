package titles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4v/internal/cache"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <link>https://example.com</link>
    <item>
      <title>Hello World</title>
      <link>https://example.com/hello-world/</link>
    </item>
    <item>
      <title>  Second Post  </title>
      <link>https://example.com/second-post</link>
    </item>
    <item>
      <title>Elsewhere</title>
      <link>https://other.org/elsewhere</link>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
  </channel>
</rss>`

func feedServer(t *testing.T, hits *int32, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if fail != nil && fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTitles_ParsesFeed(t *testing.T) {
	var hits int32
	srv := feedServer(t, &hits, nil)

	got := NewSource(srv.URL, nil, nil).FetchTitles(context.Background(), "example.com")
	assert.Equal(t, map[string]string{
		"hello-world": "Hello World",
		"second-post": "Second Post",
	}, got)
}

func TestFetchTitles_UsesFreshCache(t *testing.T) {
	var hits int32
	srv := feedServer(t, &hits, nil)
	tc := cache.NewTitleCache(filepath.Join(t.TempDir(), "titles.json"), time.Hour, nil)
	src := NewSource(srv.URL, tc, nil)

	first := src.FetchTitles(context.Background(), "example.com")
	second := src.FetchTitles(context.Background(), "example.com")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchTitles_StaleCacheOnFailure(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := feedServer(t, &hits, &fail)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tc := cache.NewTitleCache(filepath.Join(t.TempDir(), "titles.json"), time.Hour, nil).
		WithClock(func() time.Time { return now })
	src := NewSource(srv.URL, tc, nil)

	require.Len(t, src.FetchTitles(context.Background(), "example.com"), 2)

	now = now.Add(2 * time.Hour)
	fail.Store(true)
	got := src.FetchTitles(context.Background(), "example.com")
	assert.Equal(t, "Hello World", got["hello-world"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchTitles_FailureWithoutCache(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	fail.Store(true)
	srv := feedServer(t, &hits, &fail)

	got := NewSource(srv.URL, nil, nil).FetchTitles(context.Background(), "example.com")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLookup(t *testing.T) {
	m := map[string]string{"a": "Title A", "empty": ""}
	assert.Equal(t, "Title A", Lookup(m, "a"))
	assert.Equal(t, "b", Lookup(m, "b"))
	assert.Equal(t, "empty", Lookup(m, "empty"))
	assert.Equal(t, "x", Lookup(nil, "x"))
}
