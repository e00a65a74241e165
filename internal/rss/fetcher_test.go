package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Calm Corner</title>
  <link>https://example.org</link>
  <item>
    <title>Five grounding exercises</title>
    <link>https://example.org/grounding</link>
    <guid>grounding-1</guid>
    <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
    <description><![CDATA[<p>Try the <b>5-4-3-2-1</b> method.</p>]]></description>
  </item>
  <item>
    <title>Sleep and mood</title>
    <link>https://example.org/sleep</link>
    <pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate>
    <description>Rest matters.</description>
  </item>
  <item>
    <title>No identity</title>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFeedStoresNewArticlesOnce(t *testing.T) {
	srv := feedServer(t)
	store := database.NewMemory()
	f := NewFetcher(store, nil, nil)

	n, err := f.FetchFeed(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "item without guid or link is skipped")

	n, err = f.FetchFeed(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Zero(t, n)

	articles, err := store.ListArticles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Sleep and mood", articles[0].Title, "newest published first")
	assert.Equal(t, "https://example.org/sleep", articles[0].GUID, "link stands in for a missing guid")

	grounding := articles[1]
	assert.Equal(t, "grounding-1", grounding.GUID)
	assert.Equal(t, "Try the 5-4-3-2-1 method.", grounding.Summary)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), grounding.PublishedAt)
}

func TestFetchAllSkipsBrokenFeeds(t *testing.T) {
	srv := feedServer(t)
	store := database.NewMemory()
	f := NewFetcher(store, []string{srv.URL + "/feed.xml", srv.URL + "/broken.xml"}, nil)

	results, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{srv.URL + "/feed.xml": 2}, results)
}

func TestFetchAllNoFeeds(t *testing.T) {
	results, err := NewFetcher(database.NewMemory(), nil, nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPollerClampsIntervalAndStops(t *testing.T) {
	srv := feedServer(t)
	store := database.NewMemory()
	p := NewPoller(NewFetcher(store, []string{srv.URL + "/feed.xml"}, nil), time.Minute, nil)
	assert.Equal(t, MinPollingInterval, p.Interval())

	p.Start()
	assert.Eventually(t, func() bool {
		articles, _ := store.ListArticles(context.Background(), 10)
		return len(articles) == 2
	}, 5*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestSummarizeTruncates(t *testing.T) {
	got := summarize(&gofeed.Item{Description: strings.Repeat("a", 700)})
	assert.Equal(t, maxSummaryLength+1, len([]rune(got)))

	got = summarize(&gofeed.Item{Content: "<div>\n  <p>Only content</p>\n</div>"})
	assert.Equal(t, "Only content", got)
}

func TestSummarizeDecodesEntitiesAndSkipsScripts(t *testing.T) {
	got := summarize(&gofeed.Item{
		Description: "<p>Sleep &amp; stress</p><script>var a = 1 > 0;</script><style>p{}</style><p>Tips</p>",
	})
	assert.Equal(t, "Sleep & stress Tips", got)

	got = summarize(&gofeed.Item{Description: "Plain text, no markup"})
	assert.Equal(t, "Plain text, no markup", got)
}
