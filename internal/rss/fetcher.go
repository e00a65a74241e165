// Package rss pulls wellness articles from RSS and Atom feeds into the store.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Concurrency settings
const (
	// MaxConcurrencyHigh is the number of parallel fetches for stores that
	// handle concurrent writes.
	MaxConcurrencyHigh = 8
	// MaxConcurrencySQLite is the number of parallel fetches for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

const maxSummaryLength = 500

// ArticleStore is the part of database.Store the fetcher writes to.
type ArticleStore interface {
	AddArticle(ctx context.Context, article *model.Article) (bool, error)
	SupportsHighConcurrency() bool
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary, and enforces
// the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < DelayBetweenDomainRequests {
			select {
			case <-time.After(DelayBetweenDomainRequests - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Fetcher fetches the configured feeds and stores new articles.
type Fetcher struct {
	store         ArticleStore
	feeds         []string
	parser        *gofeed.Parser
	concurrency   int
	domainLimiter *domainLimiter
	log           *zap.Logger
}

// NewFetcher creates a fetcher with concurrency based on the store.
func NewFetcher(store ArticleStore, feeds []string, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := MaxConcurrencySQLite
	if store.SupportsHighConcurrency() {
		concurrency = MaxConcurrencyHigh
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	parser.UserAgent = "mindful/1.0 (+wellness articles)"
	return &Fetcher{
		store:         store,
		feeds:         feeds,
		parser:        parser,
		concurrency:   concurrency,
		domainLimiter: newDomainLimiter(),
		log:           log,
	}
}

// Feeds returns the configured feed URLs.
func (f *Fetcher) Feeds() []string {
	return f.feeds
}

// FetchFeed fetches and parses a single feed, storing new articles.
// Returns the number of new articles added.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (int, error) {
	domain := extractDomain(feedURL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return 0, fmt.Errorf("rate limit cancelled for %s: %w", feedURL, err)
	}
	defer f.domainLimiter.release(domain)

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	now := time.Now().UTC()
	newCount := 0
	for _, item := range parsed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}
		published := now
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}
		article := &model.Article{
			FeedURL:     feedURL,
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Summary:     summarize(item),
			Link:        item.Link,
			PublishedAt: published,
			FetchedAt:   now,
		}
		isNew, err := f.store.AddArticle(ctx, article)
		if err != nil {
			f.log.Warn("store article", zap.String("guid", guid), zap.Error(err))
			continue
		}
		if isNew {
			newCount++
		}
	}
	return newCount, nil
}

// FetchAll fetches every configured feed with bounded parallelism and
// returns feed URL -> new article count. Failed feeds are logged and left
// out of the result.
func (f *Fetcher) FetchAll(ctx context.Context) (map[string]int, error) {
	results := make(map[string]int)
	if len(f.feeds) == 0 {
		return results, nil
	}
	f.log.Info("fetching article feeds",
		zap.Int("feeds", len(f.feeds)),
		zap.Int("concurrency", f.concurrency))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, feedURL := range f.feeds {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			count, err := f.FetchFeed(gctx, feedURL)
			if err != nil {
				f.log.Warn("fetch feed failed", zap.String("feed", feedURL), zap.Error(err))
				return nil
			}
			mu.Lock()
			results[feedURL] = count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// summarize picks the item description, falling back to its content, with
// markup removed and length bounded.
func summarize(item *gofeed.Item) string {
	text := item.Description
	if strings.TrimSpace(text) == "" {
		text = item.Content
	}
	text = strings.Join(strings.Fields(plainText(text)), " ")
	if r := []rune(text); len(r) > maxSummaryLength {
		text = strings.TrimSpace(string(r[:maxSummaryLength])) + "…"
	}
	return text
}

// plainText returns the text nodes of an HTML fragment, skipping
// non-content elements. Entities are decoded by the parser.
func plainText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
