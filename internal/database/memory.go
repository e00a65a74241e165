package database

import (
	"context"
	"sort"
	"sync"

	"github.com/bryan-buckman/mindful/internal/model"
)

// MemoryStore is an in-process store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    []model.Post
	moods    []model.MoodEntry
	journal  []model.JournalEntry
	articles map[string]model.Article // keyed by feed URL + guid
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{articles: make(map[string]model.Article)}
}

func (s *MemoryStore) Close() error                  { return nil }
func (s *MemoryStore) DatabaseType() string          { return "Memory" }
func (s *MemoryStore) SupportsHighConcurrency() bool { return true }

func (s *MemoryStore) CreatePost(_ context.Context, post *model.Post) error {
	ensureID(&post.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, *post)
	return nil
}

func (s *MemoryStore) ListPosts(_ context.Context) ([]model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// return newest first
	cloned := append([]model.Post{}, s.posts...)
	sort.SliceStable(cloned, func(i, j int) bool {
		return cloned[i].CreatedAt.After(cloned[j].CreatedAt)
	})
	return cloned, nil
}

func (s *MemoryStore) SaveMood(_ context.Context, entry *model.MoodEntry) error {
	ensureID(&entry.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moods = append(s.moods, *entry)
	return nil
}

func (s *MemoryStore) ListMoods(_ context.Context, userID string, limit int) ([]model.MoodEntry, error) {
	if limit <= 0 {
		limit = DefaultMoodLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []model.MoodEntry{}
	for i := len(s.moods) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.moods[i].UserID == userID {
			entries = append(entries, s.moods[i])
		}
	}
	return entries, nil
}

func (s *MemoryStore) SaveJournal(_ context.Context, entry *model.JournalEntry) error {
	ensureID(&entry.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) ListJournal(_ context.Context, userID string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []model.JournalEntry{}
	for _, e := range s.journal {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *MemoryStore) AddArticle(_ context.Context, a *model.Article) (bool, error) {
	key := a.FeedURL + "\x00" + a.GUID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[key]; ok {
		return false, nil
	}
	ensureID(&a.ID)
	s.articles[key] = *a
	return true, nil
}

func (s *MemoryStore) ListArticles(_ context.Context, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	articles := make([]model.Article, 0, len(s.articles))
	for _, a := range s.articles {
		articles = append(articles, a)
	}
	s.mu.RUnlock()

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}
