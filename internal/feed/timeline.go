package feed

import (
	"sort"
	"sync"

	"github.com/bryan-buckman/mindful/internal/model"
)

// Timeline is a client's view of the feed. Pulled pages and pushed events go
// through the same merge: one entry per id, the newest UpdatedAt wins, and
// entries are ordered by CreatedAt descending.
type Timeline struct {
	mu    sync.RWMutex
	posts map[string]model.Post
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{posts: make(map[string]model.Post)}
}

// Apply merges posts from either a refresh or a push event and reports how
// many entries were added or replaced.
func (t *Timeline) Apply(posts ...model.Post) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := 0
	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		cur, ok := t.posts[p.ID]
		if ok && !p.UpdatedAt.After(cur.UpdatedAt) {
			continue
		}
		t.posts[p.ID] = p
		changed++
	}
	return changed
}

// Posts returns the merged timeline, newest first.
func (t *Timeline) Posts() []model.Post {
	t.mu.RLock()
	out := make([]model.Post, 0, len(t.posts))
	for _, p := range t.posts {
		out = append(out, p)
	}
	t.mu.RUnlock()
	sortNewestFirst(out)
	return out
}

// Len returns the number of distinct posts.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.posts)
}

// Merge combines post lists under the timeline rule.
func Merge(lists ...[]model.Post) []model.Post {
	t := NewTimeline()
	for _, l := range lists {
		t.Apply(l...)
	}
	return t.Posts()
}

func sortNewestFirst(posts []model.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
