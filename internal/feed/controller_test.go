package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *recordingPublisher) Publish(ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.(realtime.NewPost).Post.ID)
	}
	return out
}

type failingStore struct{ database.Store }

func (failingStore) CreatePost(context.Context, *model.Post) error {
	return &database.StorageError{Op: "insert post", Err: errors.New("disk full")}
}

func strPtr(s string) *string { return &s }

func TestCreateRejectsInvalidContent(t *testing.T) {
	pub := &recordingPublisher{}
	store := database.NewMemory()
	c := NewController(store, pub)

	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": " ",
		"too long":   strings.Repeat("x", 1001),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Create(context.Background(), content, "u1", nil)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Empty(t, pub.ids())
}

func TestCreateCountsCharactersNotBytes(t *testing.T) {
	c := NewController(database.NewMemory(), nil)
	_, err := c.Create(context.Background(), strings.Repeat("é", 1000), "u1", nil)
	assert.NoError(t, err)

	_, err = c.Create(context.Background(), "  "+strings.Repeat("x", 1000)+"  ", "u1", nil)
	assert.NoError(t, err, "surrounding whitespace is trimmed before the length check")
}

func TestCreateTrimsAndStamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	store := database.NewMemory()
	c := NewController(store, pub, WithClock(func() time.Time { return now }))

	p, err := c.Create(context.Background(), "  hello  ", "u1", strPtr("  Boston "))
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Content)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "u1", p.AuthorID)
	require.NotNil(t, p.Location)
	assert.Equal(t, "Boston", *p.Location)
	assert.True(t, p.IsModerationApproved)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	p2, err := c.Create(context.Background(), "again", "u1", strPtr("   "))
	require.NoError(t, err)
	assert.Nil(t, p2.Location)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []string{p.ID, p2.ID}, pub.ids())
}

// millisStore hands back timestamps at millisecond precision, as the
// Mongo backend does.
type millisStore struct{ *database.MemoryStore }

func (s millisStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	posts, err := s.MemoryStore.ListPosts(ctx)
	for i := range posts {
		posts[i].CreatedAt = posts[i].CreatedAt.Truncate(time.Millisecond)
		posts[i].UpdatedAt = posts[i].UpdatedAt.Truncate(time.Millisecond)
	}
	return posts, err
}

func TestPublishedPostMatchesStoredPost(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	pub := &recordingPublisher{}
	store := millisStore{database.NewMemory()}
	c := NewController(store, pub, WithClock(func() time.Time { return now }))

	created, err := c.Create(context.Background(), "hello", "u1", strPtr("Boston"))
	require.NoError(t, err)
	assert.Equal(t, now.Truncate(time.Millisecond), created.CreatedAt)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Len(t, pub.events, 1)
	published := pub.events[0].(realtime.NewPost).Post
	assert.Equal(t, posts[0], published)
	assert.Equal(t, posts[0], created)

	tl := NewTimeline()
	assert.Equal(t, 1, tl.Apply(posts...))
	assert.Zero(t, tl.Apply(published), "push of a pulled post is not an update")
}

type rejectAll struct{}

func (rejectAll) Approve(context.Context, string) (bool, error) { return false, nil }

func TestCreateUsesModerator(t *testing.T) {
	c := NewController(database.NewMemory(), nil, WithModerator(rejectAll{}))
	p, err := c.Create(context.Background(), "hello", "u1", nil)
	require.NoError(t, err)
	assert.False(t, p.IsModerationApproved)
}

func TestCreateStorageFailureDoesNotPublish(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewController(failingStore{database.NewMemory()}, pub)

	_, err := c.Create(context.Background(), "hello", "u1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
	assert.False(t, IsValidation(err))
	assert.Empty(t, pub.ids())
}

func TestCreateSucceedsWhenChannelDegraded(t *testing.T) {
	hub := realtime.NewHub()
	hub.Close()
	store := database.NewMemory()
	c := NewController(store, hub)

	p, err := c.Create(context.Background(), "hello", "u1", nil)
	require.NoError(t, err)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, p.ID, posts[0].ID)
}

func TestConcurrentCreatesBothPersistAndPublish(t *testing.T) {
	hub := realtime.NewHub()
	defer hub.Close()
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	store := database.NewMemory()
	c := NewController(store, hub)

	var wg sync.WaitGroup
	for _, content := range []string{"first", "second"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			_, err := c.Create(context.Background(), content, "u1", nil)
			assert.NoError(t, err)
		}(content)
	}
	wg.Wait()

	posts, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		got[ev.(realtime.NewPost).Post.Content] = true
	}
	assert.Equal(t, map[string]bool{"first": true, "second": true}, got)
}
