// Package feed creates community posts and keeps client timelines consistent.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"go.uber.org/zap"
)

// MaxContentLength is the longest post, in characters, after trimming.
const MaxContentLength = 1000

// TimestampPrecision is the resolution of post timestamps. Every backend
// stores at least millisecond precision, so the announced post matches the
// stored one.
const TimestampPrecision = time.Millisecond

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PostStore persists posts. database.Store satisfies it.
type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	ListPosts(ctx context.Context) ([]model.Post, error)
}

// Publisher fans events out to connected clients. *realtime.Hub satisfies it.
type Publisher interface {
	Publish(ev realtime.Event) error
}

// Moderator decides whether a post is approved for display.
type Moderator interface {
	Approve(ctx context.Context, content string) (bool, error)
}

// AlwaysApprove approves every post.
type AlwaysApprove struct{}

func (AlwaysApprove) Approve(context.Context, string) (bool, error) { return true, nil }

// Controller validates, persists and announces posts.
type Controller struct {
	store     PostStore
	publisher Publisher
	moderator Moderator
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithModerator replaces the default AlwaysApprove moderator.
func WithModerator(m Moderator) Option {
	return func(c *Controller) { c.moderator = m }
}

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller. publisher may be nil when no realtime
// channel is configured.
func NewController(store PostStore, publisher Publisher, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		publisher: publisher,
		moderator: AlwaysApprove{},
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a new post and publishes it once the store accepted it.
// A failed publish is logged and does not fail the create.
func (c *Controller) Create(ctx context.Context, content, authorID string, location *string) (model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Post{}, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return model.Post{}, &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("%d characters exceeds the limit of %d", n, MaxContentLength),
		}
	}
	if authorID == "" {
		return model.Post{}, &ValidationError{Field: "authorId", Reason: "must not be empty"}
	}

	approved, err := c.moderator.Approve(ctx, content)
	if err != nil {
		return model.Post{}, fmt.Errorf("moderate post: %w", err)
	}

	now := c.now().UTC().Truncate(TimestampPrecision)
	post := model.Post{
		Content:              content,
		AuthorID:             authorID,
		Location:             normalizeLocation(location),
		IsModerationApproved: approved,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := c.store.CreatePost(ctx, &post); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(realtime.NewPost{Post: post}); err != nil {
			c.log.Warn("realtime channel degraded, post not announced",
				zap.String("post_id", post.ID), zap.Error(err))
		}
	}
	return post, nil
}

// List returns every post, newest first.
func (c *Controller) List(ctx context.Context) ([]model.Post, error) {
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func normalizeLocation(loc *string) *string {
	if loc == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*loc)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
