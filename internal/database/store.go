// Package database provides storage backends for posts, moods, journal entries and articles.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/google/uuid"
)

// ErrStorageUnavailable is matched by every error a backend returns when the
// underlying database cannot serve the request.
var ErrStorageUnavailable = errors.New("storage unavailable")

// StorageError records the failed operation and the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error to errors.Is/As.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store defines the interface for database operations.
// SQLite, PostgreSQL, MongoDB and in-memory implementations satisfy it.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend.
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations. SQLite returns false.
	SupportsHighConcurrency() bool

	// Post operations
	CreatePost(ctx context.Context, post *model.Post) error
	ListPosts(ctx context.Context) ([]model.Post, error)

	// Mood operations
	SaveMood(ctx context.Context, entry *model.MoodEntry) error
	ListMoods(ctx context.Context, userID string, limit int) ([]model.MoodEntry, error)

	// Journal operations
	SaveJournal(ctx context.Context, entry *model.JournalEntry) error
	ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error)

	// Article operations
	AddArticle(ctx context.Context, article *model.Article) (bool, error)
	ListArticles(ctx context.Context, limit int) ([]model.Article, error)
}

// Options selects and configures a backend.
type Options struct {
	Driver   string // sqlite, postgres, mongo, memory
	DSN      string // file path, connection string or mongo URI
	Database string // mongo database name
}

// Open connects to the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return New(opts.DSN)
	case "postgres":
		return NewPostgres(opts.DSN)
	case "mongo":
		return NewMongo(ctx, opts.DSN, opts.Database)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// DefaultMoodLimit bounds ListMoods when the caller passes no limit.
const DefaultMoodLimit = 10

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
