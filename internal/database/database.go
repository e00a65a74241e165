// Package database provides SQLite storage.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryan-buckman/mindful/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	if path == "" {
		path = "mindful.db"
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false; SQLite serializes writers.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		author_id TEXT NOT NULL,
		location TEXT,
		is_moderation_approved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS moods (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		mood TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS journal (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mood TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		entry TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		feed_url TEXT NOT NULL,
		guid TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		link TEXT,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		UNIQUE(feed_url, guid)
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_moods_user ON moods(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_journal_user ON journal(user_id, created_at DESC);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Post Methods ---

// CreatePost inserts a post, assigning an ID if it has none.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	ensureID(&post.ID)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO posts (id, content, author_id, location, is_moderation_approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.Content, post.AuthorID, post.Location, post.IsModerationApproved, post.CreatedAt.UTC(), post.UpdatedAt.UTC())
	return unavailable("create post", err)
}

// ListPosts returns every post, newest first.
func (db *DB) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, content, author_id, location, is_moderation_approved, created_at, updated_at
		FROM posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, unavailable("list posts", err)
	}
	defer rows.Close()
	posts, err := scanPosts(rows)
	return posts, unavailable("list posts", err)
}

// --- Mood Methods ---

// SaveMood inserts a committed mood entry.
func (db *DB) SaveMood(ctx context.Context, entry *model.MoodEntry) error {
	ensureID(&entry.ID)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO moods (id, user_id, mood, confidence, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Mood), entry.Confidence, entry.Timestamp.UTC(), entry.CreatedAt.UTC())
	return unavailable("save mood", err)
}

// ListMoods returns the user's most recent mood entries.
func (db *DB) ListMoods(ctx context.Context, userID string, limit int) ([]model.MoodEntry, error) {
	if limit <= 0 {
		limit = DefaultMoodLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, mood, confidence, timestamp, created_at
		FROM moods WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, unavailable("list moods", err)
	}
	defer rows.Close()
	entries, err := scanMoods(rows)
	return entries, unavailable("list moods", err)
}

// --- Journal Methods ---

// SaveJournal inserts a journal entry.
func (db *DB) SaveJournal(ctx context.Context, entry *model.JournalEntry) error {
	ensureID(&entry.ID)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO journal (id, user_id, mood, prompt, entry, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Mood, entry.Prompt, entry.Entry, entry.CreatedAt.UTC())
	return unavailable("save journal", err)
}

// ListJournal returns the user's journal, newest first.
func (db *DB) ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, mood, prompt, entry, created_at
		FROM journal WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, unavailable("list journal", err)
	}
	defer rows.Close()
	entries, err := scanJournal(rows)
	return entries, unavailable("list journal", err)
}

// --- Article Methods ---

// AddArticle inserts an article if its GUID is new for the feed. Returns whether it was new.
func (db *DB) AddArticle(ctx context.Context, a *model.Article) (bool, error) {
	ensureID(&a.ID)
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO articles (id, feed_url, guid, title, summary, link, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_url, guid) DO NOTHING`,
		a.ID, a.FeedURL, a.GUID, a.Title, a.Summary, a.Link, a.PublishedAt.UTC(), a.FetchedAt.UTC())
	if err != nil {
		return false, unavailable("add article", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ListArticles returns the newest articles.
func (db *DB) ListArticles(ctx context.Context, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, feed_url, guid, title, summary, link, published_at, fetched_at
		FROM articles ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list articles", err)
	}
	defer rows.Close()
	articles, err := scanArticles(rows)
	return articles, unavailable("list articles", err)
}

// --- Helper functions ---

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	posts := []model.Post{}
	for rows.Next() {
		var p model.Post
		var location sql.NullString
		if err := rows.Scan(&p.ID, &p.Content, &p.AuthorID, &location, &p.IsModerationApproved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if location.Valid {
			loc := location.String
			p.Location = &loc
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanMoods(rows *sql.Rows) ([]model.MoodEntry, error) {
	entries := []model.MoodEntry{}
	for rows.Next() {
		var e model.MoodEntry
		var mood string
		if err := rows.Scan(&e.ID, &e.UserID, &mood, &e.Confidence, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Mood = model.Emotion(mood)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanJournal(rows *sql.Rows) ([]model.JournalEntry, error) {
	entries := []model.JournalEntry{}
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Prompt, &e.Entry, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	articles := []model.Article{}
	for rows.Next() {
		var a model.Article
		var summary, link sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.FeedURL, &a.GUID, &a.Title, &summary, &link, &publishedAt, &a.FetchedAt); err != nil {
			return nil, err
		}
		a.Summary = summary.String
		a.Link = link.String
		if publishedAt.Valid {
			a.PublishedAt = publishedAt.Time
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
