// Package model defines shared data structures.
package model

import "time"

// Emotion is one label of the fixed facial-expression vocabulary.
type Emotion string

const (
	Happy     Emotion = "happy"
	Sad       Emotion = "sad"
	Angry     Emotion = "angry"
	Fearful   Emotion = "fearful"
	Disgusted Emotion = "disgusted"
	Surprised Emotion = "surprised"
	Neutral   Emotion = "neutral"
)

// Emotions lists every label in canonical order. Ties between equally
// probable labels resolve to the one listed first.
var Emotions = []Emotion{Happy, Sad, Angry, Fearful, Disgusted, Surprised, Neutral}

// Valid reports whether e is part of the vocabulary.
func (e Emotion) Valid() bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// MoodSample is the transient result of one detection cycle.
type MoodSample struct {
	Label      Emotion   `json:"mood"` // empty when no face was detected
	Confidence int       `json:"confidence"`
	CapturedAt time.Time `json:"capturedAt"`
}

// MoodEntry is a mood the user explicitly committed.
type MoodEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	Mood       Emotion   `json:"mood"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Post is a community feed post.
type Post struct {
	ID                   string    `json:"id"`
	Content              string    `json:"content"`
	AuthorID             string    `json:"authorId"`
	Location             *string   `json:"location"` // nil when not given
	IsModerationApproved bool      `json:"isModerationApproved"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// JournalEntry is a private journal entry owned by one user.
type JournalEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Mood      string    `json:"mood"`
	Prompt    string    `json:"prompt"`
	Entry     string    `json:"entry"`
	CreatedAt time.Time `json:"createdAt"`
}

// MediaItem is a song suggested for a mood.
type MediaItem struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Artist   string `json:"artist" yaml:"artist"`
	ImageURL string `json:"imageUrl" yaml:"image_url"`
	URL      string `json:"url" yaml:"url"`
}

// Resource is a local mental-health support resource.
type Resource struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"` // therapist, hotline, support_group
	Address     string      `json:"address" yaml:"address"`
	Phone       string      `json:"phone" yaml:"phone"`
	Cost        string      `json:"cost" yaml:"cost"` // free, low, medium, high
	Hours       string      `json:"hours" yaml:"hours"`
	Rating      float64     `json:"rating" yaml:"rating"`
	Coordinates Coordinates `json:"coordinates" yaml:"coordinates"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Article is a wellness article pulled from a configured feed.
type Article struct {
	ID          string    `json:"id"`
	FeedURL     string    `json:"feedUrl"`
	GUID        string    `json:"guid"` // unique identifier from feed
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"publishedAt"`
	FetchedAt   time.Time `json:"fetchedAt"`
}
