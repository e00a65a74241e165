package server

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/mindful/internal/auth"
	"github.com/bryan-buckman/mindful/internal/chat"
	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/bryan-buckman/mindful/internal/mood"
	"github.com/bryan-buckman/mindful/internal/opml"
	"github.com/bryan-buckman/mindful/internal/resources"
)

const (
	maxImageBody        = 10 << 20
	defaultArticleLimit = 20
	maxListLimit        = 100
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"database":    s.store.DatabaseType(),
		"subscribers": stats.Subscribers,
		"published":   stats.Published,
	})
}

// --- Posts ---

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.feed.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string  `json:"content"`
		Location *string `json:"location"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.feed.Create(r.Context(), req.Content, auth.UserID(r.Context()), req.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// --- Mood ---

func (s *Server) handleSaveMood(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mood       string    `json:"mood"`
		Confidence *float64  `json:"confidence"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	label := model.Emotion(strings.ToLower(strings.TrimSpace(req.Mood)))
	if !label.Valid() {
		s.writeError(w, r, badRequest("mood", fmt.Sprintf("unknown mood %q", req.Mood)))
		return
	}
	if req.Confidence == nil || *req.Confidence < 0 || *req.Confidence > 100 {
		s.writeError(w, r, badRequest("confidence", "must be between 0 and 100"))
		return
	}

	now := time.Now().UTC()
	ts := req.Timestamp.UTC()
	if req.Timestamp.IsZero() {
		ts = now
	}
	entry := &model.MoodEntry{
		UserID:     auth.UserID(r.Context()),
		Mood:       label,
		Confidence: int(math.Round(*req.Confidence)),
		Timestamp:  ts,
		CreatedAt:  now,
	}
	if err := s.store.SaveMood(r.Context(), entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListMoods(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.store.ListMoods(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type moodResult struct {
	Mood            model.Emotion     `json:"mood"`
	Confidence      int               `json:"confidence"`
	Recommendations []model.MediaItem `json:"recommendations"`
}

func (s *Server) moodResult(exprs mood.Expressions) moodResult {
	label, confidence := mood.Dominant(exprs)
	res := moodResult{Mood: label, Confidence: confidence, Recommendations: []model.MediaItem{}}
	if label != "" {
		res.Recommendations = s.recommender.Recommend(label)
	}
	return res
}

func (s *Server) handleMoodSample(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Expressions map[string]float64 `json:"expressions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	exprs := mood.Expressions{}
	for k, p := range req.Expressions {
		if p < 0 || p > 1 || math.IsNaN(p) {
			s.writeError(w, r, badRequest("expressions", fmt.Sprintf("probability for %q out of range", k)))
			return
		}
		if e := model.Emotion(k); e.Valid() {
			exprs[e] = p
		}
	}
	writeJSON(w, http.StatusOK, s.moodResult(exprs))
}

func (s *Server) handleMoodDetect(w http.ResponseWriter, r *http.Request) {
	if s.classifier == nil {
		s.writeError(w, r, fmt.Errorf("%w: no classifier configured", mood.ErrModelUnavailable))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBody+1))
	if err != nil {
		s.writeError(w, r, badRequest("body", "could not read image"))
		return
	}
	if len(data) == 0 || len(data) > maxImageBody {
		s.writeError(w, r, badRequest("body", "image must be between 1 byte and 10 MiB"))
		return
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.writeError(w, r, badRequest("body", "unsupported image format"))
		return
	}

	exprs, err := s.classifier.Classify(r.Context(), mood.Frame{
		Data:        data,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Timestamp:   time.Now(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.moodResult(exprs))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	label := model.Emotion(strings.ToLower(r.URL.Query().Get("mood")))
	writeJSON(w, http.StatusOK, s.recommender.Recommend(label))
}

// --- Journal ---

func (s *Server) handleSaveJournal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mood      string    `json:"mood"`
		Prompt    string    `json:"prompt"`
		Entry     string    `json:"entry"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text := strings.TrimSpace(req.Entry)
	if text == "" {
		s.writeError(w, r, badRequest("entry", "journal entry is required"))
		return
	}
	created := req.Timestamp.UTC()
	if req.Timestamp.IsZero() {
		created = time.Now().UTC()
	}
	entry := &model.JournalEntry{
		UserID:    auth.UserID(r.Context()),
		Mood:      req.Mood,
		Prompt:    req.Prompt,
		Entry:     text,
		CreatedAt: created,
	}
	if err := s.store.SaveJournal(r.Context(), entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListJournal(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		s.writeError(w, r, chat.ErrNotConfigured)
		return
	}
	var req struct {
		Message string         `json:"message"`
		History []chat.Message `json:"history"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()
	reply, err := s.chat.Reply(ctx, req.Message, req.History)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// --- Resources ---

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := resources.Filter{Type: q.Get("type"), Cost: q.Get("cost")}
	if v := q.Get("min_rating"); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, badRequest("min_rating", "must be a number"))
			return
		}
		f.MinRating = rating
	}
	if err := resources.ValidateFilter(f); err != nil {
		s.writeError(w, r, badRequest("filter", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.resources.List(f))
}

// --- Articles ---

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultArticleLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	articles, err := s.store.ListArticles(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleRefreshArticles(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "new_articles": 0, "feeds": 0})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	results, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("refresh articles: %w", err))
		return
	}
	total := 0
	for _, c := range results {
		total += c
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"new_articles": total,
		"feeds":        len(results),
	})
}

func (s *Server) handleExportFeeds(w http.ResponseWriter, r *http.Request) {
	var feeds []opml.Feed
	if s.fetcher != nil {
		for _, u := range s.fetcher.Feeds() {
			feeds = append(feeds, opml.Feed{URL: u})
		}
	}
	data, err := opml.Export("mindful wellness articles", feeds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=mindful-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

// parseLimit reads ?limit=, returning def when absent.
func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, badRequest("limit", fmt.Sprintf("must be an integer between 1 and %d", maxListLimit))
	}
	return n, nil
}
