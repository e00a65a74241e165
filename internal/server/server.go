// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryan-buckman/mindful/internal/auth"
	"github.com/bryan-buckman/mindful/internal/chat"
	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/bryan-buckman/mindful/internal/feed"
	"github.com/bryan-buckman/mindful/internal/mood"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"github.com/bryan-buckman/mindful/internal/recommend"
	"github.com/bryan-buckman/mindful/internal/resources"
	"github.com/bryan-buckman/mindful/internal/rss"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators the handlers use. Store, Hub and Auth are
// required; a nil optional collaborator makes its endpoints answer 503 or
// return empty results.
type Deps struct {
	Store       database.Store
	Hub         *realtime.Hub
	Auth        *auth.Authenticator
	Feed        *feed.Controller   // built from Store and Hub when nil
	Recommender mood.Recommender   // recommend.DefaultCatalog when nil
	Classifier  mood.Classifier    // optional
	Chat        chat.Assistant     // optional
	Resources   *resources.Directory
	Fetcher     *rss.Fetcher // optional
	Poller      *rss.Poller  // optional, started by Run
	Logger      *zap.Logger

	ReadTimeout time.Duration
}

// Server is the main HTTP server.
type Server struct {
	store       database.Store
	hub         *realtime.Hub
	auth        *auth.Authenticator
	feed        *feed.Controller
	recommender mood.Recommender
	classifier  mood.Classifier
	chat        chat.Assistant
	resources   *resources.Directory
	fetcher     *rss.Fetcher
	poller      *rss.Poller
	log         *zap.Logger
	router      chi.Router
	readTimeout time.Duration
}

// New creates a new server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Feed == nil {
		d.Feed = feed.NewController(d.Store, d.Hub, feed.WithLogger(d.Logger))
	}
	if d.Recommender == nil {
		d.Recommender = recommend.NewSelector(recommend.DefaultCatalog())
	}
	if d.Resources == nil {
		d.Resources = resources.Default()
	}
	s := &Server{
		store:       d.Store,
		hub:         d.Hub,
		auth:        d.Auth,
		feed:        d.Feed,
		recommender: d.Recommender,
		classifier:  d.Classifier,
		chat:        d.Chat,
		resources:   d.Resources,
		fetcher:     d.Fetcher,
		poller:      d.Poller,
		log:         d.Logger,
		readTimeout: d.ReadTimeout,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	requireAuth := s.auth.Required(s.writeError)

	r.Route("/api", func(r chi.Router) {
		// The socket is hijacked, so it stays outside the compressed group.
		r.With(requireAuth).Get("/socket", realtime.NewWebSocketHandler(s.hub, s.log).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(s.auth.Optional)

			r.Get("/health", s.handleHealth)

			r.Get("/posts", s.handleListPosts)
			r.With(requireAuth).Post("/posts", s.handleCreatePost)

			r.Post("/mood", s.handleSaveMood)
			r.With(requireAuth).Get("/mood", s.handleListMoods)
			r.Post("/mood/sample", s.handleMoodSample)
			r.Post("/mood/detect", s.handleMoodDetect)
			r.Get("/recommendations", s.handleRecommendations)

			r.With(requireAuth).Post("/journal", s.handleSaveJournal)
			r.With(requireAuth).Get("/journal", s.handleListJournal)

			r.Post("/chat", s.handleChat)

			r.Get("/resources", s.handleResources)

			r.Get("/articles", s.handleListArticles)
			r.Post("/articles/refresh", s.handleRefreshArticles)
			r.Get("/articles/feeds.opml", s.handleExportFeeds)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Code: codeNotFound})
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down within shutdownTimeout.
// The article poller runs for the lifetime of the server.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	if s.poller != nil {
		s.poller.Start()
		defer s.poller.Stop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server starting", zap.String("addr", addr), zap.String("database", s.store.DatabaseType()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
