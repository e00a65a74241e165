package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryan-buckman/mindful/internal/auth"
	"github.com/bryan-buckman/mindful/internal/chat"
	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/bryan-buckman/mindful/internal/mood"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"github.com/bryan-buckman/mindful/internal/rss"
	"github.com/bryan-buckman/mindful/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime post feed",
	Long: `Opens the configured store, starts the realtime hub and the article
poller, and serves the API until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, database.Options{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Database: cfg.Database.Name,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", zap.String("type", store.DatabaseType()))

	hub := realtime.NewHub(realtime.WithBuffer(cfg.Realtime.Buffer), realtime.WithLogger(logger))
	defer hub.Close()

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured; authenticated endpoints will reject every request")
	}

	deps := server.Deps{
		Store:       store,
		Hub:         hub,
		Auth:        auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Logger:      logger,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	assistant, err := chat.NewGemini(ctx, cfg.Chat.APIKey, cfg.Chat.Model)
	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		logger.Info("chat assistant disabled: no API key")
	case err != nil:
		return err
	default:
		deps.Chat = assistant
	}

	if cfg.Classifier.URL != "" {
		deps.Classifier = mood.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout)
	} else {
		logger.Info("mood detection disabled: no classifier url")
	}

	if cfg.Articles.Enabled {
		feeds, err := cfg.Articles.FeedURLs()
		if err != nil {
			return err
		}
		deps.Fetcher = rss.NewFetcher(store, feeds, logger)
		deps.Poller = rss.NewPoller(deps.Fetcher, cfg.Articles.Interval, logger)
		logger.Info("article feeds configured", zap.Int("feeds", len(feeds)))
	}

	srv := server.New(deps)
	if err := srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped", zap.Any("realtime", hub.Stats()))
	return nil
}
