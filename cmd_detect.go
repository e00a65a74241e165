package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/bryan-buckman/mindful/internal/mood"
	"github.com/bryan-buckman/mindful/internal/recommend"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	detectFrames string
	detectLoop   bool
	detectCommit bool
	detectUser   string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run mood detection over a directory of frames",
	Long: `Replays the images in --frames through the expression classifier at the
configured detector interval, logging every live mood change and the songs
suggested for it.

Example:
  mindful detect --frames ./captures --commit --user alice`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectFrames, "frames", "", "directory of jpeg/png frames (required)")
	detectCmd.Flags().BoolVar(&detectLoop, "loop", false, "replay the frames until interrupted")
	detectCmd.Flags().BoolVar(&detectCommit, "commit", false, "save the final mood to the store")
	detectCmd.Flags().StringVar(&detectUser, "user", "", "user id recorded on the committed mood")
	_ = detectCmd.MarkFlagRequired("frames")
}

func runDetect(cmd *cobra.Command, args []string) error {
	if cfg.Classifier.URL == "" {
		return fmt.Errorf("%w: set classifier.url or MINDFUL_CLASSIFIER_URL", mood.ErrModelUnavailable)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []mood.ReducerOption{
		mood.WithUserID(detectUser),
		mood.WithPreview(recommend.NewSelector(recommend.DefaultCatalog()), func(m model.Emotion, items []model.MediaItem) {
			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.Name+" - "+it.Artist)
			}
			logger.Info("recommendations", zap.String("mood", string(m)), zap.Strings("songs", names))
		}),
	}
	if detectCommit {
		store, err := database.Open(ctx, database.Options{
			Driver:   cfg.Database.Driver,
			DSN:      cfg.Database.DSN,
			Database: cfg.Database.Name,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		opts = append(opts, mood.WithPersister(store))
	}

	reducer := mood.NewReducer(opts...)
	var last model.Emotion
	det := mood.NewDetector(mood.DetectorConfig{
		Camera:     mood.DirCamera{Dir: detectFrames, Loop: detectLoop},
		Classifier: mood.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout),
		Reducer:    reducer,
		Interval:   cfg.Detector.Interval,
		Logger:     logger,
		OnSample: func(s model.MoodSample) {
			if s.Label != last {
				last = s.Label
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %3d%%\n", s.CapturedAt.Format("15:04:05.000"), labelOrNone(s.Label), s.Confidence)
			}
		},
	})
	if err := det.Start(ctx); err != nil {
		return err
	}
	err := det.Wait()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	live := reducer.Live()
	fmt.Fprintf(cmd.OutOrStdout(), "final mood: %s (%d%%)\n", labelOrNone(live.Label), live.Confidence)
	if !detectCommit {
		return nil
	}
	commitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	entry, err := reducer.Commit(commitCtx)
	if err != nil {
		return err
	}
	logger.Info("mood saved", zap.String("id", entry.ID), zap.String("mood", string(entry.Mood)))
	return nil
}

func labelOrNone(e model.Emotion) string {
	if e == "" {
		return "none"
	}
	return string(e)
}
