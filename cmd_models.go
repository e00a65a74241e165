package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWeightsURL = "https://justadudewhohacks.github.io/face-api.js/weights"

// Weight files served to the in-browser detector and the inference sidecar.
var modelFiles = []string{
	"tiny_face_detector_model-shard1",
	"tiny_face_detector_model-weights_manifest.json",
	"face_landmark_68_model-shard1",
	"face_landmark_68_model-weights_manifest.json",
	"face_expression_model-shard1",
	"face_expression_model-weights_manifest.json",
	"face_recognition_model-shard1",
	"face_recognition_model-weights_manifest.json",
	"tiny_yolov2_model-shard1",
	"tiny_yolov2_model-weights_manifest.json",
	"tiny_yolov2_separable_conv_model-shard1",
	"tiny_yolov2_separable_conv_model-weights_manifest.json",
}

var (
	modelsDir     string
	modelsBaseURL string
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage face-expression model weights",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch the face-expression model weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(modelsDir, 0o755); err != nil {
			return fmt.Errorf("create models dir: %w", err)
		}
		client := &http.Client{Timeout: 2 * time.Minute}
		if err := downloadModels(cmd.Context(), client, modelsBaseURL, modelsDir, modelFiles); err != nil {
			return err
		}
		logger.Info("model weights downloaded", zap.String("dir", modelsDir), zap.Int("files", len(modelFiles)))
		return nil
	},
}

func init() {
	modelsDownloadCmd.Flags().StringVar(&modelsDir, "dir", filepath.Join("public", "models"), "destination directory")
	modelsDownloadCmd.Flags().StringVar(&modelsBaseURL, "base-url", defaultWeightsURL, "weights host")
	modelsCmd.AddCommand(modelsDownloadCmd)
}

// downloadModels fetches files from baseURL into dir, four at a time. The
// first failure cancels the rest; partially written files are removed.
func downloadModels(ctx context.Context, client *http.Client, baseURL, dir string, files []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range files {
		g.Go(func() error {
			return downloadFile(gctx, client, baseURL+"/"+name, filepath.Join(dir, name))
		})
	}
	return g.Wait()
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", filepath.Base(dest), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", filepath.Base(dest), resp.Status)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", filepath.Base(dest), err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
