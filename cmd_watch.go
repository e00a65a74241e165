package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bryan-buckman/mindful/internal/feed"
	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	watchServer   string
	watchToken    string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the community feed of a running server",
	Long: `Loads the current posts, then prints every new post as the server pushes
it. The post list is re-fetched every --interval to catch anything missed
while the socket was down.

Example:
  mindful watch --server http://localhost:8080 --token "$(mindful token --user me)"`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "base URL of the mindful server")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "session token for the realtime socket")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "full refresh interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	base, err := url.Parse(strings.TrimRight(watchServer, "/"))
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	if watchToken == "" {
		return fmt.Errorf("--token is required for the realtime socket")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newPostWatcher(cmd.OutOrStdout())
	client := &http.Client{Timeout: 15 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			posts, err := fetchPosts(gctx, client, base.String()+"/api/posts")
			if err != nil {
				logger.Warn("refresh posts", zap.Error(err))
			} else {
				w.apply(posts...)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	g.Go(func() error {
		header := http.Header{"Authorization": []string{"Bearer " + watchToken}}
		return realtime.Listen(gctx, socketURL(base), header, func(ev realtime.Event) {
			if np, ok := ev.(realtime.NewPost); ok {
				w.apply(np.Post)
			}
		})
	})
	return g.Wait()
}

// socketURL maps http(s)://host/prefix to ws(s)://host/prefix/api/socket.
func socketURL(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/socket"
	return u.String()
}

func fetchPosts(ctx context.Context, client *http.Client, endpoint string) ([]model.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list posts: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var posts []model.Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

// postWatcher prints posts the first time the timeline accepts them.
type postWatcher struct {
	mu   sync.Mutex
	out  io.Writer
	tl   *feed.Timeline
	seen map[string]bool
}

func newPostWatcher(out io.Writer) *postWatcher {
	return &postWatcher{out: out, tl: feed.NewTimeline(), seen: make(map[string]bool)}
}

func (w *postWatcher) apply(posts ...model.Post) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Oldest first so a fresh page prints in reading order.
	for i := len(posts) - 1; i >= 0; i-- {
		p := posts[i]
		if w.tl.Apply(p) == 0 {
			continue
		}
		verb := "new"
		if w.seen[p.ID] {
			verb = "edited"
		}
		w.seen[p.ID] = true
		fmt.Fprintf(w.out, "[%s] %s %s: %s\n", p.CreatedAt.Local().Format("Jan 02 15:04"), verb, p.AuthorID, p.Content)
	}
}
