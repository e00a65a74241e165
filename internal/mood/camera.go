package mood

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirCamera replays image files from a directory in name order.
type DirCamera struct {
	Dir  string
	Loop bool // restart from the first file instead of ending
}

// Open lists the frames in the directory.
func (c DirCamera) Open(ctx context.Context) (Stream, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if frameContentType(e.Name()) != "" {
			files = append(files, filepath.Join(c.Dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image frames in %s", c.Dir)
	}
	sort.Strings(files)
	return &dirStream{files: files, loop: c.Loop}, nil
}

type dirStream struct {
	mu     sync.Mutex
	files  []string
	loop   bool
	next   int
	seq    uint64
	closed bool
}

func (s *dirStream) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, fmt.Errorf("stream closed")
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return Frame{}, io.EOF
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w", path, err)
	}
	s.seq++
	frame := Frame{
		Data:        data,
		ContentType: frameContentType(path),
		Seq:         s.seq,
		Timestamp:   time.Now(),
	}
	// Undecodable files come back with zero dimensions and are skipped.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width, frame.Height = cfg.Width, cfg.Height
	}
	return frame, nil
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func frameContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return ""
	}
}
