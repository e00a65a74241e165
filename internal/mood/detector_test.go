package mood

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu     sync.Mutex
	frames []Frame // replayed cyclically
	next   int
	closed int
}

func (s *fakeStream) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return Frame{}, errors.New("closed")
	}
	f := s.frames[s.next%len(s.frames)]
	s.next++
	f.Seq = uint64(s.next)
	return f, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeCamera struct {
	stream *fakeStream
	err    error
}

func (c *fakeCamera) Open(context.Context) (Stream, error) {
	if c.stream == nil {
		return nil, c.err
	}
	return c.stream, c.err
}

type classifyFunc func(ctx context.Context, f Frame) (Expressions, error)

func (fn classifyFunc) Classify(ctx context.Context, f Frame) (Expressions, error) {
	return fn(ctx, f)
}

var validFrame = Frame{Data: []byte{1}, Width: 640, Height: 480}

func TestDetectorSkipsEmptyFrames(t *testing.T) {
	stream := &fakeStream{frames: []Frame{{}, {Width: 640}, validFrame}}
	var seen []uint64
	var mu sync.Mutex
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: stream},
		Classifier: classifyFunc(func(_ context.Context, f Frame) (Expressions, error) {
			mu.Lock()
			seen = append(seen, f.Seq)
			mu.Unlock()
			return Expressions{model.Happy: 0.9}, nil
		}),
		Interval: time.Millisecond,
	})
	require.NoError(t, d.Start(context.Background()))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, time.Second, time.Millisecond)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, seq := range seen {
		assert.Zero(t, seq%3, "only every third frame has dimensions")
	}
}

func TestDetectorModelUnavailableDisablesLoop(t *testing.T) {
	stream := &fakeStream{frames: []Frame{validFrame}}
	var calls atomic.Int32
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: stream},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) {
			calls.Add(1)
			return nil, ErrModelUnavailable
		}),
		Interval: time.Millisecond,
	})
	require.NoError(t, d.Start(context.Background()))

	err := d.Wait()
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, stream.closeCount())
	assert.Equal(t, Idle, d.Reducer().State())
}

func TestDetectorContinuesAfterClassifyError(t *testing.T) {
	var calls atomic.Int32
	var samples atomic.Int32
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: &fakeStream{frames: []Frame{validFrame}}},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) {
			if calls.Add(1) <= 3 {
				return nil, errors.New("inference glitch")
			}
			return Expressions{model.Sad: 0.8}, nil
		}),
		OnSample: func(model.MoodSample) { samples.Add(1) },
		Interval: time.Millisecond,
	})
	require.NoError(t, d.Start(context.Background()))
	assert.Eventually(t, func() bool { return samples.Load() > 0 }, time.Second, time.Millisecond)
	d.Stop()

	assert.Equal(t, model.Sad, d.Reducer().Live().Label)
	assert.NoError(t, d.Wait())
}

func TestDetectorStopReleasesStream(t *testing.T) {
	stream := &fakeStream{frames: []Frame{validFrame}}
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: stream},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) {
			return Expressions{}, nil
		}),
		Interval: time.Millisecond,
	})
	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)

	d.Stop()
	assert.Equal(t, 1, stream.closeCount())
	assert.Equal(t, Idle, d.Reducer().State())

	d.Stop() // second stop is a no-op
	assert.Equal(t, 1, stream.closeCount())
}

func TestDetectorPartialOpenClosesStream(t *testing.T) {
	stream := &fakeStream{frames: []Frame{validFrame}}
	d := NewDetector(DetectorConfig{
		Camera:     &fakeCamera{stream: stream, err: errors.New("permission denied")},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) { return nil, nil }),
	})
	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, stream.closeCount())
	assert.Equal(t, Idle, d.Reducer().State())
}

func TestDetectorNeverOverlapsCycles(t *testing.T) {
	var inflight, maxInflight, calls atomic.Int32
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: &fakeStream{frames: []Frame{validFrame}}},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) {
			n := inflight.Add(1)
			for {
				m := maxInflight.Load()
				if n <= m || maxInflight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(3 * time.Millisecond)
			inflight.Add(-1)
			calls.Add(1)
			return Expressions{model.Neutral: 1}, nil
		}),
		Interval: time.Microsecond * 100,
	})
	require.NoError(t, d.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	d.Stop()

	assert.Equal(t, int32(1), maxInflight.Load())
}

func TestDetectorPausedEmitsNothing(t *testing.T) {
	var classified, samples atomic.Int32
	d := NewDetector(DetectorConfig{
		Camera: &fakeCamera{stream: &fakeStream{frames: []Frame{validFrame}}},
		Classifier: classifyFunc(func(context.Context, Frame) (Expressions, error) {
			classified.Add(1)
			return Expressions{model.Fearful: 0.9}, nil
		}),
		OnSample: func(model.MoodSample) { samples.Add(1) },
		Interval: time.Millisecond,
	})
	require.NoError(t, d.Start(context.Background()))
	_, err := d.Reducer().Toggle()
	require.NoError(t, err)

	// Cycles run in sequence, so two further classifications mean any cycle
	// that observed before the toggle has finished.
	c0 := classified.Load()
	require.Eventually(t, func() bool { return classified.Load() >= c0+2 }, time.Second, time.Millisecond)
	before := samples.Load()

	require.Eventually(t, func() bool { return classified.Load() >= c0+5 }, time.Second, time.Millisecond)
	d.Stop()
	assert.Equal(t, before, samples.Load())
}

func TestDirCameraReplaysFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "002.png"), 4, 3)
	writePNG(t, filepath.Join(dir, "001.png"), 8, 6)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "003.jpg"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	stream, err := DirCamera{Dir: dir}.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, "image/png", f.ContentType)

	f, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)

	f, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.Width, "undecodable frame has no dimensions")
	assert.Equal(t, "image/jpeg", f.ContentType)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDirCameraEmptyDir(t *testing.T) {
	_, err := DirCamera{Dir: t.TempDir()}.Open(context.Background())
	assert.Error(t, err)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}
