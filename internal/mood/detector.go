package mood

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryan-buckman/mindful/internal/model"
	"go.uber.org/zap"
)

// DefaultInterval is the pause between detection cycles.
const DefaultInterval = 100 * time.Millisecond

// ErrAlreadyRunning is returned by Start while a loop is active.
var ErrAlreadyRunning = errors.New("detector already running")

// Camera opens a capture stream.
type Camera interface {
	// Open may return a non-nil Stream together with an error when setup
	// partially succeeded; the caller closes it.
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until closed.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Detector drives the sampling loop: one goroutine, one cycle at a time.
type Detector struct {
	camera     Camera
	classifier Classifier
	reducer    *Reducer
	interval   time.Duration
	onSample   func(model.MoodSample)
	log        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// DetectorConfig wires a Detector.
type DetectorConfig struct {
	Camera     Camera
	Classifier Classifier
	Reducer    *Reducer
	Interval   time.Duration
	OnSample   func(model.MoodSample) // called after every emitted sample
	Logger     *zap.Logger
}

// NewDetector creates a stopped detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Reducer == nil {
		cfg.Reducer = NewReducer()
	}
	return &Detector{
		camera:     cfg.Camera,
		classifier: cfg.Classifier,
		reducer:    cfg.Reducer,
		interval:   cfg.Interval,
		onSample:   cfg.OnSample,
		log:        cfg.Logger,
	}
}

// Reducer returns the state the loop feeds.
func (d *Detector) Reducer() *Reducer {
	return d.reducer
}

// Start opens the camera and launches the loop. The reducer enters
// Detecting only after the camera opened.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		select {
		case <-d.done:
		default:
			return ErrAlreadyRunning
		}
	}

	stream, err := d.camera.Open(ctx)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		return fmt.Errorf("open camera: %w", err)
	}
	if err := d.reducer.Start(); err != nil {
		stream.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.err = nil
	go d.run(loopCtx, stream, d.done)
	return nil
}

// Stop halts the loop and returns once the stream has been released.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the loop exits and returns why it stopped.
// A nil error means it was stopped or its context ended.
func (d *Detector) Wait() error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Detector) run(ctx context.Context, stream Stream, done chan struct{}) {
	var loopErr error
	defer func() {
		if err := stream.Close(); err != nil {
			d.log.Warn("close camera stream", zap.Error(err))
		}
		d.reducer.Stop()
		d.mu.Lock()
		d.err = loopErr
		d.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.cycle(ctx, stream); err != nil {
			if ctx.Err() != nil {
				return
			}
			loopErr = err
			return
		}
	}
}

// cycle runs one detection step. A returned error ends the loop; anything
// recoverable is logged here.
func (d *Detector) cycle(ctx context.Context, stream Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("detection cycle panicked", zap.Any("panic", r))
			err = nil
		}
	}()

	frame, err := stream.Next(ctx)
	if err != nil {
		d.log.Warn("camera stream ended", zap.Error(err))
		return fmt.Errorf("read frame: %w", err)
	}
	if frame.Width == 0 || frame.Height == 0 {
		return nil
	}

	exprs, err := d.classifier.Classify(ctx, frame)
	switch {
	case errors.Is(err, ErrModelUnavailable):
		d.log.Error("expression model unavailable, detection disabled", zap.Error(err))
		return err
	case err != nil:
		if ctx.Err() == nil {
			d.log.Warn("classify frame", zap.Uint64("seq", frame.Seq), zap.Error(err))
		}
		return nil
	}

	sample, ok := d.reducer.Observe(exprs)
	if !ok {
		return nil
	}
	d.log.Debug("mood sample",
		zap.String("mood", string(sample.Label)),
		zap.Int("confidence", sample.Confidence))
	if d.onSample != nil {
		d.onSample(sample)
	}
	return nil
}
