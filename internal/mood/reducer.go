package mood

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/google/uuid"
)

// HistoryLimit is how many committed entries the reducer keeps in memory.
const HistoryLimit = 10

// PreviewThreshold is the confidence a live mood must exceed before
// recommendations are fetched for it.
const PreviewThreshold = 50

var (
	ErrInvalidTransition = errors.New("invalid detection state transition")
	ErrNothingToCommit   = errors.New("no live mood to commit")
)

// State is the capture state of the detection loop.
type State int

const (
	Idle      State = iota // no capture running
	Detecting              // capture active, samples emitted
	Paused                 // capture active, samples suppressed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Detecting:
		return "detecting"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Persister stores committed mood entries. database.Store satisfies it.
type Persister interface {
	SaveMood(ctx context.Context, entry *model.MoodEntry) error
}

// Recommender returns media for a mood. *recommend.Selector satisfies it.
type Recommender interface {
	Recommend(mood model.Emotion) []model.MediaItem
}

// PreviewFunc receives recommendations for a newly confident live mood.
type PreviewFunc func(mood model.Emotion, items []model.MediaItem)

// Reducer holds live mood state and the bounded committed history.
type Reducer struct {
	mu          sync.Mutex
	state       State
	live        model.MoodSample
	previewed   model.Emotion
	history     []model.MoodEntry
	userID      string
	persister   Persister
	recommender Recommender
	onPreview   PreviewFunc
	now         func() time.Time
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithPersister saves committed entries through p.
func WithPersister(p Persister) ReducerOption {
	return func(r *Reducer) { r.persister = p }
}

// WithPreview fetches recommendations from rec and hands them to fn.
func WithPreview(rec Recommender, fn PreviewFunc) ReducerOption {
	return func(r *Reducer) {
		r.recommender = rec
		r.onPreview = fn
	}
}

// WithUserID stamps committed entries with the owner.
func WithUserID(id string) ReducerOption {
	return func(r *Reducer) { r.userID = id }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) { r.now = now }
}

// NewReducer returns an idle reducer.
func NewReducer(opts ...ReducerOption) *Reducer {
	r := &Reducer{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start moves Idle to Detecting once the camera is running.
func (r *Reducer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, r.state)
	}
	r.state = Detecting
	return nil
}

// Toggle flips between Detecting and Paused and returns the new state.
func (r *Reducer) Toggle() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Detecting:
		r.state = Paused
	case Paused:
		r.state = Detecting
	default:
		return r.state, fmt.Errorf("%w: toggle from %s", ErrInvalidTransition, r.state)
	}
	return r.state, nil
}

// Stop returns to Idle from any state. The last live mood stays
// available for Commit.
func (r *Reducer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	r.previewed = ""
}

// State reports the current capture state.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Live returns the current uncommitted mood.
func (r *Reducer) Live() model.MoodSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// History returns committed entries, newest first.
func (r *Reducer) History() []model.MoodEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MoodEntry(nil), r.history...)
}

// Observe folds one classifier result into the live mood. It reports false
// and changes nothing unless the reducer is Detecting.
func (r *Reducer) Observe(exprs Expressions) (model.MoodSample, bool) {
	label, confidence := Dominant(exprs)

	r.mu.Lock()
	if r.state != Detecting {
		r.mu.Unlock()
		return model.MoodSample{}, false
	}
	sample := model.MoodSample{Label: label, Confidence: confidence, CapturedAt: r.now()}
	r.live = sample

	preview := false
	switch {
	case label == "":
		r.previewed = ""
	case label != r.previewed && confidence > PreviewThreshold:
		r.previewed = label
		preview = r.recommender != nil && r.onPreview != nil
	case label != r.previewed:
		// A change below the threshold re-arms the preview for the next
		// confident sample, even if it returns to the previewed mood.
		r.previewed = ""
	}
	rec, fn := r.recommender, r.onPreview
	r.mu.Unlock()

	if preview {
		fn(label, rec.Recommend(label))
	}
	return sample, true
}

// Commit turns the live mood into a MoodEntry, prepends it to the history
// and persists it. A persistence error is returned but the entry stays in
// the history.
func (r *Reducer) Commit(ctx context.Context) (model.MoodEntry, error) {
	r.mu.Lock()
	if r.live.Label == "" {
		r.mu.Unlock()
		return model.MoodEntry{}, ErrNothingToCommit
	}
	now := r.now()
	entry := model.MoodEntry{
		ID:         uuid.NewString(),
		UserID:     r.userID,
		Mood:       r.live.Label,
		Confidence: r.live.Confidence,
		Timestamp:  now,
		CreatedAt:  now,
	}
	r.history = append([]model.MoodEntry{entry}, r.history...)
	if len(r.history) > HistoryLimit {
		r.history = r.history[:HistoryLimit]
	}
	p := r.persister
	r.mu.Unlock()

	if p == nil {
		return entry, nil
	}
	if err := p.SaveMood(ctx, &entry); err != nil {
		return entry, fmt.Errorf("persist mood: %w", err)
	}
	return entry, nil
}
