// Package recommend maps a detected mood to a shuffled handful of songs.
package recommend

import (
	_ "embed"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/bryan-buckman/mindful/internal/model"
	"gopkg.in/yaml.v3"
)

// MaxItems caps how many songs Recommend returns.
const MaxItems = 5

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds the songs available for each mood.
type Catalog map[model.Emotion][]model.MediaItem

// LoadCatalog decodes a YAML catalog keyed by mood label.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var raw map[string][]model.MediaItem
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := make(Catalog, len(raw))
	for label, items := range raw {
		mood := model.Emotion(label)
		if !mood.Valid() {
			return nil, fmt.Errorf("decode catalog: unknown mood %q", label)
		}
		c[mood] = items
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog Catalog
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	defaultOnce.Do(func() {
		var raw map[string][]model.MediaItem
		if err := yaml.Unmarshal(defaultCatalogYAML, &raw); err != nil {
			panic(fmt.Sprintf("recommend: embedded catalog: %v", err))
		}
		defaultCatalog = make(Catalog, len(raw))
		for label, items := range raw {
			defaultCatalog[model.Emotion(label)] = items
		}
	})
	return defaultCatalog
}

// Selector draws recommendations from a catalog.
type Selector struct {
	catalog Catalog

	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// NewSelector creates a selector over c.
func NewSelector(c Catalog) *Selector {
	return &Selector{catalog: c}
}

// NewSeededSelector creates a selector with a deterministic random source.
func NewSeededSelector(c Catalog, seed uint64) *Selector {
	return &Selector{catalog: c, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Recommend returns up to MaxItems songs for mood, shuffled without
// replacement on every call. Moods without a bucket get an empty slice.
func (s *Selector) Recommend(mood model.Emotion) []model.MediaItem {
	bucket := s.catalog[mood]
	if len(bucket) == 0 {
		return []model.MediaItem{}
	}

	perm := s.perm(len(bucket))
	n := min(len(bucket), MaxItems)
	out := make([]model.MediaItem, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, bucket[idx])
	}
	return out
}

func (s *Selector) perm(n int) []int {
	if s.rng == nil {
		return rand.Perm(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Perm(n)
}
