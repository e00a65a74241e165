package recommend

import (
	"strings"
	"testing"

	"github.com/bryan-buckman/mindful/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCoversEveryMood(t *testing.T) {
	c := DefaultCatalog()
	for _, mood := range model.Emotions {
		assert.NotEmpty(t, c[mood], "mood %s has no songs", mood)
	}
}

func TestRecommendDrawsFromBucketWithoutReplacement(t *testing.T) {
	c := DefaultCatalog()
	s := NewSelector(c)

	for _, mood := range model.Emotions {
		bucket := map[string]bool{}
		for _, item := range c[mood] {
			bucket[item.ID] = true
		}

		got := s.Recommend(mood)
		assert.Len(t, got, min(len(c[mood]), MaxItems))

		seen := map[string]bool{}
		for _, item := range got {
			assert.True(t, bucket[item.ID], "%s not in %s bucket", item.Name, mood)
			assert.False(t, seen[item.ID], "%s returned twice", item.Name)
			seen[item.ID] = true
		}
	}
}

func TestRecommendCapsAtMaxItems(t *testing.T) {
	items := make([]model.MediaItem, 8)
	for i := range items {
		items[i] = model.MediaItem{ID: string(rune('a' + i))}
	}
	s := NewSelector(Catalog{model.Happy: items})
	assert.Len(t, s.Recommend(model.Happy), MaxItems)
}

func TestRecommendUnknownMoodIsEmpty(t *testing.T) {
	s := NewSelector(DefaultCatalog())
	got := s.Recommend(model.Emotion("bored"))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, s.Recommend(""))
}

func TestRecommendReshufflesEachCall(t *testing.T) {
	items := make([]model.MediaItem, 5)
	for i := range items {
		items[i] = model.MediaItem{ID: string(rune('a' + i))}
	}
	s := NewSeededSelector(Catalog{model.Happy: items}, 42)

	orders := map[string]bool{}
	for i := 0; i < 20; i++ {
		var b strings.Builder
		for _, item := range s.Recommend(model.Happy) {
			b.WriteString(item.ID)
		}
		orders[b.String()] = true
	}
	assert.Greater(t, len(orders), 1, "20 draws of 5 items all came back in the same order")
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(`
sad:
  - id: "x"
    name: "Fix You"
    artist: "Coldplay"
    url: "https://example.org/fix-you"
`))
	require.NoError(t, err)
	require.Len(t, c[model.Sad], 1)
	assert.Equal(t, "Coldplay", c[model.Sad][0].Artist)

	_, err = LoadCatalog(strings.NewReader("bored:\n  - id: \"1\"\n"))
	assert.Error(t, err)
}
