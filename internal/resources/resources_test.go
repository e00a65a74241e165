package resources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirectory(t *testing.T) {
	d := Default()
	all := d.List(Filter{})
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Rating, all[i].Rating)
	}
}

func TestListFilters(t *testing.T) {
	d := Default()

	for _, r := range d.List(Filter{Type: "hotline"}) {
		assert.Equal(t, "hotline", r.Type)
	}
	for _, r := range d.List(Filter{Cost: "free", Type: "all"}) {
		assert.Equal(t, "free", r.Cost)
	}
	high := d.List(Filter{MinRating: 4.5})
	require.NotEmpty(t, high)
	for _, r := range high {
		assert.GreaterOrEqual(t, r.Rating, 4.5)
	}
	assert.Empty(t, d.List(Filter{Type: "hotline", Cost: "high"}))
	assert.NotNil(t, d.List(Filter{Type: "hotline", Cost: "high"}))
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(Filter{}))
	assert.NoError(t, ValidateFilter(Filter{Type: "all", Cost: "all", MinRating: 4}))
	assert.Error(t, ValidateFilter(Filter{Type: "psychic"}))
	assert.Error(t, ValidateFilter(Filter{Cost: "priceless"}))
	assert.Error(t, ValidateFilter(Filter{MinRating: 6}))
}

func TestLoadRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"unknown type": `- {id: a, name: A, type: guru, cost: free, rating: 4}`,
		"unknown cost": `- {id: a, name: A, type: hotline, cost: cheap, rating: 4}`,
		"duplicate":    "- {id: a, name: A, type: hotline, cost: free}\n- {id: a, name: B, type: hotline, cost: free}",
		"no name":      `- {id: a, type: hotline, cost: free}`,
		"rating":       `- {id: a, name: A, type: hotline, cost: free, rating: 7}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
