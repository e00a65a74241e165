// Package resources serves the directory of support services.
package resources

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"

	"github.com/bryan-buckman/mindful/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed resources.yaml
var defaultYAML []byte

var (
	validTypes = map[string]bool{"therapist": true, "hotline": true, "support_group": true}
	validCosts = map[string]bool{"free": true, "low": true, "medium": true, "high": true}
)

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Type      string
	Cost      string
	MinRating float64
}

// Directory is an immutable list of resources.
type Directory struct {
	items []model.Resource
}

// Load decodes and checks a YAML resource list.
func Load(r io.Reader) (*Directory, error) {
	var items []model.Resource
	if err := yaml.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode resources: %w", err)
	}
	seen := make(map[string]bool, len(items))
	for i, res := range items {
		switch {
		case res.ID == "" || res.Name == "":
			return nil, fmt.Errorf("resource %d: id and name are required", i)
		case seen[res.ID]:
			return nil, fmt.Errorf("resource %s: duplicate id", res.ID)
		case !validTypes[res.Type]:
			return nil, fmt.Errorf("resource %s: unknown type %q", res.ID, res.Type)
		case !validCosts[res.Cost]:
			return nil, fmt.Errorf("resource %s: unknown cost %q", res.ID, res.Cost)
		case res.Rating < 0 || res.Rating > 5:
			return nil, fmt.Errorf("resource %s: rating %.1f out of range", res.ID, res.Rating)
		}
		seen[res.ID] = true
	}
	return &Directory{items: items}, nil
}

// Default returns the built-in directory.
func Default() *Directory {
	d, err := Load(bytes.NewReader(defaultYAML))
	if err != nil {
		panic(fmt.Sprintf("resources: embedded list: %v", err))
	}
	return d
}

// ValidateFilter rejects type and cost values outside the known sets.
func ValidateFilter(f Filter) error {
	if f.Type != "" && f.Type != "all" && !validTypes[f.Type] {
		return fmt.Errorf("unknown resource type %q", f.Type)
	}
	if f.Cost != "" && f.Cost != "all" && !validCosts[f.Cost] {
		return fmt.Errorf("unknown cost %q", f.Cost)
	}
	if f.MinRating < 0 || f.MinRating > 5 {
		return fmt.Errorf("min_rating must be between 0 and 5")
	}
	return nil
}

// List returns matching resources, highest rated first.
func (d *Directory) List(f Filter) []model.Resource {
	out := []model.Resource{}
	for _, res := range d.items {
		if f.Type != "" && f.Type != "all" && res.Type != f.Type {
			continue
		}
		if f.Cost != "" && f.Cost != "all" && res.Cost != f.Cost {
			continue
		}
		if f.MinRating > 0 && res.Rating < f.MinRating {
			continue
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out
}
