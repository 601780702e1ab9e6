package grid

import (
	"fmt"

	"github.com/gobwas/glob"
)

// CollectionFilter restricts which collections this node accepts remote
// registrations for, using glob patterns. No patterns means accept all.
type CollectionFilter struct {
	globs []glob.Glob
}

// NewCollectionFilter compiles the given patterns.
func NewCollectionFilter(patterns []string) (*CollectionFilter, error) {
	filter := &CollectionFilter{globs: make([]glob.Glob, 0, len(patterns))}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid collection pattern %q: %w", pattern, err)
		}
		filter.globs = append(filter.globs, g)
	}

	return filter, nil
}

// Accepts reports whether registrations for the collection are allowed.
func (f *CollectionFilter) Accepts(name string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
