// Package trigger decides whether a code-change event should start a
// pipeline run.
package trigger

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// PathFilter matches changed file paths against a set of glob patterns.
// Patterns use '/' as the separator; `**` crosses directory boundaries, so
// `src/**` matches everything under src/.
type PathFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewPathFilter compiles a pattern set. An empty set matches every path,
// mirroring a pipeline declared without path filters.
func NewPathFilter(patterns []string) (*PathFilter, error) {
	f := &PathFilter{}
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid path filter %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Matches reports whether path matches at least one pattern.
func (f *PathFilter) Matches(path string) bool {
	if len(f.globs) == 0 {
		return true
	}
	path = filepath.ToSlash(path)
	for _, g := range f.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether at least one of paths matches a pattern.
// An empty path list never matches a non-empty pattern set.
func (f *PathFilter) MatchesAny(paths []string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, p := range paths {
		if f.Matches(p) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns this filter was compiled from.
func (f *PathFilter) Patterns() []string {
	return f.patterns
}
