// Package trigger decides when conversion and smoke checks should run. The
// same path filters drive the CI workflow and the local watch mode, so a
// change that would re-run CI also re-runs the local pipeline.
package trigger

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPatterns are the paths whose changes warrant a pipeline run.
// Documentation and unrelated source changes do not trigger.
var DefaultPatterns = []string{
	"notebooks/**/*.ipynb",
	"notebooks/**/requirements.txt",
	".github/workflows/smoke.yml",
	".github/workflows/convert.yml",
}

// Filter matches changed paths against trigger patterns.
type Filter struct {
	patterns []string
}

// NewFilter creates a filter from glob patterns. Empty input falls back to
// DefaultPatterns.
func NewFilter(patterns []string) *Filter {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Filter{patterns: patterns}
}

// Patterns returns the filter's patterns.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// Match reports whether a single path matches any pattern.
func (f *Filter) Match(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range f.patterns {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

// ShouldTrigger reports whether any of the changed paths matches.
func (f *Filter) ShouldTrigger(changed []string) bool {
	for _, path := range changed {
		if f.Match(path) {
			return true
		}
	}
	return false
}

// Matching returns the sorted subset of changed paths that match, without
// duplicates.
func (f *Filter) Matching(changed []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, path := range changed {
		if !f.Match(path) {
			continue
		}
		clean := filepath.ToSlash(path)
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	sort.Strings(out)
	return out
}

// matchGlob matches a path against a pattern where "**" spans directories
// and "*" stays within one segment, the convention workflow path filters
// use.
func matchGlob(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}

	if pattern[0] == "**" {
		// "**" matches zero or more leading segments.
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}

	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
