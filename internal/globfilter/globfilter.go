// Package globfilter implements the include/exclude glob cascade applied to
// RelativeKeys at entry-source enumeration time. Patterns support "**" via
// doublestar, since filepath.Match's single-level "*" cannot express a
// pattern like "**/*.txt" against a virtual, separator-normalized key.
package globfilter

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/cboudereau/gcs-rsync/internal/entry"
)

// Filter holds a compiled include/exclude pattern set.
type Filter struct {
	includes []string
	excludes []string
}

// New validates and stores the include/exclude pattern lists. Patterns are
// validated eagerly so a malformed glob surfaces as a Config error before
// the run starts, not mid-enumeration.
func New(includes, excludes []string) (*Filter, error) {
	for _, p := range includes {
		if !doublestar.ValidatePattern(p) {
			return nil, invalidPatternErr(p)
		}
	}

	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, invalidPatternErr(p)
		}
	}

	return &Filter{includes: includes, excludes: excludes}, nil
}

// Match reports whether key passes the filter: (includes empty OR any
// include matches) AND no exclude matches.
func (f *Filter) Match(key string) bool {
	if len(f.includes) > 0 && !anyMatch(f.includes, key) {
		return false
	}

	return !anyMatch(f.excludes, key)
}

func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}

	return false
}

func invalidPatternErr(pattern string) error {
	return &patternError{pattern: pattern}
}

type patternError struct {
	pattern string
}

func (e *patternError) Error() string {
	return "globfilter: invalid glob pattern: " + e.pattern
}

func (e *patternError) Unwrap() error {
	return entry.ErrConfig
}
