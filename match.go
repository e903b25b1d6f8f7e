package gitdescribe

import (
	"github.com/gobwas/glob"
)

// tagMatcher decides which tag names are eligible. Patterns are compiled
// without separators, so "*" also matches "/" as in git's --match.
type tagMatcher struct {
	include glob.Glob
	exclude []glob.Glob
}

func newTagMatcher(include string, exclude []string) (*tagMatcher, error) {
	m := &tagMatcher{}

	if include != "" {
		g, err := compilePattern(include)
		if err != nil {
			return nil, err
		}
		m.include = g
	}

	for _, pattern := range exclude {
		if pattern == "" {
			continue
		}
		g, err := compilePattern(pattern)
		if err != nil {
			return nil, err
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

func compilePattern(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Err: err}
	}
	return g, nil
}

func (m *tagMatcher) Match(name string) bool {
	if m.include != nil && !m.include.Match(name) {
		return false
	}
	for _, g := range m.exclude {
		if g.Match(name) {
			return false
		}
	}
	return true
}
