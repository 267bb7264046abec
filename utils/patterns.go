package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ExcludeMatcher decides whether a path was excluded by the user. Each
// pattern is tried as a glob against the base name and the full path, then
// as a regular expression against the full path.
type ExcludeMatcher struct {
	patterns []string
	globs    []string
	regex    []*regexp.Regexp
}

func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, pattern)
		if _, err := filepath.Match(pattern, ""); err == nil {
			m.globs = append(m.globs, pattern)
		}
		if re, err := regexp.Compile(pattern); err == nil {
			m.regex = append(m.regex, re)
		}
	}
	return m
}

func (m *ExcludeMatcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

func (m *ExcludeMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range m.globs {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	for _, re := range m.regex {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
