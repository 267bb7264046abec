package signals

import (
	"bytes"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// DefaultKeywords are the markers commonly left in ransom notes and encrypted
// payload headers. Matching is case-sensitive.
var DefaultKeywords = []string{"ENCRYPTED", "LOCKED", "KEY", "PAYLOAD", "BEGIN"}

var defaultKeywords = NewKeywordMatcher(DefaultKeywords)

// KeywordMatcher finds any of a fixed set of substrings in one pass.
// The automaton is immutable after construction.
type KeywordMatcher struct {
	terms   []string
	termsB  [][]byte
	matcher *ahocorasick.Matcher
}

func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	terms := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		terms = append(terms, kw)
	}
	termsB := make([][]byte, len(terms))
	for i := range terms {
		termsB[i] = []byte(terms[i])
	}
	m := &KeywordMatcher{terms: terms, termsB: termsB}
	if len(terms) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(terms)
	}
	return m
}

func (m *KeywordMatcher) Match(text string) bool {
	return len(m.Hits(text)) > 0
}

// Hits returns the keywords present in text, in configuration order.
func (m *KeywordMatcher) Hits(text string) []string {
	if m == nil || m.matcher == nil || text == "" {
		return nil
	}
	content := []byte(text)
	matches := m.matcher.MatchThreadSafe(content)
	if len(matches) == 0 {
		return nil
	}
	candidates := make([]bool, len(m.terms))
	for _, idx := range matches {
		if idx >= 0 && idx < len(m.terms) {
			candidates[idx] = true
		}
	}
	var hits []string
	for i, ok := range candidates {
		// confirm, the automaton only nominates candidates
		if ok && bytes.Contains(content, m.termsB[i]) {
			hits = append(hits, m.terms[i])
		}
	}
	return hits
}
