// Package signals computes the content measurements used to judge whether a
// file sample looks like ciphertext or obfuscated output. Every function here
// is pure and safe for concurrent use on independent buffers.
package signals

import (
	"math"
	"regexp"
	"strings"
)

// Set holds the four measurements taken from one content sample.
type Set struct {
	Entropy    float64 `json:"entropy"`
	ASCIIRatio float64 `json:"ascii_ratio"`
	Base64Like bool    `json:"base64_like"`
	KeywordHit bool    `json:"keyword_hit"`
}

// MinBase64Run is the shortest run of base64 alphabet characters that counts
// as base64-like content.
const MinBase64Run = 16

var base64Run = regexp.MustCompile(`[A-Za-z0-9+/]{16,}={0,2}`)

// Entropy returns the Shannon entropy of the byte distribution in bits,
// in the range [0, 8]. An empty buffer has entropy 0.
func Entropy(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range buf {
		counts[b]++
	}
	total := float64(len(buf))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	if entropy < 0 {
		return 0
	}
	return entropy
}

// ASCIIRatio returns the fraction of bytes that are printable ASCII or one of
// tab, newline and carriage return. An empty buffer has ratio 0.
func ASCIIRatio(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var printable int
	for _, b := range buf {
		if isTextByte(b) {
			printable++
		}
	}
	return float64(printable) / float64(len(buf))
}

func isTextByte(b byte) bool {
	return (b >= 32 && b <= 126) || b == '\t' || b == '\n' || b == '\r'
}

// Text decodes buf as UTF-8, dropping invalid sequences instead of replacing
// them.
func Text(buf []byte) string {
	return strings.ToValidUTF8(string(buf), "")
}

// Base64Like reports whether text contains a run of at least MinBase64Run
// base64 alphabet characters. This is a pattern match only; nothing is decoded.
func Base64Like(text string) bool {
	if len(text) < MinBase64Run {
		return false
	}
	return base64Run.MatchString(text)
}

// KeywordHit reports whether text contains any of DefaultKeywords.
func KeywordHit(text string) bool {
	return defaultKeywords.Match(text)
}

// Extract computes every signal for buf using the default keyword set.
func Extract(buf []byte) Set {
	return defaultExtractor.Extract(buf)
}

// Extractor computes signal sets with a configurable keyword matcher.
type Extractor struct {
	keywords *KeywordMatcher
}

var defaultExtractor = &Extractor{keywords: defaultKeywords}

// NewExtractor returns an extractor matching the given keywords. An empty list
// selects DefaultKeywords.
func NewExtractor(keywords []string) *Extractor {
	if len(keywords) == 0 {
		return defaultExtractor
	}
	return &Extractor{keywords: NewKeywordMatcher(keywords)}
}

func (e *Extractor) Extract(buf []byte) Set {
	text := Text(buf)
	return Set{
		Entropy:    Entropy(buf),
		ASCIIRatio: ASCIIRatio(buf),
		Base64Like: Base64Like(text),
		KeywordHit: e.keywords.Match(text),
	}
}
