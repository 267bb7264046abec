// Package verdict turns a signal set into a clean/suspicious classification
// with a threshold vote: each of the four signals casts one vote and two votes
// are enough to flag a sample.
package verdict

import (
	"fmt"
	"strings"
	"time"

	"sentinel/signals"
)

type Status int

const (
	Clean Status = iota
	Suspicious
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Suspicious:
		return "suspicious"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "clean":
		return Clean, nil
	case "suspicious":
		return Suspicious, nil
	default:
		return Clean, fmt.Errorf("unknown status %q", value)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SuspiciousScore is the minimum number of votes that flags a sample.
const SuspiciousScore = 2

type Thresholds struct {
	// Entropy above this value casts a vote.
	Entropy float64 `json:"entropy"`
	// ASCII ratio below this value casts a vote.
	ASCIIRatio float64 `json:"ascii_ratio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Entropy: 4.5, ASCIIRatio: 0.8}
}

type Verdict struct {
	Status    Status      `json:"status"`
	Score     int         `json:"score"`
	Signals   signals.Set `json:"signals"`
	Timestamp time.Time   `json:"timestamp"`
}

func (v Verdict) Suspicious() bool {
	return v.Status == Suspicious
}

// Score counts the signal conditions that hold for set.
func Score(set signals.Set, th Thresholds) int {
	score := 0
	if set.Entropy > th.Entropy {
		score++
	}
	if set.ASCIIRatio < th.ASCIIRatio {
		score++
	}
	if set.Base64Like {
		score++
	}
	if set.KeywordHit {
		score++
	}
	return score
}

// Evaluate classifies set. It never fails.
func Evaluate(set signals.Set, th Thresholds, now time.Time) Verdict {
	score := Score(set, th)
	status := Clean
	if score >= SuspiciousScore {
		status = Suspicious
	}
	return Verdict{Status: status, Score: score, Signals: set, Timestamp: now}
}
