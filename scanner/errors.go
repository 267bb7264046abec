package scanner

import (
	"errors"
	"fmt"
)

// ErrExcluded is returned for paths the scanner never evaluates: anything in
// the quarantine directory, the scanner's own logs, and user exclusions.
var ErrExcluded = errors.New("path excluded from scanning")

// Sink names carried by SinkError.
const (
	SinkAudit      = "audit"
	SinkQuarantine = "quarantine"
	SinkManifest   = "manifest"
)

// ReadError means the sample could not be read. The file may be locked,
// vanished, or still being written; a later event will retry it.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read sample %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// SinkError reports a failed audit append or quarantine copy. The verdict was
// still reached.
type SinkError struct {
	Sink string
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink failed for %s: %v", e.Sink, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
