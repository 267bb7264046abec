package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"sentinel/config"
	"sentinel/logger"
	"sentinel/output"
	"sentinel/quarantine"
	"sentinel/signals"
	"sentinel/verdict"

	"github.com/google/uuid"
)

// AuditSink records one line per completed scan.
type AuditSink interface {
	Append(rec output.AuditRecord) error
}

// QuarantineSink copies a flagged file aside.
type QuarantineSink interface {
	Copy(ctx context.Context, src string) (quarantine.Entry, error)
}

// ManifestSink describes quarantine copies.
type ManifestSink interface {
	Append(entry output.ManifestEntry) error
}

// EventSink receives every scan outcome on a best-effort basis.
type EventSink interface {
	Emit(ev output.ScanEvent)
}

type Option func(*Scanner)

func WithManifest(m ManifestSink) Option {
	return func(s *Scanner) {
		s.manifest = m
	}
}

func WithEvents(e EventSink) Option {
	return func(s *Scanner) {
		s.events = e
	}
}

// WithClock replaces time.Now for verdict timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// Stats is a snapshot of scanner counters.
type Stats struct {
	Scanned    int64 `json:"scanned"`
	Suspicious int64 `json:"suspicious"`
	Clean      int64 `json:"clean"`
	Excluded   int64 `json:"excluded"`
	ReadErrors int64 `json:"read_errors"`
	SinkErrors int64 `json:"sink_errors"`
}

// Scanner turns one file path into one verdict and fans the result out to
// the sinks. It is safe for concurrent use; every call is independent.
type Scanner struct {
	filter      *Filter
	reader      sampleReader
	extractor   *signals.Extractor
	thresholds  verdict.Thresholds
	timeout     time.Duration
	concurrency int
	ratePerSec  int

	audit      AuditSink
	quarantine QuarantineSink
	manifest   ManifestSink
	events     EventSink
	now        func() time.Time

	scanned    atomic.Int64
	suspicious atomic.Int64
	clean      atomic.Int64
	excluded   atomic.Int64
	readErrors atomic.Int64
	sinkErrors atomic.Int64
}

func New(cfg *config.Config, audit AuditSink, q QuarantineSink, opts ...Option) *Scanner {
	s := &Scanner{
		filter: NewFilter(cfg),
		reader: sampleReader{
			size:        cfg.SampleSize,
			mode:        cfg.ContentReadMode,
			mmapMinSize: cfg.MmapMinSize,
		},
		extractor:   signals.NewExtractor(cfg.Keywords),
		thresholds:  verdict.Thresholds{Entropy: cfg.EntropyThreshold, ASCIIRatio: cfg.ASCIIRatioThreshold},
		timeout:     cfg.ScanTimeout,
		concurrency: cfg.ConcurrencyLevel,
		ratePerSec:  cfg.MaxScansPerSecond,
		audit:       audit,
		quarantine:  q,
		now:         time.Now,
	}
	if s.reader.size <= 0 {
		s.reader.size = config.DefaultSampleSize
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) Filter() *Filter {
	return s.filter
}

func (s *Scanner) Stats() Stats {
	return Stats{
		Scanned:    s.scanned.Load(),
		Suspicious: s.suspicious.Load(),
		Clean:      s.clean.Load(),
		Excluded:   s.excluded.Load(),
		ReadErrors: s.readErrors.Load(),
		SinkErrors: s.sinkErrors.Load(),
	}
}

// ScanFile samples path, scores it, appends an audit record and, when the
// verdict is suspicious, quarantines a copy.
//
// Excluded paths return ErrExcluded. A failed read returns a *ReadError and
// writes nothing. Otherwise the verdict is always returned, joined with a
// *SinkError for each sink that failed.
func (s *Scanner) ScanFile(ctx context.Context, path string) (verdict.Verdict, error) {
	if s.filter.Excluded(path) {
		s.excluded.Add(1)
		return verdict.Verdict{}, ErrExcluded
	}

	readCtx, cancelRead := s.bounded(ctx)
	sample, err := s.reader.read(readCtx, path)
	cancelRead()
	if err != nil {
		s.readErrors.Add(1)
		logger.WithFields(logger.Fields{"path": path, "error": err}).Warn("Failed to read sample")
		return verdict.Verdict{}, &ReadError{Path: path, Err: err}
	}

	v := verdict.Evaluate(s.extractor.Extract(sample.Data), s.thresholds, s.now())
	scanID := uuid.NewString()
	s.scanned.Add(1)
	if v.Suspicious() {
		s.suspicious.Add(1)
	} else {
		s.clean.Add(1)
	}

	rec := output.RecordFromVerdict(path, v)
	var errs []error
	if s.audit != nil {
		if err := s.audit.Append(rec); err != nil {
			errs = append(errs, s.sinkFailure(SinkAudit, path, err))
		}
	}

	logger.Info(verdictLine(path, v))

	quarantined := false
	if v.Suspicious() {
		if s.quarantine != nil {
			copyCtx, cancelCopy := s.bounded(ctx)
			entry, err := s.quarantine.Copy(copyCtx, path)
			cancelCopy()
			if err != nil {
				errs = append(errs, s.sinkFailure(SinkQuarantine, path, err))
			} else {
				quarantined = true
				logger.WithFields(logger.Fields{"path": path, "scan_id": scanID}).Debugf("Quarantined copy at %s", entry.QuarantinePath)
				if err := s.recordManifest(scanID, v, entry); err != nil {
					errs = append(errs, s.sinkFailure(SinkManifest, path, err))
				}
			}
		}
	}

	if s.events != nil {
		s.events.Emit(output.ScanEvent{
			ScanID:      scanID,
			Record:      rec,
			Score:       v.Score,
			Base64Like:  v.Signals.Base64Like,
			KeywordHit:  v.Signals.KeywordHit,
			Quarantined: quarantined,
		})
	}
	return v, errors.Join(errs...)
}

// verdictLine is the operator-facing summary logged for every verdict.
func verdictLine(path string, v verdict.Verdict) string {
	return fmt.Sprintf("[LOG] %s -> %s | entropy=%.2f, ascii_ratio=%.2f",
		strings.ToUpper(v.Status.String()), path, v.Signals.Entropy, v.Signals.ASCIIRatio)
}

// bounded applies the per-scan timeout. The sample read and the quarantine
// copy each get their own budget.
func (s *Scanner) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Scanner) recordManifest(scanID string, v verdict.Verdict, entry quarantine.Entry) error {
	if s.manifest == nil {
		return nil
	}
	return s.manifest.Append(output.ManifestEntry{
		ScanID:     scanID,
		Timestamp:  v.Timestamp,
		Status:     v.Status,
		Score:      v.Score,
		Entropy:    v.Signals.Entropy,
		ASCIIRatio: v.Signals.ASCIIRatio,
		Entry:      entry,
	})
}

func (s *Scanner) sinkFailure(sink, path string, err error) error {
	s.sinkErrors.Add(1)
	logger.WithFields(logger.Fields{"path": path, "sink": sink, "error": err}).Error("Sink write failed")
	return &SinkError{Sink: sink, Path: path, Err: err}
}
