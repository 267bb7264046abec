package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"sentinel/verdict"
)

// AuditHeader is the first line of every audit log.
const AuditHeader = "timestamp,file_path,status,entropy,ascii_ratio"

// AuditTimeLayout is ISO-8601 with microseconds and the local offset.
const AuditTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

var auditColumns = []string{"timestamp", "file_path", "status", "entropy", "ascii_ratio"}

// AuditRecord is the persisted form of one scan verdict.
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	Path       string         `json:"file_path"`
	Status     verdict.Status `json:"status"`
	Entropy    float64        `json:"entropy"`
	ASCIIRatio float64        `json:"ascii_ratio"`
}

func RecordFromVerdict(path string, v verdict.Verdict) AuditRecord {
	return AuditRecord{
		Timestamp:  v.Timestamp,
		Path:       path,
		Status:     v.Status,
		Entropy:    v.Signals.Entropy,
		ASCIIRatio: v.Signals.ASCIIRatio,
	}
}

func (r AuditRecord) fields() []string {
	return []string{
		r.Timestamp.Format(AuditTimeLayout),
		r.Path,
		r.Status.String(),
		strconv.FormatFloat(r.Entropy, 'f', 2, 64),
		strconv.FormatFloat(r.ASCIIRatio, 'f', 2, 64),
	}
}

// AuditLog is an append-only CSV log with one line per scan. Appends are
// serialized and each record reaches the file in a single write, so
// concurrent scans never interleave partial lines.
type AuditLog struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	line    bytes.Buffer
	csvw    *csv.Writer
	records int64
}

// OpenAuditLog opens path for appending, creating it with the header line
// when it does not exist or is empty. Existing records are never touched.
func OpenAuditLog(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(AuditHeader + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write audit log header: %w", err)
		}
	}
	l := &AuditLog{path: path, file: f}
	l.csvw = csv.NewWriter(&l.line)
	return l, nil
}

func (l *AuditLog) Path() string {
	return l.path
}

// Records returns how many records this handle has appended.
func (l *AuditLog) Records() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records
}

func (l *AuditLog) Append(rec AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	l.line.Reset()
	if err := l.csvw.Write(rec.fields()); err != nil {
		return err
	}
	l.csvw.Flush()
	if err := l.csvw.Error(); err != nil {
		return err
	}
	if _, err := l.file.Write(l.line.Bytes()); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	l.records++
	return nil
}

func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(syncErr, closeErr)
}

// ReadAuditLog parses every record in the audit log at path.
func ReadAuditLog(path string) ([]AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(auditColumns)
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("audit log %s has no header", path)
		}
		return nil, err
	}
	for i, col := range auditColumns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected audit log header %v", header)
		}
	}

	var records []AuditRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseAuditRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseAuditRow(row []string) (AuditRecord, error) {
	ts, err := time.Parse(AuditTimeLayout, row[0])
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse timestamp: %w", err)
	}
	status, err := verdict.ParseStatus(row[2])
	if err != nil {
		return AuditRecord{}, err
	}
	entropy, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse entropy: %w", err)
	}
	ratio, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse ascii ratio: %w", err)
	}
	return AuditRecord{Timestamp: ts, Path: row[1], Status: status, Entropy: entropy, ASCIIRatio: ratio}, nil
}
