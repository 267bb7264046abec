package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sentinel/quarantine"
	"sentinel/verdict"
)

// ManifestEntry describes one quarantine copy. It is informational: the
// digests are of the copy as written, not proof that it matches the
// sample that was scored.
type ManifestEntry struct {
	ScanID     string         `json:"scan_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     verdict.Status `json:"status"`
	Score      int            `json:"score"`
	Entropy    float64        `json:"entropy"`
	ASCIIRatio float64        `json:"ascii_ratio"`
	quarantine.Entry
}

// Manifest appends NDJSON lines describing quarantine copies.
type Manifest struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries int64
}

func OpenManifest(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	return &Manifest{path: path, file: f}, nil
}

func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) Append(entry ManifestEntry) error {
	line, err := encodeLine(entry)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return os.ErrClosed
	}
	if _, err := m.file.Write(line); err != nil {
		return fmt.Errorf("append manifest entry: %w", err)
	}
	m.entries++
	return nil
}

func (m *Manifest) Entries() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := errors.Join(m.file.Sync(), m.file.Close())
	m.file = nil
	return err
}

func ReadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ManifestEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry ManifestEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("decode manifest line: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
