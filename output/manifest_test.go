package output

import (
	"path/filepath"
	"testing"
	"time"

	"sentinel/quarantine"
	"sentinel/verdict"
)

func TestManifestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine_manifest.ndjson")
	m, err := OpenManifest(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	entry := ManifestEntry{
		ScanID:     "scan-1",
		Timestamp:  ts,
		Status:     verdict.Suspicious,
		Score:      3,
		Entropy:    7.9,
		ASCIIRatio: 0.3,
		Entry: quarantine.Entry{
			SourcePath:     "test_files/doc.bin",
			QuarantinePath: "test_files/quarantine/doc.bin",
			Size:           4096,
			Hashes:         map[string]string{"sha256": "abc"},
		},
	}
	if err := m.Append(entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	entry.ScanID = "scan-2"
	if err := m.Append(entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.Entries() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Entries())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].ScanID != "scan-1" || got[1].ScanID != "scan-2" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].Status != verdict.Suspicious || got[0].SourcePath != "test_files/doc.bin" || got[0].Hashes["sha256"] != "abc" {
		t.Fatalf("entry did not round trip: %+v", got[0])
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: %v", got[0].Timestamp)
	}

	if err := m.Append(entry); err == nil {
		t.Fatal("expected error after close")
	}
}
