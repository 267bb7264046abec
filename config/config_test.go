package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCommaSeparated(t *testing.T) {
	res := parseCommaSeparated("a,b , c,,")
	if len(res) != 3 || res[1] != "b" {
		t.Fatalf("unexpected result: %v", res)
	}
	if res := parseCommaSeparated(""); len(res) != 0 {
		t.Fatalf("expected empty slice")
	}
}

func TestParseHeaders(t *testing.T) {
	res := parseHeaders("Authorization=Bearer x, bad, =nokey,X-Tenant = blue")
	if len(res) != 2 || res["Authorization"] != "Bearer x" || res["X-Tenant"] != "blue" {
		t.Fatalf("unexpected headers: %v", res)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.WatchPath != "test_files" {
		t.Fatalf("unexpected watch path: %s", cfg.WatchPath)
	}
	if cfg.QuarantineDir != filepath.Join("test_files", "quarantine") {
		t.Fatalf("unexpected quarantine dir: %s", cfg.QuarantineDir)
	}
	if cfg.LogFile != filepath.Join("test_files", "suspicious_log.csv") {
		t.Fatalf("unexpected log file: %s", cfg.LogFile)
	}
	if cfg.ManifestFile != filepath.Join("test_files", "quarantine_manifest.ndjson") {
		t.Fatalf("unexpected manifest file: %s", cfg.ManifestFile)
	}
	if cfg.EntropyThreshold != 4.5 || cfg.ASCIIRatioThreshold != 0.8 || cfg.SampleSize != 4096 {
		t.Fatalf("unexpected thresholds: %+v", cfg)
	}
	if cfg.QueueSize != cfg.ConcurrencyLevel*4 {
		t.Fatalf("queue size not derived from concurrency: %d", cfg.QueueSize)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadDerivesArtifactPathsFromWatchPath(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load([]string{"--path", root, "--concurrency", "3", "--hashes", "SHA256, blake3,sha256"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QuarantineDir != filepath.Join(root, "quarantine") {
		t.Fatalf("unexpected quarantine dir: %s", cfg.QuarantineDir)
	}
	if cfg.LogFile != filepath.Join(root, "suspicious_log.csv") {
		t.Fatalf("unexpected log file: %s", cfg.LogFile)
	}
	if cfg.ConcurrencyLevel != 3 || cfg.QueueSize != 12 {
		t.Fatalf("unexpected concurrency settings: %+v", cfg)
	}
	if len(cfg.HashAlgorithms) != 2 || cfg.HashAlgorithms[0] != "sha256" || cfg.HashAlgorithms[1] != "blake3" {
		t.Fatalf("unexpected hash algorithms: %v", cfg.HashAlgorithms)
	}
}

func TestLoadManifestDisabled(t *testing.T) {
	cfg, err := Load([]string{"--manifest=false"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ManifestFile != "" {
		t.Fatalf("expected manifest to be disabled, got %s", cfg.ManifestFile)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := [][]string{
		{"--entropy-threshold", "9"},
		{"--ascii-ratio-threshold", "1.5"},
		{"--sample-size", "0"},
		{"--concurrency", "0"},
		{"--content-read-mode", "dma"},
		{"--hashes", "crc32"},
		{"--log-level", "loud"},
		{"--otel-endpoint", "collector:4318"},
		{"--debounce", "-1s"},
		{"--no-such-flag"},
	}
	for _, args := range cases {
		if _, err := Load(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "cfg.json")
	body := `{"watch_path":"/srv/share","entropy_threshold":6,"concurrency_level":2,"scan_timeout":1000000000}`
	if err := os.WriteFile(tmp, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := baseDefaults()
	if err := cfg.loadFromFile(tmp); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WatchPath != "/srv/share" || cfg.EntropyThreshold != 6 || cfg.ScanTimeout != time.Second || cfg.ConcurrencyLevel != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadFromYAMLFileWithFlagOverride(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "watch_path: /srv/share\nascii_ratio_threshold: 0.7\ndebounce: 250ms\nexclude_patterns:\n  - '*.tmp'\nkeywords: [RANSOM, DECRYPT]\n"
	if err := os.WriteFile(tmp, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load([]string{"--config", tmp, "--path", "/data"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WatchPath != "/data" {
		t.Fatalf("flag should override file, got %s", cfg.WatchPath)
	}
	if cfg.ASCIIRatioThreshold != 0.7 || cfg.Debounce != 250*time.Millisecond {
		t.Fatalf("unexpected cfg from yaml: %+v", cfg)
	}
	if len(cfg.ExcludePatterns) != 1 || len(cfg.Keywords) != 2 {
		t.Fatalf("unexpected lists from yaml: %v %v", cfg.ExcludePatterns, cfg.Keywords)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := baseDefaults()
	if err := cfg.loadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte("{"), 0600)
	if err := cfg.loadFromFile(bad); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestCheckWatchRoot(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{WatchPath: root}
	if err := cfg.CheckWatchRoot(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.WatchPath = filepath.Join(root, "missing")
	if err := cfg.CheckWatchRoot(); !errors.Is(err, ErrInvalidRoot) {
		t.Fatalf("expected ErrInvalidRoot, got %v", err)
	}

	file := filepath.Join(root, "file.txt")
	os.WriteFile(file, []byte("x"), 0600)
	cfg.WatchPath = file
	if err := cfg.CheckWatchRoot(); !errors.Is(err, ErrInvalidRoot) {
		t.Fatalf("expected ErrInvalidRoot for file root, got %v", err)
	}
}
