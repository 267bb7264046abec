package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"sentinel/hasher"
	"sentinel/version"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRoot is returned when the watched root is missing or is not a
// directory. It is fatal at startup.
var ErrInvalidRoot = errors.New("invalid watch root")

const (
	DefaultWatchPath     = "test_files"
	DefaultQuarantineDir = "quarantine"
	DefaultLogFile       = "suspicious_log.csv"
	DefaultManifestFile  = "quarantine_manifest.ndjson"
	DefaultSampleSize    = 4096
	maxSampleSize        = 16 * 1024 * 1024
)

type Config struct {
	WatchPath           string            `json:"watch_path" yaml:"watch_path"`
	QuarantineDir       string            `json:"quarantine_dir" yaml:"quarantine_dir"`
	LogFile             string            `json:"log_file" yaml:"log_file"`
	WriteManifest       bool              `json:"write_manifest" yaml:"write_manifest"`
	ManifestFile        string            `json:"manifest_file" yaml:"manifest_file"`
	EntropyThreshold    float64           `json:"entropy_threshold" yaml:"entropy_threshold"`
	ASCIIRatioThreshold float64           `json:"ascii_ratio_threshold" yaml:"ascii_ratio_threshold"`
	SampleSize          int               `json:"sample_size" yaml:"sample_size"`
	Keywords            []string          `json:"keywords" yaml:"keywords"`
	ConcurrencyLevel    int               `json:"concurrency_level" yaml:"concurrency_level"`
	QueueSize           int               `json:"queue_size" yaml:"queue_size"`
	MaxScansPerSecond   int               `json:"max_scans_per_second" yaml:"max_scans_per_second"`
	Debounce            time.Duration     `json:"debounce" yaml:"debounce"`
	ScanTimeout         time.Duration     `json:"scan_timeout" yaml:"scan_timeout"`
	ContentReadMode     string            `json:"content_read_mode" yaml:"content_read_mode"`
	MmapMinSize         int64             `json:"mmap_min_size" yaml:"mmap_min_size"`
	ExcludePatterns     []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	InitialScan         bool              `json:"initial_scan" yaml:"initial_scan"`
	HashAlgorithms      []string          `json:"hash_algorithms" yaml:"hash_algorithms"`
	FuzzyHash           bool              `json:"fuzzy_hash" yaml:"fuzzy_hash"`
	MinFreeBytes        uint64            `json:"min_free_bytes" yaml:"min_free_bytes"`
	LogLevel            string            `json:"log_level" yaml:"log_level"`
	ConfigFile          string            `json:"config_file" yaml:"config_file"`
	OtelEndpoint        string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv         bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders         map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName     string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout         time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	OtelExportPaths     bool              `json:"otel_export_paths" yaml:"otel_export_paths"`
}

// Defaults returns a configuration with every default applied and the
// derived artifact paths resolved against the default watch path.
func Defaults() *Config {
	cfg := baseDefaults()
	cfg.normalize()
	return cfg
}

func baseDefaults() *Config {
	return &Config{
		WatchPath:           DefaultWatchPath,
		WriteManifest:       true,
		EntropyThreshold:    4.5,
		ASCIIRatioThreshold: 0.8,
		SampleSize:          DefaultSampleSize,
		Keywords:            []string{},
		ConcurrencyLevel:    defaultConcurrency(),
		QueueSize:           0,
		MaxScansPerSecond:   0,
		Debounce:            0,
		ScanTimeout:         30 * time.Second,
		ContentReadMode:     "auto",
		MmapMinSize:         128 * 1024,
		ExcludePatterns:     []string{},
		InitialScan:         false,
		HashAlgorithms:      []string{"sha256"},
		FuzzyHash:           false,
		MinFreeBytes:        0,
		LogLevel:            "info",
		OtelHeaders:         map[string]string{},
		OtelServiceName:     "sentinel",
		OtelTimeout:         5 * time.Second,
	}
}

func defaultConcurrency() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// LoadConfig parses the process command line.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds a configuration from defaults, an optional config file and the
// given command-line arguments, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	cfg := baseDefaults()

	fs := flag.NewFlagSet("sentinel", flag.ContinueOnError)
	watchPath := fs.String("path", cfg.WatchPath, fmt.Sprintf("Directory tree to watch (default: %s).", cfg.WatchPath))
	quarantineDir := fs.String("quarantine-dir", "", "Directory receiving copies of suspicious files (default: <path>/quarantine).")
	logFile := fs.String("log-file", "", "Append-only CSV audit log (default: <path>/suspicious_log.csv).")
	writeManifest := fs.Bool("manifest", cfg.WriteManifest, fmt.Sprintf("Record digests of quarantined copies in an NDJSON manifest (default: %t).", cfg.WriteManifest))
	manifestFile := fs.String("manifest-file", "", "Quarantine manifest path (default: <path>/quarantine_manifest.ndjson).")
	entropyThreshold := fs.Float64("entropy-threshold", cfg.EntropyThreshold, fmt.Sprintf("Entropy in bits above which a sample casts a vote (default: %.1f).", cfg.EntropyThreshold))
	asciiThreshold := fs.Float64("ascii-ratio-threshold", cfg.ASCIIRatioThreshold, fmt.Sprintf("Printable ratio below which a sample casts a vote (default: %.1f).", cfg.ASCIIRatioThreshold))
	sampleSize := fs.Int("sample-size", cfg.SampleSize, fmt.Sprintf("Bytes read from the start of each file for analysis (default: %d).", cfg.SampleSize))
	keywords := fs.String("keywords", "", "Comma-separated list of marker keywords (default: ENCRYPTED,LOCKED,KEY,PAYLOAD,BEGIN).")
	concurrency := fs.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Number of parallel scan workers (default: %d).", cfg.ConcurrencyLevel))
	queueSize := fs.Int("queue-size", cfg.QueueSize, "Pending scan queue capacity (default: 4x concurrency).")
	maxScans := fs.Int("max-scans-per-second", cfg.MaxScansPerSecond, "Maximum scans dispatched per second, 0 for unlimited (default: 0).")
	debounce := fs.Duration("debounce", cfg.Debounce, "Coalesce repeated events for the same file within this window (default: 0/off).")
	scanTimeout := fs.Duration("scan-timeout", cfg.ScanTimeout, "Abandon a sample read after this duration (default: 30s).")
	contentReadMode := fs.String("content-read-mode", cfg.ContentReadMode, "Sample read mode: auto, stream, or mmap (default: auto).")
	mmapMinSize := fs.Int64("mmap-min-size", cfg.MmapMinSize, "Minimum file size in bytes for the mmap read path (default: 131072).")
	excludes := fs.String("exclude", "", "Comma-separated list of exclude patterns, globs or regexes (default: none).")
	initialScan := fs.Bool("initial-scan", cfg.InitialScan, fmt.Sprintf("Scan files already present before watching (default: %t).", cfg.InitialScan))
	hashes := fs.String("hashes", strings.Join(cfg.HashAlgorithms, ","), "Comma-separated digests recorded for quarantined copies: md5, sha1, sha256, blake3, xxh64 (default: sha256).")
	fuzzyHash := fs.Bool("fuzzy-hash", cfg.FuzzyHash, fmt.Sprintf("Record a TLSH fuzzy hash of quarantined copies (default: %t).", cfg.FuzzyHash))
	minFreeBytes := fs.Uint64("min-free-bytes", cfg.MinFreeBytes, "Refuse quarantine copies when free space would drop below this many bytes (default: 0/off).")
	logLevel := fs.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := fs.String("config", "", "Path to JSON or YAML configuration file (default: none).")
	otelEndpoint := fs.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint for scan results (default: none).")
	otelFromEnv := fs.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := fs.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := fs.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: sentinel).")
	otelTimeout := fs.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := fs.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file paths in OTEL payloads (default: false).")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() { displayHelp(fs) }
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		fmt.Printf("Sentinel version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.WatchPath = *watchPath
		case "quarantine-dir":
			cfg.QuarantineDir = *quarantineDir
		case "log-file":
			cfg.LogFile = *logFile
		case "manifest":
			cfg.WriteManifest = *writeManifest
		case "manifest-file":
			cfg.ManifestFile = *manifestFile
		case "entropy-threshold":
			cfg.EntropyThreshold = *entropyThreshold
		case "ascii-ratio-threshold":
			cfg.ASCIIRatioThreshold = *asciiThreshold
		case "sample-size":
			cfg.SampleSize = *sampleSize
		case "keywords":
			cfg.Keywords = parseCommaSeparated(*keywords)
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
		case "queue-size":
			cfg.QueueSize = *queueSize
		case "max-scans-per-second":
			cfg.MaxScansPerSecond = *maxScans
		case "debounce":
			cfg.Debounce = *debounce
		case "scan-timeout":
			cfg.ScanTimeout = *scanTimeout
		case "content-read-mode":
			cfg.ContentReadMode = *contentReadMode
		case "mmap-min-size":
			cfg.MmapMinSize = *mmapMinSize
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "initial-scan":
			cfg.InitialScan = *initialScan
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "min-free-bytes":
			cfg.MinFreeBytes = *minFreeBytes
		case "log-level":
			cfg.LogLevel = *logLevel
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		}
	})

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func displayHelp(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "Sentinel - ransomware write detector")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  sentinel [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  sentinel --path /srv/share")
	fmt.Fprintln(out, "  sentinel --path /srv/share --initial-scan --concurrency 4 --debounce 250ms")
}

func (cfg *Config) normalize() {
	cfg.WatchPath = strings.TrimSpace(cfg.WatchPath)
	if cfg.WatchPath == "" {
		cfg.WatchPath = DefaultWatchPath
	}
	cfg.ContentReadMode = strings.ToLower(strings.TrimSpace(cfg.ContentReadMode))
	if cfg.ContentReadMode == "" {
		cfg.ContentReadMode = "auto"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	if len(cfg.HashAlgorithms) == 0 {
		cfg.HashAlgorithms = []string{"sha256"}
	}
	if cfg.QueueSize <= 0 && cfg.ConcurrencyLevel > 0 {
		cfg.QueueSize = cfg.ConcurrencyLevel * 4
	}
	if cfg.OtelServiceName == "" {
		cfg.OtelServiceName = "sentinel"
	}
	cfg.resolvePaths()
}

// resolvePaths fills artifact paths left empty relative to the watch path.
func (cfg *Config) resolvePaths() {
	if strings.TrimSpace(cfg.QuarantineDir) == "" {
		cfg.QuarantineDir = filepath.Join(cfg.WatchPath, DefaultQuarantineDir)
	}
	if strings.TrimSpace(cfg.LogFile) == "" {
		cfg.LogFile = filepath.Join(cfg.WatchPath, DefaultLogFile)
	}
	if cfg.WriteManifest && strings.TrimSpace(cfg.ManifestFile) == "" {
		cfg.ManifestFile = filepath.Join(cfg.WatchPath, DefaultManifestFile)
	}
	if !cfg.WriteManifest {
		cfg.ManifestFile = ""
	}
}

func (cfg *Config) loadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	}
	return nil
}

func (cfg *Config) validate() error {
	if cfg.EntropyThreshold < 0 || cfg.EntropyThreshold > 8 {
		return fmt.Errorf("entropy-threshold must be between 0 and 8")
	}
	if cfg.ASCIIRatioThreshold < 0 || cfg.ASCIIRatioThreshold > 1 {
		return fmt.Errorf("ascii-ratio-threshold must be between 0 and 1")
	}
	if cfg.SampleSize <= 0 || cfg.SampleSize > maxSampleSize {
		return fmt.Errorf("sample-size must be between 1 and %d", maxSampleSize)
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("queue-size must be zero or positive")
	}
	if cfg.MaxScansPerSecond < 0 {
		return fmt.Errorf("max-scans-per-second must be zero or positive")
	}
	if cfg.Debounce < 0 {
		return fmt.Errorf("debounce must be zero or positive")
	}
	if cfg.ScanTimeout < 0 {
		return fmt.Errorf("scan-timeout must be zero or positive")
	}
	if cfg.ContentReadMode != "stream" && cfg.ContentReadMode != "mmap" && cfg.ContentReadMode != "auto" {
		return fmt.Errorf("invalid content-read-mode value: %s", cfg.ContentReadMode)
	}
	if cfg.MmapMinSize < 0 {
		return fmt.Errorf("mmap-min-size must be zero or positive")
	}
	for _, algo := range cfg.HashAlgorithms {
		if !hasher.Supported(algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	return nil
}

// CheckWatchRoot verifies that the watched root exists and is a directory.
func (cfg *Config) CheckWatchRoot() error {
	info, err := os.Stat(cfg.WatchPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRoot, cfg.WatchPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, cfg.WatchPath)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(parts[1])
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		normalized = append(normalized, item)
	}
	return normalized
}
