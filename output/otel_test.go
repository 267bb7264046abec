package output

import (
	"testing"
	"time"

	"sentinel/config"
	"sentinel/verdict"

	otelLog "go.opentelemetry.io/otel/log"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://explicit.example.test" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://logs.example.test/v1/logs" {
		t.Fatalf("expected logs env endpoint, got %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	if got := resolveOtelEndpoint(cfg); got != "https://fallback.example.test" {
		t.Fatalf("expected fallback env endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: false}
	if got := resolveOtelEndpoint(cfg); got != "" {
		t.Fatalf("expected empty endpoint when env fallback disabled, got %q", got)
	}
}

func TestNewOtelExporterDisabledAndInvalid(t *testing.T) {
	exp, err := NewOtelExporter(&config.Config{})
	if err != nil || exp != nil {
		t.Fatalf("expected disabled exporter, got %v, %v", exp, err)
	}
	// nil exporter is safe to use
	exp.Emit(ScanEvent{})
	exp.Shutdown()
	if exp.Endpoint() != "" {
		t.Fatal("nil exporter should report no endpoint")
	}

	if _, err := NewOtelExporter(&config.Config{OtelEndpoint: "collector:4318"}); err == nil {
		t.Fatal("expected scheme validation error")
	}
}

func TestNewOtelExporterEndpoint(t *testing.T) {
	cfg := &config.Config{
		OtelEndpoint:    "http://127.0.0.1:1/v1/logs",
		OtelServiceName: "sentinel-test",
		OtelTimeout:     100 * time.Millisecond,
	}
	exp, err := NewOtelExporter(cfg)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if exp.Endpoint() != cfg.OtelEndpoint {
		t.Fatalf("unexpected endpoint %q", exp.Endpoint())
	}
	exp.Emit(ScanEvent{ScanID: "s", Record: AuditRecord{Timestamp: time.Now(), Status: verdict.Clean}})
	exp.Shutdown()
}

func TestScanAttributes(t *testing.T) {
	ev := ScanEvent{
		ScanID:      "abc",
		Record:      AuditRecord{Path: "/srv/share/x.bin", Status: verdict.Suspicious, Entropy: 7.9, ASCIIRatio: 0.3},
		Score:       3,
		KeywordHit:  true,
		Quarantined: true,
	}
	attrs := scanAttributes(ev, false)
	if _, ok := findAttr(attrs, "file.path"); ok {
		t.Fatal("path must be omitted unless enabled")
	}
	if v, ok := findAttr(attrs, "status"); !ok || v.AsString() != "suspicious" {
		t.Fatalf("unexpected status attr: %v", v)
	}
	if v, ok := findAttr(attrs, "score"); !ok || v.AsInt64() != 3 {
		t.Fatalf("unexpected score attr: %v", v)
	}
	if v, ok := findAttr(attrs, "quarantined"); !ok || !v.AsBool() {
		t.Fatalf("unexpected quarantined attr: %v", v)
	}

	attrs = scanAttributes(ev, true)
	if v, ok := findAttr(attrs, "file.path"); !ok || v.AsString() != "/srv/share/x.bin" {
		t.Fatalf("expected path attr, got %v", v)
	}
}

func TestScanSeverity(t *testing.T) {
	if sev, _ := scanSeverity(verdict.Suspicious); sev != otelLog.SeverityWarn {
		t.Fatalf("suspicious should be warn, got %v", sev)
	}
	if sev, _ := scanSeverity(verdict.Clean); sev != otelLog.SeverityInfo {
		t.Fatalf("clean should be info, got %v", sev)
	}
}
