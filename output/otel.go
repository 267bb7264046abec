package output

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"sentinel/config"
	"sentinel/logger"
	"sentinel/verdict"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const scanEventName = "sentinel.scan"

// ScanEvent is the exported view of one completed scan.
type ScanEvent struct {
	ScanID      string
	Record      AuditRecord
	Score       int
	Base64Like  bool
	KeywordHit  bool
	Quarantined bool
}

// OtelExporter ships scan events as OTLP log records. The audit log stays
// the durable record; export is best effort.
type OtelExporter struct {
	provider     *sdklog.LoggerProvider
	logger       otelLog.Logger
	timeout      time.Duration
	endpoint     string
	includePaths bool
}

// NewOtelExporter returns nil, nil when no endpoint is configured.
func NewOtelExporter(cfg *config.Config) (*OtelExporter, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}
	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)
	return &OtelExporter{
		provider:     provider,
		logger:       provider.Logger("sentinel"),
		timeout:      cfg.OtelTimeout,
		endpoint:     endpoint,
		includePaths: cfg.OtelExportPaths,
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *OtelExporter) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *OtelExporter) Emit(ev ScanEvent) {
	if o == nil || o.logger == nil {
		return
	}
	var record otelLog.Record
	record.SetTimestamp(ev.Record.Timestamp)
	record.SetObservedTimestamp(time.Now())
	record.SetEventName(scanEventName)
	severity, text := scanSeverity(ev.Record.Status)
	record.SetSeverity(severity)
	record.SetSeverityText(text)
	record.SetBody(otelLog.StringValue(ev.Record.Status.String()))
	record.AddAttributes(scanAttributes(ev, o.includePaths)...)
	o.logger.Emit(context.Background(), record)
}

func scanSeverity(status verdict.Status) (otelLog.Severity, string) {
	if status == verdict.Suspicious {
		return otelLog.SeverityWarn, "WARN"
	}
	return otelLog.SeverityInfo, "INFO"
}

func scanAttributes(ev ScanEvent, includePaths bool) []otelLog.KeyValue {
	attrs := []otelLog.KeyValue{
		otelLog.String("scan_id", ev.ScanID),
		otelLog.String("status", ev.Record.Status.String()),
		otelLog.Float64("entropy", ev.Record.Entropy),
		otelLog.Float64("ascii_ratio", ev.Record.ASCIIRatio),
		otelLog.Bool("base64_like", ev.Base64Like),
		otelLog.Bool("keyword_hit", ev.KeywordHit),
		otelLog.Int("score", ev.Score),
		otelLog.Bool("quarantined", ev.Quarantined),
	}
	if includePaths {
		attrs = append(attrs, otelLog.String("file.path", ev.Record.Path))
	}
	return attrs
}

func (o *OtelExporter) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}
