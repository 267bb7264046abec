package main

import (
	"context"
	"errors"
	"fmt"

	"sentinel/config"
	"sentinel/logger"
	"sentinel/output"
	"sentinel/quarantine"
	"sentinel/scanner"
	"sentinel/watcher"
)

// app owns the sinks and wires the scanner to the watcher.
type app struct {
	cfg      *config.Config
	audit    *output.AuditLog
	manifest *output.Manifest
	exporter *output.OtelExporter
	scanner  *scanner.Scanner
	watcher  *watcher.Watcher
}

func newApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := quarantine.New(cfg.QuarantineDir, quarantine.Options{
		HashAlgorithms: cfg.HashAlgorithms,
		FuzzyHash:      cfg.FuzzyHash,
		MinFreeBytes:   cfg.MinFreeBytes,
	})
	if err != nil {
		return nil, err
	}
	a.audit, err = output.OpenAuditLog(cfg.LogFile)
	if err != nil {
		return nil, err
	}

	var opts []scanner.Option
	if cfg.ManifestFile != "" {
		a.manifest, err = output.OpenManifest(cfg.ManifestFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scanner.WithManifest(a.manifest))
	}
	a.exporter, err = output.NewOtelExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	if a.exporter != nil {
		logger.Infof("Exporting scan events to %s", a.exporter.Endpoint())
		opts = append(opts, scanner.WithEvents(a.exporter))
	}

	a.scanner = scanner.New(cfg, a.audit, store, opts...)
	a.watcher, err = watcher.New(cfg.WatchPath, a.handle, watcher.OptionsFromConfig(cfg, a.scanner.Filter()))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) handle(ctx context.Context, path string) {
	if _, err := a.scanner.ScanFile(ctx, path); err != nil && !errors.Is(err, scanner.ErrExcluded) {
		logger.Debugf("Scan of %s ended with errors: %v", path, err)
	}
}

// Run watches until ctx ends. The optional initial sweep runs once the
// watches are in place, so nothing written meanwhile is missed.
func (a *app) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- a.watcher.Run(ctx) }()

	select {
	case <-a.watcher.Ready():
	case err := <-done:
		return err
	}
	fmt.Printf("Monitoring started: %s\n", a.cfg.WatchPath)

	if a.cfg.InitialScan {
		if _, err := a.scanner.Baseline(ctx, a.cfg.WatchPath); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("Initial scan incomplete: %v", err)
		}
	}
	return <-done
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.scanner != nil {
		stats := a.scanner.Stats()
		logger.WithFields(logger.Fields{
			"scanned":     stats.Scanned,
			"suspicious":  stats.Suspicious,
			"read_errors": stats.ReadErrors,
			"sink_errors": stats.SinkErrors,
		}).Info("Scan totals")
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			logger.Warnf("Failed to close audit log: %v", err)
		}
	}
	if a.manifest != nil {
		if err := a.manifest.Close(); err != nil {
			logger.Warnf("Failed to close manifest: %v", err)
		}
	}
	a.exporter.Shutdown()
}
