package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sentinel/config"
	"sentinel/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Initialize configuration
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)

	if err := cfg.CheckWatchRoot(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	a, err := newApp(cfg)
	if err != nil {
		logger.Errorf("Failed to initialize: %v", err)
		return 1
	}
	defer a.Close()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := a.Run(ctx); err != nil {
		logger.Errorf("Monitoring failed: %v", err)
		return 1
	}
	logger.Info("Monitoring stopped.")
	return 0
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	handleSignalEvent(cancelFunc, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	sig := <-sigChan
	logger.Infof("Signal %v received. Shutting down...", sig)
	cancelFunc()
}
