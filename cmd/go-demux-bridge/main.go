// Package main provides the go-demux-bridge CLI entry point.
//
// go-demux-bridge parses a media container asynchronously and bridges the
// result onto synchronous queries: container duration, the settled track
// list, and per-track sample sinks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/streamweft/go-demux-bridge/internal/config"
	"github.com/streamweft/go-demux-bridge/internal/logging"
	"github.com/streamweft/go-demux-bridge/internal/orchestrator"
	"github.com/streamweft/go-demux-bridge/internal/parser"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-demux-bridge
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-demux-bridge %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger.
	// When the dashboard owns the terminal, discard log output but keep
	// capturing warnings for its warnings pane.
	var logger *slog.Logger
	var capture *logging.CaptureHandler
	if cfg.TUIEnabled {
		logger, capture = logging.NewCaptureLogger(io.Discard, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled",
			"passes", cfg.Passes,
			"run_timeout", cfg.RunTimeout.String())
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"input", cfg.Input,
		"content_type", cfg.ContentType,
		"passes", cfg.Passes,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Print startup banner
	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Create and run orchestrator
	orch := orchestrator.New(cfg, logger, capture)
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("run_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "(sniffed)"
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         go-demux-bridge                            ║")
	fmt.Println("║        Container Demultiplexing with Blocking Queries              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Input:       %s\n", cfg.Input)
	fmt.Printf("  Container:   %s\n", contentType)
	fmt.Printf("  Passes:      %d\n", cfg.Passes)
	fmt.Printf("  Formats:     %s\n", strings.Join(parser.Registered(), ", "))
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
