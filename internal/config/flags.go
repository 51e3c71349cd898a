package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
// Environment variables (DEMUX_*) are applied first; explicit flags win.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()
	applyEnv(cfg)

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-demux-bridge - container demultiplexing with blocking duration/track queries

Usage:
  go-demux-bridge [flags] <INPUT>

Input Flags:
`)
		// Print flags by category
		printFlagCategory([]string{"content-type"})

		fmt.Fprintf(os.Stderr, "\nDemux:\n")
		printFlagCategory([]string{"sink-depth", "queue-depth", "workers", "passes"})

		fmt.Fprintf(os.Stderr, "\nTimeouts:\n")
		printFlagCategory([]string{"settle-timeout", "run-timeout"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "metrics-dump", "v", "log-format", "log-level"})

		fmt.Fprintf(os.Stderr, "\nDashboard:\n")
		printFlagCategory([]string{"tui"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"check", "skip-preflight"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Demux a WebM file and print its duration and tracks
  go-demux-bridge testdata/clip.webm

  # Audio-only WAV with the live dashboard
  go-demux-bridge -tui recording.wav

  # Three sequential passes, metrics dumped at exit
  go-demux-bridge -passes 3 -metrics-dump run.prom clip.webm

`)
	}

	// Input
	flag.StringVar(&cfg.ContentType, "content-type", cfg.ContentType, `Container MIME type (e.g. "video/webm"); empty = sniff`)

	// Demux
	flag.IntVar(&cfg.SinkDepth, "sink-depth", cfg.SinkDepth, "Sample buffer depth per enabled track (increase if seeing drops)")
	flag.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "Control queue depth")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker pool size")
	flag.IntVar(&cfg.Passes, "passes", cfg.Passes, "Number of sequential parse passes over the input")

	// Timeouts
	flag.DurationVar(&cfg.SettleTimeout, "settle-timeout", cfg.SettleTimeout, "Max wait for duration/track queries to settle")
	flag.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "Max wall time for the whole run (0 = no limit)")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write metrics in text exposition format to this file at exit")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Dashboard
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Safety & Diagnostics (double-dash convention)
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, settle one pass, and exit")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Parse
	flag.Parse()

	// Positional argument: input file
	args := flag.Args()
	if len(args) >= 1 {
		cfg.Input = args[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
