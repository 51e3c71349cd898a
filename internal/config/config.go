// Package config provides configuration management for go-demux-bridge.
package config

import "time"

// Config holds all configuration options for the bridge.
type Config struct {
	// Input
	Input       string `json:"input"`
	ContentType string `json:"content_type"` // empty = sniff from leading bytes

	// Demux
	SinkDepth  int `json:"sink_depth"`
	QueueDepth int `json:"queue_depth"`
	Workers    int `json:"workers"`
	Passes     int `json:"passes"`

	// Timeouts
	SettleTimeout time.Duration `json:"settle_timeout"`
	RunTimeout    time.Duration `json:"run_timeout"` // 0 = no limit

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	MetricsDump string `json:"metrics_dump"` // file path, empty = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Demux
		SinkDepth:  256,
		QueueDepth: 64,
		Workers:    4,
		Passes:     1,

		// Timeouts
		SettleTimeout: 30 * time.Second,
		RunTimeout:    0, // No limit

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",

		// Dashboard
		TUIEnabled: false,
	}
}
