package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Input file is required
	if cfg.Input == "" {
		errs = append(errs, ValidationError{
			Field:   "input",
			Message: "input file is required",
		})
	}

	// Content type, when forced, must at least look like a MIME type.
	// Whether a parser is registered for it is a preflight concern.
	if cfg.ContentType != "" && !strings.Contains(cfg.ContentType, "/") {
		errs = append(errs, ValidationError{
			Field:   "content_type",
			Message: fmt.Sprintf("must be a MIME type like video/webm (got %q)", cfg.ContentType),
		})
	}

	// Sink depth must be positive
	if cfg.SinkDepth < 1 {
		errs = append(errs, ValidationError{
			Field:   "sink_depth",
			Message: "must be at least 1",
		})
	}

	// Queue depth must be positive
	if cfg.QueueDepth < 1 {
		errs = append(errs, ValidationError{
			Field:   "queue_depth",
			Message: "must be at least 1",
		})
	}

	// Workers must be positive
	if cfg.Workers < 1 {
		errs = append(errs, ValidationError{
			Field:   "workers",
			Message: "must be at least 1",
		})
	}

	// Passes must be positive
	if cfg.Passes < 1 {
		errs = append(errs, ValidationError{
			Field:   "passes",
			Message: "must be at least 1",
		})
	}

	// Settle timeout must be positive
	if cfg.SettleTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "settle_timeout",
			Message: "must be positive",
		})
	}

	// Run timeout may be zero (no limit) but never negative
	if cfg.RunTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "run_timeout",
			Message: "must not be negative",
		})
	}

	// A run timeout shorter than the settle timeout would cut queries off
	if cfg.RunTimeout > 0 && cfg.RunTimeout < cfg.SettleTimeout {
		errs = append(errs, ValidationError{
			Field:   "run_timeout",
			Message: fmt.Sprintf("must be at least the settle timeout (%v)", cfg.SettleTimeout),
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ApplyCheckMode modifies config for --check mode: settle a single pass
// verbosely, no dashboard.
func ApplyCheckMode(cfg *Config) {
	cfg.Passes = 1
	cfg.TUIEnabled = false
	cfg.Verbose = true
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = cfg.SettleTimeout
	}
}
