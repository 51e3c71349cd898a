package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// applyEnv overlays DEMUX_* environment variables onto cfg. A .env file
// in the working directory is loaded first when present; variables
// already set in the real environment win over .env entries.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.Input, "DEMUX_INPUT")
	setString(&cfg.ContentType, "DEMUX_CONTENT_TYPE")
	setString(&cfg.MetricsAddr, "DEMUX_METRICS_ADDR")
	setString(&cfg.MetricsDump, "DEMUX_METRICS_DUMP")
	setString(&cfg.LogFormat, "DEMUX_LOG_FORMAT")
	setString(&cfg.LogLevel, "DEMUX_LOG_LEVEL")

	setInt(&cfg.SinkDepth, "DEMUX_SINK_DEPTH")
	setInt(&cfg.QueueDepth, "DEMUX_QUEUE_DEPTH")
	setInt(&cfg.Workers, "DEMUX_WORKERS")
	setInt(&cfg.Passes, "DEMUX_PASSES")

	setDuration(&cfg.SettleTimeout, "DEMUX_SETTLE_TIMEOUT")
	setDuration(&cfg.RunTimeout, "DEMUX_RUN_TIMEOUT")

	setBool(&cfg.TUIEnabled, "DEMUX_TUI")
	setBool(&cfg.Verbose, "DEMUX_VERBOSE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
