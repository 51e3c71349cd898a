// Package metrics provides Prometheus metrics for go-demux-bridge.
//
// All metrics are aggregate: pass lifecycle, settlement latency, sample
// routing by kind and outcome, and windowed rates fed from the stats
// tracker. Per-track series are deliberately absent to keep cardinality
// flat no matter what a container holds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamweft/go-demux-bridge/internal/stats"
)

// =============================================================================
// Panel 1: Bridge Overview
// =============================================================================

var (
	demuxInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "demux_bridge_info",
			Help: "Information about the demux run (value always 1)",
		},
		[]string{"source", "content_type"},
	)

	demuxStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_status",
			Help: "Settlement status of the current pass (0=idle 1=parsing 2=ready 3=failed)",
		},
	)

	demuxUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_uptime_seconds",
			Help: "Seconds since the bridge started",
		},
	)

	demuxBlockedQueries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_blocked_queries",
			Help: "Queries currently blocked waiting for settlement",
		},
	)

	demuxTracksSettled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_tracks_settled",
			Help: "Track count of the latest settlement",
		},
	)
)

// =============================================================================
// Panel 2: Pass Lifecycle
// =============================================================================

var (
	demuxPassesStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "demux_bridge_passes_started_total",
			Help: "Total parse passes started",
		},
	)

	demuxPassesFinishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "demux_bridge_passes_finished_total",
			Help: "Total parse passes that ran to completion",
		},
	)

	demuxSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demux_bridge_settlements_total",
			Help: "Total settlements by outcome status",
		},
		[]string{"status"}, // "ready" | "failed"
	)

	demuxSettleLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demux_bridge_settle_latency_seconds",
			Help:    "Time from pass start to settlement",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	demuxPassElapsedSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demux_bridge_pass_elapsed_seconds",
			Help:    "Wall time of a full pass, start to finish",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

// =============================================================================
// Panel 3: Sample Routing
// =============================================================================

var (
	demuxSamplesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demux_bridge_samples_routed_total",
			Help: "Samples routed to settled tracks, by kind and delivery outcome",
		},
		[]string{"kind", "outcome"}, // kind: video|audio|text, outcome: delivered|discarded|overflow
	)

	demuxSamplesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demux_bridge_samples_dropped_total",
			Help: "Samples dropped before reaching a sink",
		},
		[]string{"reason"}, // "unknown_track" | "sink_overflow"
	)

	demuxBytesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demux_bridge_bytes_routed_total",
			Help: "Payload bytes routed, by track kind",
		},
		[]string{"kind"},
	)

	demuxSampleSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demux_bridge_sample_size_bytes",
			Help:    "Payload size of routed samples",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B .. ~16MB
		},
	)
)

// =============================================================================
// Panel 4: Rates (fed from the stats tracker)
// =============================================================================

var (
	demuxSampleRatePerSec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "demux_bridge_sample_rate_per_second",
			Help: "Rolling sample rate by window",
		},
		[]string{"window"}, // "1s" | "10s" | "60s"
	)

	demuxThroughputBytesPerSec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "demux_bridge_throughput_bytes_per_second",
			Help: "Rolling payload throughput by window",
		},
		[]string{"window"},
	)
)

// =============================================================================
// Panel 5: Errors
// =============================================================================

var (
	demuxStreamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "demux_bridge_stream_errors_total",
			Help: "Byte source failures after settlement",
		},
	)
)

// =============================================================================
// Panel 6: Percentiles (fed from the stats tracker's digests)
// =============================================================================

var (
	demuxSampleSizeP50Bytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_sample_size_p50_bytes",
			Help: "Sample size 50th percentile",
		},
	)

	demuxSampleSizeP99Bytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_sample_size_p99_bytes",
			Help: "Sample size 99th percentile",
		},
	)

	demuxSettleLatencyP50Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_settle_latency_p50_seconds",
			Help: "Settlement latency 50th percentile",
		},
	)

	demuxSettleLatencyP99Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "demux_bridge_settle_latency_p99_seconds",
			Help: "Settlement latency 99th percentile",
		},
	)
)

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for the bridge.
type Collector struct {
	source      string
	contentType string
	startTime   time.Time
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Source      string
	ContentType string
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		source:      cfg.Source,
		contentType: cfg.ContentType,
		startTime:   time.Now(),
	}

	registry.MustRegister(
		// Panel 1: Bridge Overview
		demuxInfo,
		demuxStatus,
		demuxUptimeSeconds,
		demuxBlockedQueries,
		demuxTracksSettled,

		// Panel 2: Pass Lifecycle
		demuxPassesStartedTotal,
		demuxPassesFinishedTotal,
		demuxSettlementsTotal,
		demuxSettleLatencySeconds,
		demuxPassElapsedSeconds,

		// Panel 3: Sample Routing
		demuxSamplesRoutedTotal,
		demuxSamplesDroppedTotal,
		demuxBytesRoutedTotal,
		demuxSampleSizeBytes,

		// Panel 4: Rates
		demuxSampleRatePerSec,
		demuxThroughputBytesPerSec,

		// Panel 5: Errors
		demuxStreamErrorsTotal,

		// Panel 6: Percentiles
		demuxSampleSizeP50Bytes,
		demuxSampleSizeP99Bytes,
		demuxSettleLatencyP50Seconds,
		demuxSettleLatencyP99Seconds,
	)

	if cfg.Source != "" || cfg.ContentType != "" {
		demuxInfo.WithLabelValues(cfg.Source, cfg.ContentType).Set(1)
	}

	return c
}

// SetInfo records the resolved source and content type once sniffing is
// done.
func (c *Collector) SetInfo(source, contentType string) {
	demuxInfo.Reset()
	demuxInfo.WithLabelValues(source, contentType).Set(1)
}

// SetStatus publishes the settlement status code of the current pass.
func (c *Collector) SetStatus(code int) {
	demuxStatus.Set(float64(code))
}

// PassStarted counts a pass beginning.
func (c *Collector) PassStarted() {
	demuxPassesStartedTotal.Inc()
}

// PassSettled records a settlement and its latency.
func (c *Collector) PassSettled(status string, latency time.Duration) {
	demuxSettlementsTotal.WithLabelValues(status).Inc()
	demuxSettleLatencySeconds.Observe(latency.Seconds())
}

// PassFinished counts a pass running to completion.
func (c *Collector) PassFinished(elapsed time.Duration) {
	demuxPassesFinishedTotal.Inc()
	demuxPassElapsedSeconds.Observe(elapsed.Seconds())
}

// SampleRouted records one routed sample.
func (c *Collector) SampleRouted(kind string, size int, outcome stats.Outcome) {
	demuxSamplesRoutedTotal.WithLabelValues(kind, outcome.String()).Inc()
	demuxBytesRoutedTotal.WithLabelValues(kind).Add(float64(size))
	demuxSampleSizeBytes.Observe(float64(size))

	if outcome == stats.OutcomeOverflow {
		demuxSamplesDroppedTotal.WithLabelValues("sink_overflow").Inc()
	}
}

// SampleDropped records a sample that never reached a track.
func (c *Collector) SampleDropped(reason string) {
	demuxSamplesDroppedTotal.WithLabelValues(reason).Inc()
}

// WaiterStarted counts a query blocking on settlement.
func (c *Collector) WaiterStarted() {
	demuxBlockedQueries.Inc()
}

// WaiterDone counts a blocked query returning.
func (c *Collector) WaiterDone() {
	demuxBlockedQueries.Dec()
}

// StreamError counts a byte source failure after settlement.
func (c *Collector) StreamError() {
	demuxStreamErrorsTotal.Inc()
}

// RecordSnapshot publishes gauge values from a tracker snapshot.
// Call periodically (e.g., every 1 second alongside Tracker.Tick).
func (c *Collector) RecordSnapshot(snap *stats.Snapshot) {
	if snap == nil {
		return
	}

	demuxUptimeSeconds.Set(time.Since(c.startTime).Seconds())
	demuxTracksSettled.Set(float64(snap.LastTrackCount))

	demuxSampleRatePerSec.WithLabelValues("1s").Set(snap.SampleRate1s)
	demuxSampleRatePerSec.WithLabelValues("10s").Set(snap.SampleRate10s)
	demuxSampleRatePerSec.WithLabelValues("60s").Set(snap.SampleRate60s)

	demuxThroughputBytesPerSec.WithLabelValues("1s").Set(snap.Throughput1s)
	demuxThroughputBytesPerSec.WithLabelValues("10s").Set(snap.Throughput10s)
	demuxThroughputBytesPerSec.WithLabelValues("60s").Set(snap.Throughput60s)

	demuxSampleSizeP50Bytes.Set(snap.SizeP50)
	demuxSampleSizeP99Bytes.Set(snap.SizeP99)
	demuxSettleLatencyP50Seconds.Set(snap.SettleLatencyP50.Seconds())
	demuxSettleLatencyP99Seconds.Set(snap.SettleLatencyP99.Seconds())
}
