// Package stats provides run-wide accounting for demux passes.
//
// This file implements the exit summary formatter which displays the run's
// totals at program exit.
package stats

import (
	"fmt"
	"strings"
	"time"
)

// TrackLine is one row of the exit summary's track table.
type TrackLine struct {
	ID        uint64
	Kind      string
	Codec     string
	Enabled   bool
	Routed    int64
	Delivered int64
	Dropped   int64
	Bytes     int64
}

// SummaryConfig holds run facts the Tracker does not know about.
type SummaryConfig struct {
	// Source is the byte source the run read.
	Source string

	// ContentType is the resolved container type.
	ContentType string

	// Duration is the total run duration.
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address, if serving.
	MetricsAddr string

	// FinalStatus is the settlement status of the last pass.
	FinalStatus string

	// ContainerDuration is the duration the last settlement reported.
	ContainerDuration time.Duration

	// Tracks are the settled tracks of the last pass.
	Tracks []TrackLine
}

// FormatExitSummary formats a tracker snapshot for display at program exit.
func FormatExitSummary(snap *Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                          go-demux-bridge Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	if snap == nil {
		fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
		fmt.Fprintf(&b, "Source:                 %s\n", cfg.Source)
		b.WriteString("\nNo passes recorded.\n")
		return b.String()
	}

	// Sink overflow warning (sinks are lossy when consumers lag)
	if snap.DroppedOverflow > 0 {
		b.WriteString("⚠️  SAMPLES DROPPED: consumers could not keep up with the parse\n")
		fmt.Fprintf(&b, "    Sink overflow: %s of %s routed (%.2f%%)\n",
			FormatNumber(snap.DroppedOverflow),
			FormatNumber(snap.SamplesRouted),
			snap.DropRate()*100,
		)
		b.WriteString("    Consider: --sink-depth 1024 or a faster consumer\n\n")
	}

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Source:                 %s\n", cfg.Source)
	fmt.Fprintf(&b, "Content Type:           %s\n", cfg.ContentType)
	fmt.Fprintf(&b, "Final Status:           %s\n", cfg.FinalStatus)
	if cfg.ContainerDuration > 0 {
		fmt.Fprintf(&b, "Container Duration:     %s\n", cfg.ContainerDuration)
	}
	fmt.Fprintf(&b, "Passes:                 %d started, %d finished\n",
		snap.PassesStarted, snap.PassesFinished)
	fmt.Fprintf(&b, "Settlements:            %d ready, %d failed\n\n",
		snap.SettlementsReady, snap.SettlementsFailed)

	// Sample statistics
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Sample Statistics\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  %-14s %12s %12s\n", "Kind", "Samples", "Bytes")
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")
	fmt.Fprintf(&b, "  %-14s %12s %12s\n", "Video",
		FormatNumber(snap.VideoSamples), FormatBytes(snap.VideoBytes))
	fmt.Fprintf(&b, "  %-14s %12s %12s\n", "Audio",
		FormatNumber(snap.AudioSamples), FormatBytes(snap.AudioBytes))
	fmt.Fprintf(&b, "  %-14s %12s %12s\n", "Text",
		FormatNumber(snap.TextSamples), FormatBytes(snap.TextBytes))
	b.WriteString("  " + strings.Repeat("─", 40) + "\n")
	fmt.Fprintf(&b, "  %-14s %12s %12s\n\n", "Total",
		FormatNumber(snap.SamplesRouted), FormatBytes(snap.BytesRouted))

	fmt.Fprintf(&b, "  Delivered:        %s\n", FormatNumber(snap.SamplesDelivered))
	fmt.Fprintf(&b, "  Discarded:        %s  (disabled tracks)\n", FormatNumber(snap.SamplesDiscarded))
	fmt.Fprintf(&b, "  Sink overflow:    %s\n", FormatNumber(snap.DroppedOverflow))
	fmt.Fprintf(&b, "  Unknown track:    %s\n\n", FormatNumber(snap.DroppedUnknown))

	fmt.Fprintf(&b, "  Sample rate:      %s (avg over run)\n", FormatRate(snap.SampleRateOverall))
	fmt.Fprintf(&b, "  Throughput:       %s/s (avg over run)\n\n", FormatBytes(int64(snap.ThroughputOverall)))

	// Percentiles
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                 Percentiles\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  %-22s %10s %10s %10s\n", "", "P50", "P95", "P99")
	b.WriteString("  " + strings.Repeat("─", 56) + "\n")
	fmt.Fprintf(&b, "  %-22s %10s %10s %10s\n", "Sample size",
		FormatBytes(int64(snap.SizeP50)),
		FormatBytes(int64(snap.SizeP95)),
		FormatBytes(int64(snap.SizeP99)))
	fmt.Fprintf(&b, "  %-22s %10s %10s %10s\n", "Sample duration",
		FormatMs(snap.DurationP50),
		FormatMs(snap.DurationP95),
		FormatMs(snap.DurationP99))
	fmt.Fprintf(&b, "  %-22s %10s %10s %10s\n\n", "Settlement latency",
		FormatMs(snap.SettleLatencyP50),
		FormatMs(snap.SettleLatencyP95),
		FormatMs(snap.SettleLatencyP99))

	// Track table
	if len(cfg.Tracks) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                   Tracks\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-4s %-7s %-14s %-8s %10s %10s %8s %10s\n",
			"ID", "Kind", "Codec", "Sink", "Routed", "Delivered", "Dropped", "Bytes")
		b.WriteString("  " + strings.Repeat("─", 77) + "\n")
		for _, tr := range cfg.Tracks {
			sink := "off"
			if tr.Enabled {
				sink = "on"
			}
			fmt.Fprintf(&b, "  %-4d %-7s %-14s %-8s %10s %10s %8s %10s\n",
				tr.ID, tr.Kind, tr.Codec, sink,
				FormatNumber(tr.Routed),
				FormatNumber(tr.Delivered),
				FormatNumber(tr.Dropped),
				FormatBytes(tr.Bytes))
		}
		b.WriteString("\n")
	}

	// Errors
	if snap.StreamErrors > 0 || snap.SettlementsFailed > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                   Errors\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
		fmt.Fprintf(&b, "  Failed settlements:  %d\n", snap.SettlementsFailed)
		fmt.Fprintf(&b, "  Stream errors:       %d  (after settlement)\n\n", snap.StreamErrors)
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics were served on %s/metrics\n", cfg.MetricsAddr)
	}

	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
