package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/streamweft/go-demux-bridge/internal/demux"
)

// =============================================================================
// Top-Level Views
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderPassStatus())

	if m.snap != nil {
		sections = append(sections, m.renderSampleStats())
		sections = append(sections, m.renderPercentiles())

		if m.hasDrops() {
			sections = append(sections, m.renderDropStats())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the track table and recent warnings.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderPassStatus())
	sections = append(sections, m.renderTrackTable())
	sections = append(sections, m.renderWarnings())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-demux-bridge │ %s │ %s │ Pass %d/%d │ Elapsed: %s ",
		GetStatusLabel(m.pass.Status),
		GetSinkLabel(m.DropRate()),
		m.pass.Seq,
		m.totalPasses,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Pass Status
// =============================================================================

func (m Model) renderPassStatus() string {
	v := m.pass

	var settle string
	switch v.Status {
	case demux.StatusReady:
		settle = statusOK.Render(fmt.Sprintf(
			"✓ Settled: %d tracks, duration %s",
			len(v.Tracks), formatMediaDuration(v.Duration),
		))
	case demux.StatusFailed:
		msg := "unknown error"
		if v.Err != nil {
			msg = v.Err.Error()
		}
		settle = statusError.Render("✗ " + msg)
	case demux.StatusParsing:
		settle = statusInfo.Render("Parsing, queries will block until settlement...")
	default:
		settle = dimStyle.Render("Waiting for first pass")
	}

	rows := []string{
		sectionHeaderStyle.Render("Pass"),
		RenderKeyValue("Source", valueOrDash(v.Source)),
		RenderKeyValue("Content Type", valueOrDash(v.ContentType)),
		RenderKeyValue("Pass ID", shortID(v.PassID)),
		settle,
	}

	if v.Waiters > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Blocked Queries:"),
			valueWarnStyle.Render(fmt.Sprintf("%d", v.Waiters)),
		))
	}

	if m.totalPasses > 1 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Progress:"),
			RenderProgressBar(m.PassProgress(), 30),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Sample Statistics
// =============================================================================

func (m Model) renderSampleStats() string {
	s := m.snap

	byKind := fmt.Sprintf("video %s │ audio %s │ text %s",
		formatNumber(s.VideoSamples),
		formatNumber(s.AudioSamples),
		formatNumber(s.TextSamples),
	)

	rows := []string{
		sectionHeaderStyle.Render("Samples"),
		renderStatRow("Routed", formatNumber(s.SamplesRouted), formatRate(s.SampleRate1s)),
		renderStatRow("Delivered", formatNumber(s.SamplesDelivered), formatRate(s.InstantSampleRate)),
		renderStatRow("Bytes", formatBytes(s.BytesRouted), formatBytes(int64(s.Throughput1s))+"/s"),
		RenderKeyValue("By Kind", byKind),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// renderStatRow renders a label, a total, and a current rate.
func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(fmt.Sprintf("%-12s", value)),
		mutedStyle.Render(rate),
	)
}

// =============================================================================
// Percentiles
// =============================================================================

func (m Model) renderPercentiles() string {
	s := m.snap

	rows := []string{sectionHeaderStyle.Render("Percentiles")}

	if s.SamplesRouted == 0 {
		rows = append(rows, dimStyle.Render("No samples routed yet."))
	} else {
		rows = append(rows,
			tableHeaderStyle.Render(fmt.Sprintf("%-18s %10s %10s %10s", "", "P50", "P95", "P99")),
			fmt.Sprintf("%-18s %10s %10s %10s", "Sample size",
				formatBytes(int64(s.SizeP50)),
				formatBytes(int64(s.SizeP95)),
				formatBytes(int64(s.SizeP99)),
			),
			fmt.Sprintf("%-18s %10s %10s %10s", "Sample duration",
				formatMsFromDuration(s.DurationP50),
				formatMsFromDuration(s.DurationP95),
				formatMsFromDuration(s.DurationP99),
			),
		)

		if s.SettlementsReady+s.SettlementsFailed > 0 {
			rows = append(rows, fmt.Sprintf("%-18s %10s %10s %10s", "Settle latency",
				formatMsFromDuration(s.SettleLatencyP50),
				formatMsFromDuration(s.SettleLatencyP95),
				formatMsFromDuration(s.SettleLatencyP99),
			))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Drops and Errors
// =============================================================================

func (m Model) hasDrops() bool {
	s := m.snap
	if s == nil {
		return false
	}
	return s.DroppedOverflow > 0 || s.DroppedUnknown > 0 ||
		s.StreamErrors > 0 || s.SettlementsFailed > 0
}

func (m Model) renderDropStats() string {
	s := m.snap

	rows := []string{sectionHeaderStyle.Render("Drops & Errors")}

	if s.DroppedOverflow > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Sink Overflow:"),
			valueWarnStyle.Render(formatNumber(s.DroppedOverflow)),
		))
	}
	if s.DroppedUnknown > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Unknown Track:"),
			valueWarnStyle.Render(formatNumber(s.DroppedUnknown)),
		))
	}
	if s.StreamErrors > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Stream Errors:"),
			valueBadStyle.Render(formatNumber(s.StreamErrors)),
		))
	}
	if s.SettlementsFailed > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failed Passes:"),
			valueBadStyle.Render(formatNumber(s.SettlementsFailed)),
		))
	}

	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Drop Rate:"),
		GetDropRateStyle(s.DropRate()).Render(formatPercent(s.DropRate())),
	))

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Track Table
// =============================================================================

func (m Model) renderTrackTable() string {
	rows := []string{sectionHeaderStyle.Render("Tracks")}

	tracks := m.pass.Tracks
	if len(tracks) == 0 {
		rows = append(rows, dimStyle.Render("No settled tracks yet."))
		content := lipgloss.JoinVertical(lipgloss.Left, rows...)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	rows = append(rows, tableHeaderStyle.Render(
		fmt.Sprintf("%-6s %-7s %-14s %-5s %10s %10s %10s %10s",
			"ID", "Kind", "Codec", "Sink", "Routed", "Delivered", "Dropped", "Bytes"),
	))

	// Leave room for the other sections
	maxRows := m.height - 16
	if maxRows < 4 {
		maxRows = 4
	}

	for i, tr := range tracks {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(
				fmt.Sprintf("... and %d more tracks", len(tracks)-maxRows),
			))
			break
		}

		sink := "off"
		if tr.Enabled() {
			sink = "on"
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		rows = append(rows, rowStyle.Render(
			fmt.Sprintf("%-6d %-7s %-14s %-5s %10s %10s %10s %10s",
				tr.ID(),
				tr.Kind(),
				valueOrDash(tr.Descriptor().Codec),
				sink,
				formatNumber(tr.Routed()),
				formatNumber(tr.Delivered()),
				formatNumber(tr.Dropped()),
				formatBytes(tr.Bytes()),
			),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Warnings
// =============================================================================

func (m Model) renderWarnings() string {
	rows := []string{sectionHeaderStyle.Render("Recent Warnings")}

	if len(m.recent) == 0 {
		rows = append(rows, dimStyle.Render("No warnings."))
	}

	for _, w := range m.recent {
		line := fmt.Sprintf("%s %s", w.Time.Format("15:04:05"), w.Message)
		if w.Attrs != "" {
			line += " " + w.Attrs
		}

		// Truncate to fit inside the box
		maxLen := m.width - 6
		if len(line) > maxLen && maxLen > 10 {
			line = line[:maxLen-3] + "..."
		}

		style := statusWarning
		if w.Level >= slog.LevelError {
			style = statusError
		}
		rows = append(rows, style.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	// Keyboard shortcuts
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	right := "Source: " + m.source
	if m.metricsAddr != "" {
		right += "  Metrics: " + m.metricsAddr
	}

	// Truncate if needed
	maxRightLen := m.width - 60
	if len(right) > maxRightLen && maxRightLen > 10 {
		right = right[:maxRightLen-3] + "..."
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}

// =============================================================================
// Helpers
// =============================================================================

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// shortID abbreviates a pass ID for display.
func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatMediaDuration formats a container duration, which is negative until
// settlement reports one.
func formatMediaDuration(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}
	return d.Truncate(time.Millisecond).String()
}

func formatMsFromDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
