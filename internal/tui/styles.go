// Package tui provides a live terminal dashboard for the demux bridge.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays real-time state including:
// - Pass settlement status and blocked queries
// - Sample routing rates and throughput
// - Size and latency percentiles
// - The settled track table
// - Recently captured warnings
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/streamweft/go-demux-bridge/internal/demux"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	// Box/panel styles
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	// Section header style
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	// Footer style
	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	// Label styles
	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	labelWideStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(25)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Table Styles
// =============================================================================

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)
)

// =============================================================================
// Settlement Status Indicator
// =============================================================================

// GetStatusStyle returns the appropriate style for a pass status.
func GetStatusStyle(status demux.Status) lipgloss.Style {
	switch status {
	case demux.StatusReady:
		return statusOK
	case demux.StatusFailed:
		return statusError
	case demux.StatusParsing:
		return statusInfo
	default:
		return dimStyle
	}
}

// GetStatusLabel returns a styled pass status indicator.
func GetStatusLabel(status demux.Status) string {
	return GetStatusStyle(status).Render("● " + strings.ToUpper(status.String()))
}

// =============================================================================
// Sink Health Indicator
// =============================================================================

// SinkStatus represents the health of the track sinks.
type SinkStatus int

const (
	SinkStatusOK SinkStatus = iota
	SinkStatusLossy
	SinkStatusSeverelyLossy
)

// GetSinkStatus returns the status based on overflow drop rate.
func GetSinkStatus(dropRate float64) SinkStatus {
	switch {
	case dropRate > 0.10: // >10% dropped
		return SinkStatusSeverelyLossy
	case dropRate > 0.0: // Any drops
		return SinkStatusLossy
	default:
		return SinkStatusOK
	}
}

// GetSinkLabel returns a styled label based on overflow drop rate.
func GetSinkLabel(dropRate float64) string {
	status := GetSinkStatus(dropRate)

	label := "● Sinks"
	switch status {
	case SinkStatusSeverelyLossy:
		label = "● Sinks (dropping)"
	case SinkStatusLossy:
		label = "● Sinks (lossy)"
	}

	return GetSinkStyle(status).Render(label)
}

// GetSinkStyle returns the appropriate style for the sink status.
func GetSinkStyle(status SinkStatus) lipgloss.Style {
	switch status {
	case SinkStatusSeverelyLossy:
		return statusError
	case SinkStatusLossy:
		return statusWarning
	default:
		return statusOK
	}
}

// =============================================================================
// Drop Rate Indicator
// =============================================================================

// GetDropRateStyle returns a style based on sample drop rate.
func GetDropRateStyle(dropRate float64) lipgloss.Style {
	switch {
	case dropRate == 0:
		return valueGoodStyle
	case dropRate < 0.01: // <1%
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderKeyValueWide renders a label-value pair with wider label.
func RenderKeyValueWide(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
