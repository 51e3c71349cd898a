package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/streamweft/go-demux-bridge/internal/demux"
	"github.com/streamweft/go-demux-bridge/internal/logging"
	"github.com/streamweft/go-demux-bridge/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// SnapshotMsg carries updated statistics pushed by the orchestrator. The
// orchestrator owns the Snapshot() call so instantaneous rates are computed
// against a single, steady cadence.
type SnapshotMsg struct {
	Snapshot *stats.Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// maxWarningRows bounds the warnings pane in the detailed view.
const maxWarningRows = 8

// =============================================================================
// Sources
// =============================================================================

// ReaderSource provides a non-blocking view of the current pass.
// Satisfied by *demux.Reader.
type ReaderSource interface {
	View() demux.PassView
}

// WarningSource provides recently captured log warnings.
// Satisfied by *logging.CaptureHandler.
type WarningSource interface {
	Recent(n int) []logging.CapturedRecord
}

// =============================================================================
// Model
// =============================================================================

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	// Configuration
	source      string
	metricsAddr string
	totalPasses int

	// Sources polled on each tick
	reader   ReaderSource
	warnings WarningSource

	// Current state
	pass       demux.PassView
	snap       *stats.Snapshot
	recent     []logging.CapturedRecord
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	detailedView bool
	width        int
	height       int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	// Source is the input being demultiplexed, shown in the footer.
	Source string

	// MetricsAddr is the Prometheus listen address, shown in the footer.
	// Empty when the metrics server is disabled.
	MetricsAddr string

	// TotalPasses is the number of passes the run will perform.
	TotalPasses int

	// Reader supplies the pass view. Required.
	Reader ReaderSource

	// Warnings supplies captured log records for the detailed view.
	// Optional; the warnings pane is empty when nil.
	Warnings WarningSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	totalPasses := cfg.TotalPasses
	if totalPasses < 1 {
		totalPasses = 1
	}

	return Model{
		source:      cfg.Source,
		metricsAddr: cfg.MetricsAddr,
		totalPasses: totalPasses,
		reader:      cfg.Reader,
		warnings:    cfg.Warnings,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80, // Default, updated by WindowSizeMsg
		height:      24,
	}
}

// Init starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a TickMsg after a delay.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.reader != nil {
			m.pass = m.reader.View()
		}
		if m.warnings != nil {
			m.recent = m.warnings.Recent(maxWarningRows)
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the current state.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the TUI started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// DropRate returns the fraction of routed samples that were dropped.
func (m Model) DropRate() float64 {
	if m.snap == nil {
		return 0
	}
	return m.snap.DropRate()
}

// PassProgress returns the fraction of passes started so far.
func (m Model) PassProgress() float64 {
	if m.totalPasses == 0 {
		return 0
	}
	progress := float64(m.pass.Seq) / float64(m.totalPasses)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// DetailedView returns whether the detailed view is active.
func (m Model) DetailedView() bool {
	return m.detailedView
}

// =============================================================================
// Program Helpers
// =============================================================================

// SendSnapshot delivers a statistics snapshot to a running program.
func SendSnapshot(p *tea.Program, snap *stats.Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: snap})
	}
}

// SendQuit tells a running program to exit.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	min := d / time.Minute
	d -= min * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, min, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// formatBytes formats bytes in human-readable form.
func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatRate formats a per-second rate.
func formatRate(rate float64) string {
	switch {
	case rate >= 1_000_000:
		return fmt.Sprintf("%.2fM/s", rate/1_000_000)
	case rate >= 1_000:
		return fmt.Sprintf("%.2fK/s", rate/1_000)
	default:
		return fmt.Sprintf("%.1f/s", rate)
	}
}

// formatPercent formats a ratio as a percentage.
func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
