// Package orchestrator wires the demux bridge's components into a run:
// preflight, the reader and its worker pool, sink consumers, metrics, the
// optional dashboard, and the exit summary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/streamweft/go-demux-bridge/internal/config"
	"github.com/streamweft/go-demux-bridge/internal/demux"
	"github.com/streamweft/go-demux-bridge/internal/dispatch"
	"github.com/streamweft/go-demux-bridge/internal/logging"
	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/metrics"
	"github.com/streamweft/go-demux-bridge/internal/preflight"
	"github.com/streamweft/go-demux-bridge/internal/stats"
	"github.com/streamweft/go-demux-bridge/internal/tui"
)

// shutdownTimeout bounds the graceful teardown of the metrics server.
const shutdownTimeout = 10 * time.Second

// Orchestrator coordinates all components for a demux run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	capture *logging.CaptureHandler

	pool          *dispatch.Pool
	tracker       *stats.Tracker
	collector     *metrics.Collector
	metricsServer *metrics.Server
	reader        *demux.Reader

	program *tea.Program

	// passDone carries each finished pass's report from the reader's
	// controlling queue to the driver.
	passDone chan demux.PassSummary

	startTime   time.Time
	lastSummary *demux.PassSummary
}

// New creates an Orchestrator on the default metrics registry. The capture
// handler is optional; when present its records feed the dashboard's
// warnings pane.
func New(cfg *config.Config, logger *slog.Logger, capture *logging.CaptureHandler) *Orchestrator {
	collector := metrics.NewCollector(metrics.CollectorConfig{
		Source:      cfg.Input,
		ContentType: cfg.ContentType,
	})
	return newWith(cfg, logger, capture, collector)
}

// newWith lets tests inject a collector bound to a private registry.
func newWith(cfg *config.Config, logger *slog.Logger, capture *logging.CaptureHandler, collector *metrics.Collector) *Orchestrator {
	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(metrics.ServerConfig{
			Addr:   cfg.MetricsAddr,
			Logger: logger,
		})
	}

	return &Orchestrator{
		config:        cfg,
		logger:        logger,
		capture:       capture,
		pool:          dispatch.NewPool("demux-stream", cfg.Workers, cfg.QueueDepth, logger),
		tracker:       stats.NewTracker(),
		collector:     collector,
		metricsServer: server,
		passDone:      make(chan demux.PassSummary, 1),
	}
}

// Run executes the demux run. It blocks until all passes complete, the run
// timeout elapses, or a signal arrives.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.config.Input, o.config.ContentType, o.config.Workers, o.config.MetricsAddr)
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
		}
	}

	// Open the source once; every pass rewinds it.
	src, err := media.OpenFile(o.config.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	defer o.pool.Close()

	reader, err := demux.New(demux.Config{
		ContentType: o.config.ContentType,
		SinkDepth:   o.config.SinkDepth,
		QueueDepth:  o.config.QueueDepth,
		Pool:        o.pool,
		Tracker:     o.tracker,
		Collector:   o.collector,
		Logger:      o.logger,
		Callbacks: demux.Callbacks{
			OnSettled:      o.onSettled,
			OnPassFinished: o.onPassFinished,
		},
	})
	if err != nil {
		return fmt.Errorf("create reader: %w", err)
	}
	o.reader = reader
	defer reader.Close()

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.config.RunTimeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, o.config.RunTimeout)
		defer tcancel()
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	o.logger.Info("run_starting",
		"source", o.config.Input,
		"passes", o.config.Passes,
		"workers", o.config.Workers,
		"sink_depth", o.config.SinkDepth,
	)

	// Dashboard
	if o.config.TUIEnabled {
		tuiCfg := tui.Config{
			Source:      o.config.Input,
			MetricsAddr: o.config.MetricsAddr,
			TotalPasses: o.config.Passes,
			Reader:      reader,
		}
		if o.capture != nil {
			tuiCfg.Warnings = o.capture
		}
		o.program = tea.NewProgram(tui.New(tuiCfg), tea.WithAltScreen())
	}

	g, gctx := errgroup.WithContext(runCtx)

	// Signal watcher
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	// Stats ticker
	g.Go(func() error {
		o.tickLoop(gctx)
		return nil
	})

	// Pass driver
	g.Go(func() error {
		err := o.drivePasses(gctx, src)
		cancel()
		return err
	})

	// Dashboard lifecycle
	if o.program != nil {
		g.Go(func() error {
			_, err := o.program.Run()
			cancel()
			if err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			tui.SendQuit(o.program)
			return nil
		})
	}

	runErr := g.Wait()

	// A run that ends on a failed settlement should exit non-zero even
	// though the pass itself completed.
	if runErr == nil && o.lastSummary != nil && o.lastSummary.Status == demux.StatusFailed {
		if o.lastSummary.Err != nil {
			runErr = fmt.Errorf("final pass failed: %w", o.lastSummary.Err)
		} else {
			runErr = fmt.Errorf("final pass failed")
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	// Final accounting
	o.tracker.Tick()
	finalSnap := o.tracker.Snapshot()
	o.collector.RecordSnapshot(finalSnap)

	if o.config.MetricsDump != "" {
		if err := o.dumpMetrics(o.config.MetricsDump); err != nil {
			o.logger.Warn("metrics_dump_failed", "path", o.config.MetricsDump, "error", err)
		}
	}

	o.printExitSummary(finalSnap)

	return runErr
}

// drivePasses runs the configured number of passes sequentially. Each pass
// exercises the full caller surface: Start, the blocking queries, sink
// consumers, and the finish report.
func (o *Orchestrator) drivePasses(ctx context.Context, src media.ByteSource) error {
	for pass := 1; pass <= o.config.Passes; pass++ {
		if ctx.Err() != nil {
			return nil
		}

		if err := o.reader.Start(src); err != nil {
			return fmt.Errorf("pass %d: start: %w", pass, err)
		}

		qctx, qcancel := context.WithTimeout(ctx, o.config.SettleTimeout)
		status, err := o.reader.AwaitSettled(qctx)
		if err != nil {
			qcancel()
			o.reader.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pass %d: settlement: %w", pass, err)
		}

		// Query like a caller would. Both return immediately once settled.
		var consumers *consumerGroup
		switch status {
		case demux.StatusReady:
			duration, derr := o.reader.QueryDuration(qctx)
			tracks, terr := o.reader.QueryTracks(qctx)
			if derr == nil && terr == nil {
				o.logger.Info("pass_ready",
					"pass", pass,
					"duration", duration.String(),
					"tracks", len(tracks),
				)
				consumers = startConsumers(o.logger, tracks)
			}
		case demux.StatusFailed:
			if _, terr := o.reader.QueryTracks(qctx); terr != nil {
				o.logger.Warn("pass_failed", "pass", pass, "error", terr)
			}
		}
		qcancel()

		select {
		case summary := <-o.passDone:
			o.lastSummary = &summary
		case <-ctx.Done():
			// Tear down mid-pass; closing wakes consumers and waiters.
			o.reader.Close()
			if consumers != nil {
				consumers.Wait()
			}
			return nil
		}

		if consumers != nil {
			consumers.Wait()
			o.logger.Debug("consumers_drained",
				"pass", pass,
				"samples", consumers.Drained(),
				"bytes", consumers.Bytes(),
			)
		}
	}

	o.logger.Info("run_complete", "passes", o.config.Passes)
	return nil
}

// tickLoop advances windowed rates and publishes snapshots once per second.
func (o *Orchestrator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// tick is one snapshot cycle: windowed rates, prometheus gauges, dashboard.
func (o *Orchestrator) tick() {
	o.tracker.Tick()
	snap := o.tracker.Snapshot()
	o.collector.RecordSnapshot(snap)
	if o.reader != nil {
		o.collector.SetStatus(int(o.reader.Status()))
	}
	if o.program != nil {
		tui.SendSnapshot(o.program, snap)
	}
}

// onSettled runs on a reader goroutine; it must not block.
func (o *Orchestrator) onSettled(passID string, status demux.Status, err error) {
	o.collector.SetStatus(int(status))
	if status == demux.StatusReady {
		o.collector.SetInfo(o.config.Input, o.reader.ContentType())
	}
}

// onPassFinished runs on the reader's controlling queue; it must not block.
func (o *Orchestrator) onPassFinished(summary demux.PassSummary) {
	select {
	case o.passDone <- summary:
	default:
		o.logger.Warn("pass_report_dropped", "pass_id", summary.PassID)
	}
}

// dumpMetrics writes the final text exposition of the default registry.
func (o *Orchestrator) dumpMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := metrics.DumpText(f, nil); err != nil {
		return err
	}

	o.logger.Info("metrics_dumped", "path", path)
	return nil
}

// printExitSummary prints the run's totals.
func (o *Orchestrator) printExitSummary(snap *stats.Snapshot) {
	cfg := stats.SummaryConfig{
		Source:      o.config.Input,
		ContentType: o.reader.ContentType(),
		Duration:    time.Since(o.startTime),
		MetricsAddr: o.config.MetricsAddr,
	}

	if s := o.lastSummary; s != nil {
		cfg.FinalStatus = s.Status.String()
		cfg.ContainerDuration = s.Duration
		for _, t := range s.Tracks {
			cfg.Tracks = append(cfg.Tracks, stats.TrackLine{
				ID:        t.ID,
				Kind:      t.Kind.String(),
				Codec:     t.Codec,
				Enabled:   t.Enabled,
				Routed:    t.Routed,
				Delivered: t.Delivered,
				Dropped:   t.Dropped,
				Bytes:     t.Bytes,
			})
		}
	}

	fmt.Println(stats.FormatExitSummary(snap, cfg))
}

// Reader returns the reader for external access.
func (o *Orchestrator) Reader() *demux.Reader {
	return o.reader
}

// Tracker returns the stats tracker for external access.
func (o *Orchestrator) Tracker() *stats.Tracker {
	return o.tracker
}

// Collector returns the metrics collector for external access.
func (o *Orchestrator) Collector() *metrics.Collector {
	return o.collector
}
