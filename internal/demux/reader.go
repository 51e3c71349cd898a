package demux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamweft/go-demux-bridge/internal/dispatch"
	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/metrics"
	"github.com/streamweft/go-demux-bridge/internal/parser"
	"github.com/streamweft/go-demux-bridge/internal/stats"
)

// Config configures a Reader.
type Config struct {
	// ContentType forces a container type. Empty means sniff the source.
	ContentType string `json:"content_type"`

	// SinkDepth bounds each enabled track's sample sink.
	SinkDepth int `json:"sink_depth"`

	// QueueDepth bounds the controlling queue's task backlog.
	QueueDepth int `json:"queue_depth"`

	// Pool runs the streaming side of each pass. Required.
	Pool *dispatch.Pool `json:"-"`

	// Tracker and Collector receive per-sample and per-pass accounting.
	// Both are optional.
	Tracker   *stats.Tracker     `json:"-"`
	Collector *metrics.Collector `json:"-"`

	Logger    *slog.Logger `json:"-"`
	Callbacks Callbacks    `json:"-"`
}

// Callbacks are optional hooks into the pass lifecycle. They run on the
// reader's internal goroutines, so they must not block.
type Callbacks struct {
	// OnSettled fires exactly once per pass when the settlement lands.
	OnSettled func(passID string, status Status, err error)

	// OnPassFinished fires when a pass runs to completion. Passes
	// superseded by a newer Start do not report.
	OnPassFinished func(summary PassSummary)
}

// TrackSummary is the per-track slice of a PassSummary.
type TrackSummary struct {
	ID        uint64
	Kind      media.TrackKind
	Codec     string
	Enabled   bool
	Routed    int64
	Delivered int64
	Dropped   int64
	Bytes     int64
}

// PassSummary describes one finished pass.
type PassSummary struct {
	PassID      string
	Seq         int64
	Source      string
	ContentType string
	Status      Status
	Err         error
	StreamErr   error
	Duration    time.Duration
	Elapsed     time.Duration
	Tracks      []TrackSummary

	SamplesRouted    int64
	SamplesDelivered int64
	SamplesDropped   int64
	UnknownDropped   int64
	BytesRouted      int64
}

// Reader binds a byte source to an external parser and answers blocking
// queries about what the parse discovered. Start dispatches pass control
// onto a single serial queue; the parse itself streams on the injected
// pool, so queries never run parser code.
type Reader struct {
	cfg       Config
	logger    *slog.Logger
	pool      *dispatch.Pool
	queue     *dispatch.SerialQueue
	coord     *Coordinator
	tracker   *stats.Tracker
	collector *metrics.Collector

	mu          sync.Mutex
	src         media.ByteSource
	parser      parser.Parser
	sub         *parser.Subscription
	passID      string
	passCancel  context.CancelFunc
	contentType string
	closed      bool

	closeOnce sync.Once
}

// New creates a Reader. The pool is required; everything else defaults.
func New(cfg Config) (*Reader, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("demux: config: pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Reader{
		cfg:       cfg,
		logger:    cfg.Logger,
		pool:      cfg.Pool,
		tracker:   cfg.Tracker,
		collector: cfg.Collector,
	}
	r.queue = dispatch.NewSerialQueue("demux-control", cfg.QueueDepth, cfg.Logger)
	r.coord = NewCoordinator(CoordinatorConfig{
		SinkDepth: cfg.SinkDepth,
		Logger:    cfg.Logger,
		Tracker:   cfg.Tracker,
		Collector: cfg.Collector,
	})
	return r, nil
}

// Start begins a parse pass over src. It returns once the pass is queued;
// settlement is observed through the query methods or OnSettled. Starting
// while an earlier pass is still running supersedes that pass.
func (r *Reader) Start(src media.ByteSource) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	passID := uuid.NewString()
	if err := r.queue.Submit(func() { r.beginPass(passID, src) }); err != nil {
		return fmt.Errorf("demux: start: %w", err)
	}
	return nil
}

// beginPass runs on the controlling queue. It tears down the previous
// pass, resets settlement state, allocates a parser, and hands the
// streaming work to the pool.
func (r *Reader) beginPass(passID string, src media.ByteSource) {
	r.mu.Lock()
	prevCancel := r.passCancel
	prevSub := r.sub
	prevParser := r.parser
	r.src = src
	r.passID = passID
	r.parser = nil
	r.sub = nil
	r.passCancel = nil
	r.contentType = ""
	r.mu.Unlock()

	if prevSub != nil {
		prevSub.Cancel()
	}
	if prevCancel != nil {
		prevCancel()
	}
	if prevParser != nil {
		prevParser.Reset()
	}

	r.coord.BeginPass(passID, src.Name())
	if r.tracker != nil {
		r.tracker.RecordPassStarted()
	}
	if r.collector != nil {
		r.collector.PassStarted()
	}

	contentType := r.cfg.ContentType
	if contentType == "" {
		ct, err := parser.Sniff(src)
		if err != nil {
			r.failAllocation(passID, fmt.Errorf("%w: %w", ErrAllocation, err))
			return
		}
		contentType = ct
	}

	prs, err := parser.New(contentType)
	if err != nil {
		r.failAllocation(passID, fmt.Errorf("%w: %w", ErrAllocation, err))
		return
	}

	sub := prs.Subscribe(parser.Callbacks{
		OnTracks: func(descs []media.TrackDescriptor, duration time.Duration, err error) {
			r.handleTracks(passID, descs, duration, err)
		},
		OnSample: func(s media.Sample) {
			r.coord.routeIfCurrent(passID, s)
		},
	})

	passCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.parser = prs
	r.sub = sub
	r.passCancel = cancel
	r.contentType = contentType
	r.mu.Unlock()

	if err := r.pool.Submit(func() { r.streamSource(passCtx, passID, prs, src) }); err != nil {
		sub.Cancel()
		cancel()
		r.failAllocation(passID, fmt.Errorf("%w: submit stream: %w", ErrAllocation, err))
		return
	}

	r.logger.Info("pass_started",
		"pass_id", passID,
		"source", src.Name(),
		"content_type", contentType)
}

// streamSource runs on the pool for the life of one parse.
func (r *Reader) streamSource(ctx context.Context, passID string, prs parser.Parser, src media.ByteSource) {
	err := prs.Parse(ctx, src)
	if err != nil {
		r.logger.Debug("stream_ended", "pass_id", passID, "error", err)
	} else {
		r.logger.Debug("stream_ended", "pass_id", passID)
	}

	if qErr := r.queue.Submit(func() { r.finishPass(passID, err) }); qErr != nil {
		r.logger.Debug("finish_not_queued", "pass_id", passID, "error", qErr)
	}
}

// handleTracks carries the parser's settlement into the coordinator. It
// runs on the pool goroutine driving Parse.
func (r *Reader) handleTracks(passID string, descs []media.TrackDescriptor, duration time.Duration, err error) {
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrParsing, err)
		descs = nil
		duration = media.InvalidDuration
	}

	if !r.coord.settleIfCurrent(passID, descs, duration, err) {
		r.logger.Debug("stale_settlement_dropped", "pass_id", passID)
		return
	}
	r.notifySettled(passID)
}

// finishPass runs on the controlling queue after the stream goroutine
// returns. It rescues a pass the parser abandoned without settling, then
// tears the pass down and reports the summary.
func (r *Reader) finishPass(passID string, streamErr error) {
	r.mu.Lock()
	stale := r.passID != passID
	sub := r.sub
	prs := r.parser
	cancel := r.passCancel
	r.mu.Unlock()

	if stale {
		r.logger.Debug("pass_superseded", "pass_id", passID)
		return
	}

	rescueErr := streamErr
	if rescueErr == nil {
		rescueErr = fmt.Errorf("stream ended before settlement")
	}
	if r.coord.settleFallback(passID, fmt.Errorf("%w: %w", ErrParsing, rescueErr)) {
		r.notifySettled(passID)
	} else if streamErr != nil && r.coord.Status() == StatusReady {
		// The settlement stands; the source failed afterwards.
		if r.tracker != nil {
			r.tracker.RecordStreamError()
		}
		if r.collector != nil {
			r.collector.StreamError()
		}
		r.logger.Warn("stream_error_after_settlement",
			"pass_id", passID,
			"error", streamErr)
	}

	if sub != nil {
		sub.Cancel()
	}
	r.coord.finishIfCurrent(passID)
	if prs != nil {
		prs.Reset()
	}
	if cancel != nil {
		cancel()
	}

	r.emitPassComplete(passID, streamErr)
}

// failAllocation settles a pass that never reached streaming, finishes it,
// and reports the summary.
func (r *Reader) failAllocation(passID string, err error) {
	r.logger.Warn("pass_allocation_failed", "pass_id", passID, "error", err)

	if !r.coord.settleIfCurrent(passID, nil, media.InvalidDuration, err) {
		return
	}
	r.notifySettled(passID)
	r.coord.finishIfCurrent(passID)
	r.emitPassComplete(passID, nil)
}

func (r *Reader) notifySettled(passID string) {
	if r.cfg.Callbacks.OnSettled == nil {
		return
	}
	st := r.coord.state()
	r.cfg.Callbacks.OnSettled(passID, st.status, st.err)
}

func (r *Reader) emitPassComplete(passID string, streamErr error) {
	st := r.coord.state()

	r.mu.Lock()
	contentType := r.contentType
	r.mu.Unlock()

	elapsed := time.Since(st.startedAt)
	summary := PassSummary{
		PassID:         passID,
		Seq:            st.passSeq,
		Source:         st.source,
		ContentType:    contentType,
		Status:         st.status,
		Err:            st.err,
		StreamErr:      streamErr,
		Duration:       st.duration,
		Elapsed:        elapsed,
		UnknownDropped: st.unknownDropped,
	}
	for _, t := range st.tracks {
		ts := TrackSummary{
			ID:        t.ID(),
			Kind:      t.Kind(),
			Codec:     t.Descriptor().Codec,
			Enabled:   t.Enabled(),
			Routed:    t.Routed(),
			Delivered: t.Delivered(),
			Dropped:   t.Dropped(),
			Bytes:     t.Bytes(),
		}
		summary.Tracks = append(summary.Tracks, ts)
		summary.SamplesRouted += ts.Routed
		summary.SamplesDelivered += ts.Delivered
		summary.SamplesDropped += ts.Dropped
		summary.BytesRouted += ts.Bytes
	}

	if r.tracker != nil {
		r.tracker.RecordPassFinished(elapsed)
	}
	if r.collector != nil {
		r.collector.PassFinished(elapsed)
	}

	r.logger.Info("pass_complete",
		"pass_id", passID,
		"status", st.status.String(),
		"tracks", len(st.tracks),
		"samples_routed", summary.SamplesRouted,
		"samples_delivered", summary.SamplesDelivered,
		"samples_dropped", summary.SamplesDropped,
		"unknown_dropped", st.unknownDropped,
		"bytes", summary.BytesRouted,
		"elapsed_ms", elapsed.Milliseconds())

	if r.cfg.Callbacks.OnPassFinished != nil {
		r.cfg.Callbacks.OnPassFinished(summary)
	}
}

// QueryDuration blocks until the current pass settles, then returns the
// container duration. A failed pass returns the settlement error.
func (r *Reader) QueryDuration(ctx context.Context) (time.Duration, error) {
	return r.coord.Duration(ctx)
}

// QueryTracks blocks until the current pass settles, then returns a
// snapshot of the discovered tracks.
func (r *Reader) QueryTracks(ctx context.Context) ([]*Track, error) {
	return r.coord.Tracks(ctx)
}

// AwaitSettled blocks until the current pass settles.
func (r *Reader) AwaitSettled(ctx context.Context) (Status, error) {
	return r.coord.AwaitSettled(ctx)
}

// Status returns the current settlement status without blocking.
func (r *Reader) Status() Status {
	return r.coord.Status()
}

// PassID returns the identifier of the current pass, or "" before the
// first Start.
func (r *Reader) PassID() string {
	return r.coord.state().passID
}

// PassSeq returns how many passes have begun.
func (r *Reader) PassSeq() int64 {
	return r.coord.state().passSeq
}

// Source returns the name of the byte source the current pass reads.
func (r *Reader) Source() string {
	return r.coord.state().source
}

// ContentType returns the resolved container type of the current pass.
func (r *Reader) ContentType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentType
}

// TracksSnapshot returns the settled track list without blocking, or nil
// while the pass is unsettled.
func (r *Reader) TracksSnapshot() []*Track {
	st := r.coord.state()
	if !st.status.Settled() {
		return nil
	}
	return st.tracks
}

// PassView is a point-in-time, non-blocking view of the current pass for
// dashboards and periodic logging. Unlike QueryDuration and QueryTracks
// it never waits for settlement: Duration is invalid and Tracks nil while
// the pass is unsettled.
type PassView struct {
	PassID       string
	Seq          int64
	Source       string
	ContentType  string
	Status       Status
	Err          error
	Duration     time.Duration
	Tracks       []*Track
	UnknownDrops int64
	Waiters      int
	StartedAt    time.Time
}

// View returns a non-blocking snapshot of the current pass.
func (r *Reader) View() PassView {
	st := r.coord.state()

	v := PassView{
		PassID:       st.passID,
		Seq:          st.passSeq,
		Source:       st.source,
		ContentType:  r.ContentType(),
		Status:       st.status,
		Err:          st.err,
		Duration:     st.duration,
		UnknownDrops: st.unknownDropped,
		Waiters:      st.waiters,
		StartedAt:    st.startedAt,
	}
	if st.status.Settled() {
		v.Tracks = st.tracks
	}
	return v
}

// Waiters returns the number of queries currently blocked on settlement.
func (r *Reader) Waiters() int {
	return r.coord.Waiters()
}

// UnknownDrops returns the unknown-track drop count for the current pass.
func (r *Reader) UnknownDrops() int64 {
	return r.coord.UnknownDrops()
}

// Close aborts any in-flight pass, drains the controlling queue, and wakes
// every blocked query. Close is idempotent.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		cancel := r.passCancel
		passID := r.passID
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		r.queue.Close()

		r.mu.Lock()
		sub := r.sub
		prs := r.parser
		r.mu.Unlock()

		if sub != nil {
			sub.Cancel()
		}
		if prs != nil {
			prs.Reset()
		}

		// The queue may have closed before the stream goroutine could
		// hand in its finish task. Settle and finish here so blocked
		// queries and sink consumers are released.
		if r.coord.settleFallback(passID, fmt.Errorf("%w: reader closed", ErrParsing)) {
			r.notifySettled(passID)
		}
		r.coord.finishIfCurrent(passID)

		r.logger.Debug("reader_closed", "pass_id", passID)
	})
	return nil
}
