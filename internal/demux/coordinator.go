package demux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/metrics"
	"github.com/streamweft/go-demux-bridge/internal/stats"
)

// Coordinator owns the settlement state of the current parse pass: status,
// container duration, and the track list. Parser callbacks mutate it from
// pool goroutines while callers block on queries; a single mutex plus
// condition variable orders the two sides.
//
// Settlement happens exactly once per pass. A second settlement, or
// finishing a pass that never settled, is a programming fault and panics.
type Coordinator struct {
	sinkDepth int
	logger    *slog.Logger
	tracker   *stats.Tracker
	collector *metrics.Collector

	mu   sync.Mutex
	cond *sync.Cond

	status         Status
	passID         string
	passSeq        int64
	source         string
	duration       time.Duration
	err            error
	tracks         []*Track
	unknownDropped int64
	waiters        int
	startedAt      time.Time
}

// CoordinatorConfig configures a Coordinator. Zero values fall back to
// defaults; Tracker and Collector are optional.
type CoordinatorConfig struct {
	SinkDepth int
	Logger    *slog.Logger
	Tracker   *stats.Tracker
	Collector *metrics.Collector
}

// NewCoordinator creates a Coordinator in the idle state.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.SinkDepth < 1 {
		cfg.SinkDepth = DefaultSinkDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Coordinator{
		sinkDepth: cfg.SinkDepth,
		logger:    cfg.Logger,
		tracker:   cfg.Tracker,
		collector: cfg.Collector,
		status:    StatusIdle,
		duration:  media.InvalidDuration,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// BeginPass resets settlement state for a new pass. Any sinks left over
// from the previous pass are closed so stale consumers observe end of
// stream. Queries issued after BeginPass block until the new pass settles.
func (c *Coordinator) BeginPass(passID, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tracks {
		t.finish()
	}

	c.status = StatusParsing
	c.passID = passID
	c.passSeq++
	c.source = source
	c.duration = media.InvalidDuration
	c.err = nil
	c.tracks = nil
	c.unknownDropped = 0
	c.startedAt = time.Now()

	c.logger.Debug("pass_begun",
		"pass_id", passID,
		"seq", c.passSeq,
		"source", source)
}

// CompleteInitialization settles the current pass exactly once. A nil err
// settles Ready with the given descriptors and duration; a non-nil err
// settles Failed, discarding both. Every blocked query wakes up either way.
//
// Settling twice, or settling with no pass active, panics.
func (c *Coordinator) CompleteInitialization(descs []media.TrackDescriptor, duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle {
		panic("demux: settlement without an active pass")
	}
	c.settleLocked(descs, duration, err)
}

// settleIfCurrent settles only if passID still names the active pass, so a
// superseded pass's late settlement falls away instead of landing on its
// successor. Settling the same pass twice still panics.
func (c *Coordinator) settleIfCurrent(passID string, descs []media.TrackDescriptor, duration time.Duration, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle || passID != c.passID {
		return false
	}
	c.settleLocked(descs, duration, err)
	return true
}

// settleFallback settles an unsettled pass with err. Unlike the settlement
// entry points above it is a no-op when the pass already settled, which
// lets teardown paths guarantee a settlement without risking a double one.
func (c *Coordinator) settleFallback(passID string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusParsing || passID != c.passID {
		return false
	}
	c.settleLocked(nil, media.InvalidDuration, err)
	return true
}

func (c *Coordinator) settleLocked(descs []media.TrackDescriptor, duration time.Duration, err error) {
	if c.status.Settled() {
		panic(fmt.Sprintf("demux: pass %s settled twice", c.passID))
	}

	latency := time.Since(c.startedAt)
	if err != nil {
		c.status = StatusFailed
		c.err = err
		c.duration = media.InvalidDuration
		c.tracks = nil
	} else {
		c.status = StatusReady
		c.duration = duration
		c.tracks = materializeTracks(descs, c.sinkDepth)
	}

	if c.tracker != nil {
		c.tracker.RecordSettlement(c.status == StatusReady, latency, len(c.tracks))
	}
	if c.collector != nil {
		c.collector.PassSettled(c.status.String(), latency)
	}

	if err != nil {
		c.logger.Warn("pass_settled",
			"pass_id", c.passID,
			"status", c.status.String(),
			"latency_ms", latency.Milliseconds(),
			"error", err)
	} else {
		c.logger.Info("pass_settled",
			"pass_id", c.passID,
			"status", c.status.String(),
			"duration", c.duration,
			"tracks", len(c.tracks),
			"latency_ms", latency.Milliseconds())
	}

	c.cond.Broadcast()
}

// RouteSample delivers a sample to the track it names. The track list is
// small, so a linear scan wins over a map. Samples for tracks the
// settlement never produced are counted and dropped; before settlement the
// list is empty, so early samples fall out the same way.
func (c *Coordinator) RouteSample(s media.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeLocked(s)
}

// routeIfCurrent routes only if passID still names the active pass.
func (c *Coordinator) routeIfCurrent(passID string, s media.Sample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if passID != c.passID {
		return false
	}
	c.routeLocked(s)
	return true
}

func (c *Coordinator) routeLocked(s media.Sample) {
	for _, t := range c.tracks {
		if t.ID() == s.TrackID {
			outcome := t.deliver(s)
			if c.tracker != nil {
				c.tracker.RecordSample(t.Kind(), s.Size(), s.Duration, outcome)
			}
			if c.collector != nil {
				c.collector.SampleRouted(t.Kind().String(), s.Size(), outcome)
			}
			return
		}
	}

	c.unknownDropped++
	if c.tracker != nil {
		c.tracker.RecordUnknownDrop()
	}
	if c.collector != nil {
		c.collector.SampleDropped("unknown_track")
	}
	c.logger.Debug("sample_dropped_unknown_track",
		"pass_id", c.passID,
		"track_id", s.TrackID,
		"time", s.Time)
}

// FinishPass closes every track sink so consumers observe end of stream.
// The settlement tuple stays readable until the next BeginPass. Finishing
// a pass that never settled panics.
func (c *Coordinator) FinishPass() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle {
		panic("demux: finish without an active pass")
	}
	if !c.status.Settled() {
		panic(fmt.Sprintf("demux: pass %s finished before settlement", c.passID))
	}
	c.finishLocked()
}

// finishIfCurrent finishes only if passID names the active pass and it has
// settled. Teardown paths use it where a panic would be wrong.
func (c *Coordinator) finishIfCurrent(passID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle || passID != c.passID || !c.status.Settled() {
		return false
	}
	c.finishLocked()
	return true
}

func (c *Coordinator) finishLocked() {
	for _, t := range c.tracks {
		t.finish()
	}

	c.logger.Debug("pass_finished",
		"pass_id", c.passID,
		"status", c.status.String(),
		"unknown_dropped", c.unknownDropped)
}

// awaitLocked blocks until the pass settles or ctx is done. The caller
// must hold c.mu; the lock is held again when awaitLocked returns, so the
// caller can read settlement state without a reset racing in between.
func (c *Coordinator) awaitLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.status.Settled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.waiters++
	if c.collector != nil {
		c.collector.WaiterStarted()
	}
	defer func() {
		c.waiters--
		if c.collector != nil {
			c.collector.WaiterDone()
		}
	}()

	// Taking the lock inside the callback orders the broadcast after the
	// waiter's predicate check, so a cancellation cannot slip between the
	// check and the wait.
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	for !c.status.Settled() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}

// AwaitSettled blocks until the current pass settles, returning the
// settlement status. ctx cancellation or deadline expiry unblocks the
// caller with the context's error.
func (c *Coordinator) AwaitSettled(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.awaitLocked(ctx); err != nil {
		return c.status, err
	}
	return c.status, nil
}

// Duration blocks until settlement, then returns the container duration.
// Failed passes return media.InvalidDuration and the settlement error.
func (c *Coordinator) Duration(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.awaitLocked(ctx); err != nil {
		return media.InvalidDuration, err
	}
	if c.status == StatusFailed {
		return media.InvalidDuration, c.err
	}
	return c.duration, nil
}

// Tracks blocks until settlement, then returns a snapshot of the track
// list. The returned slice is the caller's to keep; a later pass cannot
// tear it. Failed passes return the settlement error.
func (c *Coordinator) Tracks(ctx context.Context) ([]*Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.awaitLocked(ctx); err != nil {
		return nil, err
	}
	if c.status == StatusFailed {
		return nil, c.err
	}

	out := make([]*Track, len(c.tracks))
	copy(out, c.tracks)
	return out, nil
}

// passState is a point-in-time copy of the coordinator's pass fields.
type passState struct {
	passID         string
	passSeq        int64
	source         string
	status         Status
	err            error
	duration       time.Duration
	tracks         []*Track
	unknownDropped int64
	waiters        int
	startedAt      time.Time
}

// state returns a consistent snapshot without blocking for settlement.
func (c *Coordinator) state() passState {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks := make([]*Track, len(c.tracks))
	copy(tracks, c.tracks)

	return passState{
		passID:         c.passID,
		passSeq:        c.passSeq,
		source:         c.source,
		status:         c.status,
		err:            c.err,
		duration:       c.duration,
		tracks:         tracks,
		unknownDropped: c.unknownDropped,
		waiters:        c.waiters,
		startedAt:      c.startedAt,
	}
}

// Status returns the current settlement status without blocking.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Waiters returns the number of queries currently blocked on settlement.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters
}

// UnknownDrops returns the number of samples dropped because no settled
// track claimed them during the current pass.
func (c *Coordinator) UnknownDrops() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unknownDropped
}
