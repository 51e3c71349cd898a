// Package stats provides run-wide accounting for demux passes.
//
// This file implements Tracker, which counts passes, settlements, routed
// samples, bytes, and drops, and keeps T-Digest sketches for sample size,
// sample duration, and settlement latency percentiles.
package stats

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/timeseries"
)

// Outcome classifies what happened to a routed sample.
type Outcome int

const (
	// OutcomeDelivered means the sample landed in an enabled track's sink.
	OutcomeDelivered Outcome = iota

	// OutcomeDiscarded means the track is disabled or already finished.
	OutcomeDiscarded

	// OutcomeOverflow means the sink was full and the sample was dropped.
	OutcomeOverflow
)

// String returns the label used for logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// kindCounters accumulates per-kind totals (atomic, lock-free).
type kindCounters struct {
	samples atomic.Int64
	bytes   atomic.Int64
}

// Tracker accumulates demux accounting across every pass of a run.
//
// Thread-safe: counters are atomic; the digests take a mutex because
// TDigest is not thread-safe.
type Tracker struct {
	startTime time.Time

	// Pass lifecycle
	passesStarted     atomic.Int64
	passesFinished    atomic.Int64
	settlementsReady  atomic.Int64
	settlementsFailed atomic.Int64
	streamErrors      atomic.Int64

	// Latest settlement
	lastSettleLatency atomic.Int64 // nanoseconds
	lastTrackCount    atomic.Int64

	// Sample routing
	samplesRouted    atomic.Int64
	samplesDelivered atomic.Int64
	samplesDiscarded atomic.Int64
	droppedOverflow  atomic.Int64
	droppedUnknown   atomic.Int64
	bytesRouted      atomic.Int64

	// Per-kind totals, indexed by media.TrackKind
	perKind [3]kindCounters

	// Percentile sketches (TDigest is not thread-safe)
	digestMu       sync.Mutex
	sizeDigest     *tdigest.TDigest
	durationDigest *tdigest.TDigest
	settleDigest   *tdigest.TDigest

	// Windowed rates, sampled by Tick
	rates *timeseries.RateTracker

	// For instantaneous rates (atomic.Value for lock-free access)
	prevSnapshot atomic.Value // *rateSnapshot
}

// rateSnapshot holds values for calculating instantaneous rates.
type rateSnapshot struct {
	timestamp time.Time
	samples   int64
	bytes     int64
}

// NewTracker creates a Tracker with the real clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(nil)
}

// NewTrackerWithClock creates a Tracker whose rate windows use the given
// clock. A nil clock means real time.
func NewTrackerWithClock(clock timeseries.Clock) *Tracker {
	t := &Tracker{
		startTime:      time.Now(),
		sizeDigest:     tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		durationDigest: tdigest.NewWithCompression(100),
		settleDigest:   tdigest.NewWithCompression(100),
	}
	if clock == nil {
		t.rates = timeseries.NewRateTracker()
	} else {
		t.rates = timeseries.NewRateTrackerWithClock(clock)
	}
	t.prevSnapshot.Store(&rateSnapshot{timestamp: time.Now()})
	return t
}

// RecordPassStarted counts a pass beginning.
func (t *Tracker) RecordPassStarted() {
	t.passesStarted.Add(1)
}

// RecordSettlement records a settlement outcome and its latency from pass
// start.
func (t *Tracker) RecordSettlement(ready bool, latency time.Duration, tracks int) {
	if ready {
		t.settlementsReady.Add(1)
	} else {
		t.settlementsFailed.Add(1)
	}
	t.lastSettleLatency.Store(int64(latency))
	t.lastTrackCount.Store(int64(tracks))

	t.digestMu.Lock()
	t.settleDigest.Add(float64(latency.Nanoseconds()), 1)
	t.digestMu.Unlock()
}

// RecordSample records one routed sample and its delivery outcome.
func (t *Tracker) RecordSample(kind media.TrackKind, size int, duration time.Duration, outcome Outcome) {
	t.samplesRouted.Add(1)
	t.bytesRouted.Add(int64(size))

	switch outcome {
	case OutcomeDelivered:
		t.samplesDelivered.Add(1)
	case OutcomeDiscarded:
		t.samplesDiscarded.Add(1)
	case OutcomeOverflow:
		t.droppedOverflow.Add(1)
	}

	if k := int(kind); k >= 0 && k < len(t.perKind) {
		t.perKind[k].samples.Add(1)
		t.perKind[k].bytes.Add(int64(size))
	}

	t.rates.Add(1, int64(size))

	t.digestMu.Lock()
	t.sizeDigest.Add(float64(size), 1)
	if duration > 0 {
		t.durationDigest.Add(float64(duration.Nanoseconds()), 1)
	}
	t.digestMu.Unlock()
}

// RecordUnknownDrop counts a sample no settled track claimed.
func (t *Tracker) RecordUnknownDrop() {
	t.droppedUnknown.Add(1)
}

// RecordStreamError counts a byte-source failure after settlement.
func (t *Tracker) RecordStreamError() {
	t.streamErrors.Add(1)
}

// RecordPassFinished counts a pass running to completion.
func (t *Tracker) RecordPassFinished(elapsed time.Duration) {
	_ = elapsed
	t.passesFinished.Add(1)
}

// Tick snapshots the rate windows. Call once per second.
func (t *Tracker) Tick() {
	t.rates.RecordSample()
}

// Snapshot holds Tracker values computed at a point in time.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	PassesStarted     int64
	PassesFinished    int64
	SettlementsReady  int64
	SettlementsFailed int64
	StreamErrors      int64
	LastSettleLatency time.Duration
	LastTrackCount    int

	SamplesRouted    int64
	SamplesDelivered int64
	SamplesDiscarded int64
	DroppedOverflow  int64
	DroppedUnknown   int64
	BytesRouted      int64

	VideoSamples int64
	AudioSamples int64
	TextSamples  int64
	VideoBytes   int64
	AudioBytes   int64
	TextBytes    int64

	// Windowed rates
	SampleRate1s  float64
	SampleRate10s float64
	SampleRate60s float64
	Throughput1s  float64
	Throughput10s float64
	Throughput60s float64

	// Overall averages since start
	SampleRateOverall float64
	ThroughputOverall float64

	// Instantaneous rates since the previous Snapshot call
	InstantSampleRate float64
	InstantThroughput float64

	// Percentiles
	SizeP50 float64
	SizeP95 float64
	SizeP99 float64

	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration

	SettleLatencyP50 time.Duration
	SettleLatencyP95 time.Duration
	SettleLatencyP99 time.Duration
}

// Snapshot computes a point-in-time view of the tracker. The returned
// struct is safe to use after the call returns.
func (t *Tracker) Snapshot() *Snapshot {
	now := time.Now()

	s := &Snapshot{
		Timestamp: now,
		Uptime:    now.Sub(t.startTime),

		PassesStarted:     t.passesStarted.Load(),
		PassesFinished:    t.passesFinished.Load(),
		SettlementsReady:  t.settlementsReady.Load(),
		SettlementsFailed: t.settlementsFailed.Load(),
		StreamErrors:      t.streamErrors.Load(),
		LastSettleLatency: time.Duration(t.lastSettleLatency.Load()),
		LastTrackCount:    int(t.lastTrackCount.Load()),

		SamplesRouted:    t.samplesRouted.Load(),
		SamplesDelivered: t.samplesDelivered.Load(),
		SamplesDiscarded: t.samplesDiscarded.Load(),
		DroppedOverflow:  t.droppedOverflow.Load(),
		DroppedUnknown:   t.droppedUnknown.Load(),
		BytesRouted:      t.bytesRouted.Load(),

		VideoSamples: t.perKind[media.KindVideo].samples.Load(),
		AudioSamples: t.perKind[media.KindAudio].samples.Load(),
		TextSamples:  t.perKind[media.KindText].samples.Load(),
		VideoBytes:   t.perKind[media.KindVideo].bytes.Load(),
		AudioBytes:   t.perKind[media.KindAudio].bytes.Load(),
		TextBytes:    t.perKind[media.KindText].bytes.Load(),
	}

	rates := t.rates.Stats()
	s.SampleRate1s = rates.SampleRate1s
	s.SampleRate10s = rates.SampleRate10s
	s.SampleRate60s = rates.SampleRate60s
	s.Throughput1s = rates.Throughput1s
	s.Throughput10s = rates.Throughput10s
	s.Throughput60s = rates.Throughput60s
	s.SampleRateOverall = rates.SampleRateOverall
	s.ThroughputOverall = rates.ThroughputOverall

	// Instantaneous rates from the previous snapshot (lock-free swap)
	if prev, ok := t.prevSnapshot.Load().(*rateSnapshot); ok && prev != nil {
		dt := now.Sub(prev.timestamp).Seconds()
		if dt > 0 {
			s.InstantSampleRate = float64(s.SamplesRouted-prev.samples) / dt
			s.InstantThroughput = float64(s.BytesRouted-prev.bytes) / dt
		}
	}
	t.prevSnapshot.Store(&rateSnapshot{
		timestamp: now,
		samples:   s.SamplesRouted,
		bytes:     s.BytesRouted,
	})

	t.digestMu.Lock()
	if s.SamplesRouted > 0 {
		s.SizeP50 = quantile(t.sizeDigest, 0.50)
		s.SizeP95 = quantile(t.sizeDigest, 0.95)
		s.SizeP99 = quantile(t.sizeDigest, 0.99)
		s.DurationP50 = time.Duration(quantile(t.durationDigest, 0.50))
		s.DurationP95 = time.Duration(quantile(t.durationDigest, 0.95))
		s.DurationP99 = time.Duration(quantile(t.durationDigest, 0.99))
	}
	if s.SettlementsReady+s.SettlementsFailed > 0 {
		s.SettleLatencyP50 = time.Duration(quantile(t.settleDigest, 0.50))
		s.SettleLatencyP95 = time.Duration(quantile(t.settleDigest, 0.95))
		s.SettleLatencyP99 = time.Duration(quantile(t.settleDigest, 0.99))
	}
	t.digestMu.Unlock()

	return s
}

// quantile reads a digest quantile, mapping NaN (empty digest) to 0.
func quantile(d *tdigest.TDigest, q float64) float64 {
	v := d.Quantile(q)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// DropRate returns overflow drops as a fraction of routed samples.
func (s *Snapshot) DropRate() float64 {
	if s.SamplesRouted == 0 {
		return 0
	}
	return float64(s.DroppedOverflow) / float64(s.SamplesRouted)
}
