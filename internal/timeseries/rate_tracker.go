// Package timeseries provides time-windowed rate tracking for demux runs.
//
// It tracks cumulative sample and byte counts and computes rolling averages
// over fixed windows (1s, 10s, 60s).
//
// Thread-safe: Add() uses atomic counters, Stats() acquires a read lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of snapshots to retain (2 minutes at
	// 1 snapshot/sec), enough history for the widest window.
	ringBufferSize = 120

	// Window durations for rolling averages
	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// point is a point-in-time snapshot of the cumulative counters.
type point struct {
	timestamp time.Time
	samples   int64
	bytes     int64
}

// RateTracker tracks cumulative routed samples and payload bytes and
// computes rolling per-second averages over fixed windows.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(1, sampleBytes) // called per routed sample
//	// ... periodic sampling (e.g., every 1s via ticker)
//	tracker.RecordSample()
//	// ... stats for the dashboard or metrics export
//	stats := tracker.Stats()
type RateTracker struct {
	totalSamples atomic.Int64
	totalBytes   atomic.Int64

	// Ring buffer of points for rolling average calculation
	points   []point
	writeIdx int
	mu       sync.RWMutex

	startTime time.Time

	// Clock for testability
	clock Clock
}

// RateStats contains computed rolling averages at a point in time.
type RateStats struct {
	// Cumulative totals since tracking started
	TotalSamples int64
	TotalBytes   int64

	// Rolling sample rates (samples per second)
	SampleRate1s  float64
	SampleRate10s float64
	SampleRate60s float64

	// Rolling throughput (bytes per second)
	Throughput1s  float64
	Throughput10s float64
	Throughput60s float64

	// Overall averages since tracking started
	SampleRateOverall float64
	ThroughputOverall float64
}

// NewRateTracker creates a tracker with the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		points:    make([]point, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	// Record an initial point at t=0 so windows always have an anchor.
	t.points = append(t.points, point{timestamp: now})
	return t
}

// Add records n routed samples carrying b payload bytes.
// Thread-safe and lock-free.
func (t *RateTracker) Add(n, b int64) {
	if n > 0 {
		t.totalSamples.Add(n)
	}
	if b > 0 {
		t.totalBytes.Add(b)
	}
}

// RecordSample snapshots the cumulative counters with a timestamp.
// Call this periodically (e.g., every 1 second via ticker).
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	p := point{
		timestamp: now,
		samples:   t.totalSamples.Load(),
		bytes:     t.totalBytes.Load(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.points) < ringBufferSize {
		t.points = append(t.points, p)
	} else {
		t.points[t.writeIdx] = p
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// Stats computes and returns current rate statistics. It always returns
// valid data, falling back to whatever history exists.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	curSamples := t.totalSamples.Load()
	curBytes := t.totalBytes.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{
		TotalSamples: curSamples,
		TotalBytes:   curBytes,
	}

	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.SampleRateOverall = float64(curSamples) / elapsed
		stats.ThroughputOverall = float64(curBytes) / elapsed
	}

	stats.SampleRate1s, stats.Throughput1s = t.ratesOverWindow(now, curSamples, curBytes, window1s)
	stats.SampleRate10s, stats.Throughput10s = t.ratesOverWindow(now, curSamples, curBytes, window10s)
	stats.SampleRate60s, stats.Throughput60s = t.ratesOverWindow(now, curSamples, curBytes, window60s)

	return stats
}

// ratesOverWindow calculates sample and byte rates over the given window.
// Must be called with mu held (at least RLock).
func (t *RateTracker) ratesOverWindow(now time.Time, curSamples, curBytes int64, window time.Duration) (sampleRate, byteRate float64) {
	if len(t.points) == 0 {
		return 0, 0
	}

	targetTime := now.Add(-window)

	// Find the point closest to (but not after) targetTime.
	var best *point
	var bestDiff time.Duration = -1
	for i := range t.points {
		p := &t.points[i]
		if p.timestamp.After(targetTime) {
			continue
		}
		diff := targetTime.Sub(p.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = p
			bestDiff = diff
		}
	}

	// No point before targetTime: fall back to the oldest we have.
	if best == nil {
		best = t.oldestPoint()
	}
	if best == nil {
		return 0, 0
	}

	actualElapsed := now.Sub(best.timestamp).Seconds()
	if actualElapsed <= 0 {
		return 0, 0
	}

	sampleRate = float64(curSamples-best.samples) / actualElapsed
	byteRate = float64(curBytes-best.bytes) / actualElapsed
	return sampleRate, byteRate
}

// oldestPoint returns the oldest point in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestPoint() *point {
	if len(t.points) == 0 {
		return nil
	}
	if len(t.points) < ringBufferSize {
		return &t.points[0]
	}
	return &t.points[t.writeIdx]
}

// Totals returns the cumulative counters without computing averages.
func (t *RateTracker) Totals() (samples, bytes int64) {
	return t.totalSamples.Load(), t.totalBytes.Load()
}
