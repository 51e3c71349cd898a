// Package demux bridges asynchronous container parsing onto synchronous
// queries. A Reader drives an external parser over a byte source on an
// injected worker pool; callers block on duration and track queries until
// the parse pass settles.
package demux

// Status is the settlement state of a parse pass.
type Status int

const (
	// StatusIdle is the state before any pass has started.
	StatusIdle Status = iota

	// StatusParsing means a pass is running and has not settled.
	StatusParsing

	// StatusReady means the pass settled with a track list and duration.
	StatusReady

	// StatusFailed means the pass settled with an error.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusParsing:
		return "parsing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settled reports whether the pass has reached a terminal settlement.
// Once settled, status, duration, and the track list stay immutable until
// the next pass begins.
func (s Status) Settled() bool {
	return s == StatusReady || s == StatusFailed
}
