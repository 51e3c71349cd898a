package demux

import (
	"sync"
	"sync/atomic"

	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/stats"
)

// DefaultSinkDepth bounds an enabled track's sample sink when the
// configuration does not say otherwise.
const DefaultSinkDepth = 256

// Track is one elementary stream discovered at settlement. Enabled tracks
// carry a bounded sample sink that consumers drain; disabled tracks count
// and discard everything routed to them.
//
// deliver and finish are serialized by the coordinator lock. Accessors and
// counters are safe to read from any goroutine.
type Track struct {
	desc    media.TrackDescriptor
	enabled bool

	samples   chan media.Sample
	closeOnce sync.Once
	finished  atomic.Bool

	routed    atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	bytes     atomic.Int64
}

func newTrack(desc media.TrackDescriptor, enabled bool, sinkDepth int) *Track {
	if sinkDepth < 1 {
		sinkDepth = DefaultSinkDepth
	}

	t := &Track{
		desc:    desc,
		enabled: enabled,
	}
	if enabled {
		t.samples = make(chan media.Sample, sinkDepth)
	}
	return t
}

// ID returns the container-assigned track identifier.
func (t *Track) ID() uint64 {
	return t.desc.ID
}

// Kind returns the track's media kind.
func (t *Track) Kind() media.TrackKind {
	return t.desc.Kind
}

// Descriptor returns a copy of the track's descriptor.
func (t *Track) Descriptor() media.TrackDescriptor {
	return t.desc
}

// Enabled reports whether the track has a live sample sink.
func (t *Track) Enabled() bool {
	return t.enabled
}

// Finished reports whether the pass that owns this track has finished.
func (t *Track) Finished() bool {
	return t.finished.Load()
}

// Samples returns the track's sample sink. It is nil for disabled tracks.
// The channel is closed when the pass finishes.
func (t *Track) Samples() <-chan media.Sample {
	return t.samples
}

// Routed returns the number of samples routed to this track.
func (t *Track) Routed() int64 { return t.routed.Load() }

// Delivered returns the number of samples handed to the sink.
func (t *Track) Delivered() int64 { return t.delivered.Load() }

// Dropped returns the number of samples lost to sink overflow.
func (t *Track) Dropped() int64 { return t.dropped.Load() }

// Bytes returns the payload bytes routed to this track.
func (t *Track) Bytes() int64 { return t.bytes.Load() }

// deliver hands a sample to the track. Disabled or finished tracks count
// and discard. Enabled tracks use a non-blocking send so a stalled consumer
// drops samples instead of stalling the parse.
func (t *Track) deliver(s media.Sample) stats.Outcome {
	t.routed.Add(1)
	t.bytes.Add(int64(s.Size()))

	if !t.enabled || t.finished.Load() {
		return stats.OutcomeDiscarded
	}

	select {
	case t.samples <- s:
		t.delivered.Add(1)
		return stats.OutcomeDelivered
	default:
		t.dropped.Add(1)
		return stats.OutcomeOverflow
	}
}

// finish marks the track done and closes its sink so consumers observe
// end of stream.
func (t *Track) finish() {
	t.finished.Store(true)
	if t.samples != nil {
		t.closeOnce.Do(func() { close(t.samples) })
	}
}

// materializeTracks builds Track values from settled descriptors, ordered
// video first, then audio, then text. The first video track and the first
// audio track get live sinks; text tracks and later duplicates stay
// disabled.
func materializeTracks(descs []media.TrackDescriptor, sinkDepth int) []*Track {
	if len(descs) == 0 {
		return nil
	}

	ordered := make([]media.TrackDescriptor, 0, len(descs))
	for _, kind := range []media.TrackKind{media.KindVideo, media.KindAudio, media.KindText} {
		for _, d := range descs {
			if d.Kind == kind {
				ordered = append(ordered, d)
			}
		}
	}

	tracks := make([]*Track, 0, len(ordered))
	var haveVideo, haveAudio bool
	for _, d := range ordered {
		enabled := false
		switch d.Kind {
		case media.KindVideo:
			if !haveVideo {
				enabled = true
				haveVideo = true
			}
		case media.KindAudio:
			if !haveAudio {
				enabled = true
				haveAudio = true
			}
		}
		tracks = append(tracks, newTrack(d, enabled, sinkDepth))
	}
	return tracks
}
