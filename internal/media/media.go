// Package media defines the container-level types shared by the parser and
// demux layers: track kinds, track descriptors, samples, and byte sources.
package media

import "time"

// InvalidDuration is the sentinel value for "no known duration". Passes
// start with it and usually settle with a real (>= 0) duration; containers
// that declare no duration, such as live recordings, settle with the
// sentinel intact.
const InvalidDuration = time.Duration(-1)

// TrackKind classifies a track by its payload type.
type TrackKind int

const (
	// KindVideo is a video track.
	KindVideo TrackKind = iota

	// KindAudio is an audio track.
	KindAudio

	// KindText is a subtitle or caption track.
	KindText
)

// String returns a human-readable name for the track kind.
func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// TrackDescriptor describes one track discovered during container
// initialization. Descriptors are produced by a parser exactly once per
// parse pass, before any sample is emitted.
type TrackDescriptor struct {
	// ID is the container-assigned track identifier. IDs are unique
	// within a pass and stable for its lifetime.
	ID uint64

	// Kind is the payload classification.
	Kind TrackKind

	// Codec is the container's codec identifier (for example "V_VP9"
	// or "pcm_s16le").
	Codec string

	// Language is the declared track language, empty when absent.
	Language string

	// Width and Height are set for video tracks, zero otherwise.
	Width  int
	Height int

	// SampleRate and Channels are set for audio tracks, zero otherwise.
	SampleRate int
	Channels   int
}

// Sample is one container-level media sample as delivered by a parser.
// The demux layer routes samples by TrackID without inspecting payloads.
type Sample struct {
	TrackID    uint64
	Time       time.Duration
	Duration   time.Duration
	IsKeyFrame bool
	Data       []byte
}

// Size returns the payload size in bytes.
func (s Sample) Size() int {
	return len(s.Data)
}
