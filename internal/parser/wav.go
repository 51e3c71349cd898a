package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

func init() {
	Register(TypeWAV, func() Parser { return NewWAV() })
	Register("audio/x-wav", func() Parser { return NewWAV() })
}

// wavTrackID is the identifier of the single audio track a WAV container
// carries.
const wavTrackID = 1

// wavChunkSamples is how many PCM values are decoded per emitted sample.
const wavChunkSamples = 4096

// WAVParser parses RIFF/WAVE containers. A WAV file demuxes to a single
// audio track whose samples are fixed-size PCM chunks.
type WAVParser struct {
	hub Hub
}

// NewWAV creates a WAV parser.
func NewWAV() *WAVParser {
	return &WAVParser{}
}

// ContentType returns "audio/wav".
func (p *WAVParser) ContentType() string {
	return TypeWAV
}

// Subscribe attaches callbacks for the next Parse call.
func (p *WAVParser) Subscribe(cb Callbacks) *Subscription {
	return p.hub.Subscribe(cb)
}

// Reset detaches the current subscription.
func (p *WAVParser) Reset() {
	p.hub.Detach()
}

// Parse decodes the header, emits the single-track descriptor, then
// streams PCM chunks as samples.
func (p *WAVParser) Parse(ctx context.Context, src media.ByteSource) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek: %w", err)
	}

	d := wav.NewDecoder(src)
	d.ReadInfo()
	if !d.IsValidFile() {
		initErr := fmt.Errorf("wav: initialization: %w: %q", ErrUnknownFormat, src.Name())
		p.hub.EmitTracks(nil, media.InvalidDuration, initErr)
		return initErr
	}

	duration, err := d.Duration()
	if err != nil {
		initErr := fmt.Errorf("wav: initialization: duration: %w", err)
		p.hub.EmitTracks(nil, media.InvalidDuration, initErr)
		return initErr
	}

	desc := media.TrackDescriptor{
		ID:         wavTrackID,
		Kind:       media.KindAudio,
		Codec:      wavCodec(d.WavAudioFormat, d.BitDepth),
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}
	p.hub.EmitTracks([]media.TrackDescriptor{desc}, duration, nil)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(d.NumChans),
			SampleRate:  int(d.SampleRate),
		},
		Data: make([]int, wavChunkSamples),
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	rate := int64(d.SampleRate)
	if rate < 1 {
		rate = 1
	}

	var framesRead int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := d.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("wav: parse: %w", err)
		}
		if n == 0 {
			return nil
		}

		frames := int64(n / channels)
		p.hub.EmitSample(media.Sample{
			TrackID:    wavTrackID,
			Time:       time.Duration(framesRead * int64(time.Second) / rate),
			Duration:   time.Duration(frames * int64(time.Second) / rate),
			IsKeyFrame: true,
			Data:       pcmBytes(buf.Data, n, d.BitDepth),
		})
		framesRead += frames
	}
}

// wavCodec renders the RIFF format tag and bit depth as a codec string.
func wavCodec(format, bitDepth uint16) string {
	switch format {
	case 1:
		return fmt.Sprintf("pcm_s%dle", bitDepth)
	case 3:
		return fmt.Sprintf("pcm_f%dle", bitDepth)
	default:
		return fmt.Sprintf("wav_fmt_%d", format)
	}
}

// pcmBytes packs the first n decoded values back into little-endian PCM.
func pcmBytes(data []int, n int, bitDepth uint16) []byte {
	bytesPer := int(bitDepth) / 8
	if bytesPer < 1 {
		bytesPer = 2
	}

	out := make([]byte, n*bytesPer)
	for i := 0; i < n; i++ {
		v := data[i]
		for b := 0; b < bytesPer; b++ {
			out[i*bytesPer+b] = byte(v >> (8 * b))
		}
	}
	return out
}
