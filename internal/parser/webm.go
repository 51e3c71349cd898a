package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/at-wat/ebml-go"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

func init() {
	Register(TypeWebM, func() Parser { return NewWebM() })
}

// Matroska TrackType codes.
const (
	webmTrackVideo    = 1
	webmTrackAudio    = 2
	webmTrackSubtitle = 17
)

// defaultTimecodeScale is one millisecond in nanoseconds, the Matroska
// default when Info omits TimecodeScale.
const defaultTimecodeScale = 1_000_000

// EBML document shape. Channel-typed fields stream elements out of
// ebml.Unmarshal while it runs, so samples flow before the document ends.
type webmDocument struct {
	Header  webmHeader  `ebml:"EBML"`
	Segment webmSegment `ebml:"Segment,size=unknown"`
}

type webmHeader struct {
	Version            uint64 `ebml:"EBMLVersion"`
	ReadVersion        uint64 `ebml:"EBMLReadVersion"`
	MaxIDLength        uint64 `ebml:"EBMLMaxIDLength"`
	MaxSizeLength      uint64 `ebml:"EBMLMaxSizeLength"`
	DocType            string `ebml:"EBMLDocType"`
	DocTypeVersion     uint64 `ebml:"EBMLDocTypeVersion"`
	DocTypeReadVersion uint64 `ebml:"EBMLDocTypeReadVersion"`
}

type webmSegment struct {
	Info    chan *webmInfo   `ebml:"Info"`
	Tracks  chan *webmTracks `ebml:"Tracks"`
	Cluster webmCluster      `ebml:"Cluster,size=unknown"`
}

type webmInfo struct {
	TimecodeScale uint64  `ebml:"TimecodeScale"`
	MuxingApp     string  `ebml:"MuxingApp,omitempty"`
	WritingApp    string  `ebml:"WritingApp,omitempty"`
	Duration      float64 `ebml:"Duration,omitempty"`
}

type webmTracks struct {
	TrackEntry []webmTrackEntry `ebml:"TrackEntry"`
}

type webmTrackEntry struct {
	TrackNumber     uint64     `ebml:"TrackNumber"`
	TrackUID        uint64     `ebml:"TrackUID"`
	TrackType       uint64     `ebml:"TrackType"`
	Name            string     `ebml:"Name,omitempty"`
	Language        string     `ebml:"Language,omitempty"`
	CodecID         string     `ebml:"CodecID"`
	DefaultDuration uint64     `ebml:"DefaultDuration,omitempty"`
	Video           *webmVideo `ebml:"Video,omitempty"`
	Audio           *webmAudio `ebml:"Audio,omitempty"`
}

type webmVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type webmAudio struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
	Channels          uint64  `ebml:"Channels"`
}

type webmCluster struct {
	Timecode    chan uint64     `ebml:"Timecode"`
	SimpleBlock chan ebml.Block `ebml:"SimpleBlock"`
}

// WebMParser parses WebM/Matroska containers.
type WebMParser struct {
	hub Hub
}

// NewWebM creates a WebM parser.
func NewWebM() *WebMParser {
	return &WebMParser{}
}

// ContentType returns "video/webm".
func (p *WebMParser) ContentType() string {
	return TypeWebM
}

// Subscribe attaches callbacks for the next Parse call.
func (p *WebMParser) Subscribe(cb Callbacks) *Subscription {
	return p.hub.Subscribe(cb)
}

// Reset detaches the current subscription.
func (p *WebMParser) Reset() {
	p.hub.Detach()
}

// webmPass accumulates per-pass decode state.
type webmPass struct {
	scale       uint64
	duration    time.Duration
	sawInfo     bool
	sawTracks   bool
	emitted     bool
	descriptors []media.TrackDescriptor
	defaultDur  map[uint64]time.Duration
	clusterTime uint64
}

// Parse streams src, emitting OnTracks once and then one OnSample per
// block frame. The document is unmarshaled in a helper goroutine; cluster
// elements rendezvous through unbuffered channels, which preserves
// document order in the consuming select loop.
func (p *WebMParser) Parse(ctx context.Context, src media.ByteSource) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("webm: seek: %w", err)
	}

	doc := webmDocument{
		Segment: webmSegment{
			Info:   make(chan *webmInfo),
			Tracks: make(chan *webmTracks),
			Cluster: webmCluster{
				Timecode:    make(chan uint64),
				SimpleBlock: make(chan ebml.Block),
			},
		},
	}

	parseDone := make(chan error, 1)
	go func() {
		parseDone <- ebml.Unmarshal(&ctxReader{ctx: ctx, r: src}, &doc, ebml.WithIgnoreUnknown(true))
	}()

	pass := &webmPass{
		scale:      defaultTimecodeScale,
		duration:   media.InvalidDuration,
		defaultDur: make(map[uint64]time.Duration),
	}

	infoCh := doc.Segment.Info
	tracksCh := doc.Segment.Tracks
	timecodeCh := doc.Segment.Cluster.Timecode
	blockCh := doc.Segment.Cluster.SimpleBlock

	for {
		select {
		case info, ok := <-infoCh:
			if !ok {
				infoCh = nil
				continue
			}
			p.handleInfo(pass, info)

		case tracks, ok := <-tracksCh:
			if !ok {
				tracksCh = nil
				continue
			}
			p.handleTracks(pass, tracks)

		case tc, ok := <-timecodeCh:
			if !ok {
				timecodeCh = nil
				continue
			}
			pass.clusterTime = tc

		case blk, ok := <-blockCh:
			if !ok {
				blockCh = nil
				continue
			}
			p.handleBlock(ctx, pass, blk)

		case err := <-parseDone:
			return p.finish(ctx, pass, err)
		}
	}
}

func (p *WebMParser) handleInfo(pass *webmPass, info *webmInfo) {
	pass.sawInfo = true
	if info.TimecodeScale > 0 {
		pass.scale = info.TimecodeScale
	}
	if info.Duration > 0 {
		pass.duration = time.Duration(info.Duration * float64(pass.scale))
	}
	p.maybeEmitTracks(pass)
}

func (p *WebMParser) handleTracks(pass *webmPass, tracks *webmTracks) {
	pass.sawTracks = true
	pass.descriptors = make([]media.TrackDescriptor, 0, len(tracks.TrackEntry))

	for _, e := range tracks.TrackEntry {
		d := media.TrackDescriptor{
			ID:       e.TrackNumber,
			Codec:    e.CodecID,
			Language: e.Language,
		}

		switch e.TrackType {
		case webmTrackVideo:
			d.Kind = media.KindVideo
			if e.Video != nil {
				d.Width = int(e.Video.PixelWidth)
				d.Height = int(e.Video.PixelHeight)
			}
		case webmTrackAudio:
			d.Kind = media.KindAudio
			if e.Audio != nil {
				d.SampleRate = int(e.Audio.SamplingFrequency)
				d.Channels = int(e.Audio.Channels)
			}
		case webmTrackSubtitle:
			d.Kind = media.KindText
		default:
			// Not a kind the demux layer models.
			continue
		}

		if e.DefaultDuration > 0 {
			pass.defaultDur[e.TrackNumber] = time.Duration(e.DefaultDuration)
		}
		pass.descriptors = append(pass.descriptors, d)
	}

	p.maybeEmitTracks(pass)
}

// maybeEmitTracks fires OnTracks once Info and Tracks have both been
// seen. Info normally precedes Tracks, so this usually fires on Tracks.
func (p *WebMParser) maybeEmitTracks(pass *webmPass) {
	if pass.emitted || !pass.sawTracks || !pass.sawInfo {
		return
	}
	pass.emitted = true
	p.hub.EmitTracks(pass.descriptors, pass.duration, nil)
}

func (p *WebMParser) handleBlock(ctx context.Context, pass *webmPass, blk ebml.Block) {
	if pass.sawTracks && !pass.emitted {
		// Clusters before Info: settle with what we have.
		pass.emitted = true
		p.hub.EmitTracks(pass.descriptors, pass.duration, nil)
	}
	if !pass.emitted || ctx.Err() != nil {
		return
	}

	base := time.Duration(int64(pass.clusterTime)+int64(blk.Timecode)) * time.Duration(pass.scale)
	dur := pass.defaultDur[blk.TrackNumber]

	for i, frame := range blk.Data {
		p.hub.EmitSample(media.Sample{
			TrackID:    blk.TrackNumber,
			Time:       base + time.Duration(i)*dur,
			Duration:   dur,
			IsKeyFrame: blk.Keyframe,
			Data:       frame,
		})
	}
}

func (p *WebMParser) finish(ctx context.Context, pass *webmPass, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if !pass.emitted {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("%w: no track information before end of segment", ErrUnknownFormat)
		}
		initErr := fmt.Errorf("webm: initialization: %w", cause)
		p.hub.EmitTracks(nil, media.InvalidDuration, initErr)
		return initErr
	}

	if err != nil {
		return fmt.Errorf("webm: parse: %w", err)
	}
	return nil
}

// ctxReader aborts reads once ctx is done, which unblocks ebml.Unmarshal
// between elements without cooperation from the library.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
