package parser

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/at-wat/ebml-go"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

// Write-shaped document: slice fields marshal as repeated elements, which
// is all a finite synthetic container needs.
type webmTestDocument struct {
	Header  webmHeader      `ebml:"EBML"`
	Segment webmTestSegment `ebml:"Segment,size=unknown"`
}

type webmTestSegment struct {
	Info    webmInfo          `ebml:"Info"`
	Tracks  webmTracks        `ebml:"Tracks"`
	Cluster []webmTestCluster `ebml:"Cluster"`
}

type webmTestCluster struct {
	Timecode    uint64       `ebml:"Timecode"`
	SimpleBlock []ebml.Block `ebml:"SimpleBlock"`
}

func testHeader() webmHeader {
	return webmHeader{
		Version:            1,
		ReadVersion:        1,
		MaxIDLength:        4,
		MaxSizeLength:      8,
		DocType:            "webm",
		DocTypeVersion:     2,
		DocTypeReadVersion: 2,
	}
}

// marshalTestWebM builds a two-track container: a VP9 video track (id 1)
// and an Opus audio track (id 2), 10 seconds long, with two clusters.
func marshalTestWebM(t *testing.T) []byte {
	t.Helper()

	doc := webmTestDocument{
		Header: testHeader(),
		Segment: webmTestSegment{
			Info: webmInfo{
				TimecodeScale: 1_000_000,
				MuxingApp:     "go-demux-bridge-test",
				WritingApp:    "go-demux-bridge-test",
				Duration:      10_000, // 10s at 1ms scale
			},
			Tracks: webmTracks{
				TrackEntry: []webmTrackEntry{
					{
						TrackNumber: 1,
						TrackUID:    0xA1,
						TrackType:   webmTrackVideo,
						CodecID:     "V_VP9",
						Video:       &webmVideo{PixelWidth: 640, PixelHeight: 360},
					},
					{
						TrackNumber: 2,
						TrackUID:    0xA2,
						TrackType:   webmTrackAudio,
						CodecID:     "A_OPUS",
						Language:    "eng",
						Audio:       &webmAudio{SamplingFrequency: 48_000, Channels: 2},
					},
				},
			},
			Cluster: []webmTestCluster{
				{
					Timecode: 0,
					SimpleBlock: []ebml.Block{
						{TrackNumber: 1, Timecode: 0, Keyframe: true, Data: [][]byte{{0x10, 0x11}}},
						{TrackNumber: 2, Timecode: 5, Data: [][]byte{{0x20}}},
					},
				},
				{
					Timecode: 1000,
					SimpleBlock: []ebml.Block{
						{TrackNumber: 1, Timecode: 0, Data: [][]byte{{0x12, 0x13, 0x14}}},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ebml.Marshal(&doc, &buf); err != nil {
		t.Fatalf("ebml.Marshal() error = %v", err)
	}
	return buf.Bytes()
}

// eventCollector gathers parser emissions under a lock so tests can
// assert on them after Parse returns.
type eventCollector struct {
	mu       sync.Mutex
	inits    int
	tracks   []media.TrackDescriptor
	duration time.Duration
	initErr  error
	samples  []media.Sample
}

func (c *eventCollector) callbacks() Callbacks {
	return Callbacks{
		OnTracks: func(tracks []media.TrackDescriptor, duration time.Duration, err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.inits++
			c.tracks = tracks
			c.duration = duration
			c.initErr = err
		},
		OnSample: func(sample media.Sample) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.samples = append(c.samples, sample)
		},
	}
}

func TestWebMParser_ParseSyntheticContainer(t *testing.T) {
	data := marshalTestWebM(t)
	src := media.NewBufferSource("synthetic.webm", data)

	p := NewWebM()
	var events eventCollector
	p.Subscribe(events.callbacks())

	if err := p.Parse(context.Background(), src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()

	if events.inits != 1 {
		t.Fatalf("OnTracks fired %d times, want 1", events.inits)
	}
	if events.initErr != nil {
		t.Fatalf("OnTracks err = %v, want nil", events.initErr)
	}
	if events.duration != 10*time.Second {
		t.Errorf("duration = %v, want 10s", events.duration)
	}

	if len(events.tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(events.tracks))
	}
	video, audio := events.tracks[0], events.tracks[1]
	if video.ID != 1 || video.Kind != media.KindVideo || video.Codec != "V_VP9" {
		t.Errorf("video track = %+v, want id=1 kind=video codec=V_VP9", video)
	}
	if video.Width != 640 || video.Height != 360 {
		t.Errorf("video dimensions = %dx%d, want 640x360", video.Width, video.Height)
	}
	if audio.ID != 2 || audio.Kind != media.KindAudio || audio.Codec != "A_OPUS" {
		t.Errorf("audio track = %+v, want id=2 kind=audio codec=A_OPUS", audio)
	}
	if audio.SampleRate != 48_000 || audio.Channels != 2 {
		t.Errorf("audio format = %d Hz / %d ch, want 48000 / 2", audio.SampleRate, audio.Channels)
	}

	if len(events.samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(events.samples))
	}

	first := events.samples[0]
	if first.TrackID != 1 || !first.IsKeyFrame || !bytes.Equal(first.Data, []byte{0x10, 0x11}) {
		t.Errorf("first sample = %+v, want track 1 keyframe data [10 11]", first)
	}
	if first.Time != 0 {
		t.Errorf("first sample time = %v, want 0", first.Time)
	}

	second := events.samples[1]
	if second.TrackID != 2 || second.Time != 5*time.Millisecond {
		t.Errorf("second sample = track %d @ %v, want track 2 @ 5ms", second.TrackID, second.Time)
	}

	third := events.samples[2]
	if third.TrackID != 1 || third.Time != time.Second {
		t.Errorf("third sample = track %d @ %v, want track 1 @ 1s", third.TrackID, third.Time)
	}
}

func TestWebMParser_MalformedInput(t *testing.T) {
	src := media.NewBufferSource("garbage.webm", []byte("this is not an ebml document at all"))

	p := NewWebM()
	var events eventCollector
	p.Subscribe(events.callbacks())

	if err := p.Parse(context.Background(), src); err == nil {
		t.Fatal("Parse() of garbage returned nil error")
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.inits != 1 {
		t.Fatalf("OnTracks fired %d times, want 1 (with error)", events.inits)
	}
	if events.initErr == nil {
		t.Fatal("OnTracks err = nil, want initialization error")
	}
	if events.duration != media.InvalidDuration {
		t.Errorf("duration = %v, want invalid sentinel", events.duration)
	}
	if len(events.samples) != 0 {
		t.Errorf("len(samples) = %d, want 0", len(events.samples))
	}
}

func TestWebMParser_NoDurationElement(t *testing.T) {
	// Live-streamed WebM omits the Info Duration element entirely.
	doc := webmTestDocument{
		Header: testHeader(),
		Segment: webmTestSegment{
			Info: webmInfo{
				TimecodeScale: 1_000_000,
				MuxingApp:     "go-demux-bridge-test",
				WritingApp:    "go-demux-bridge-test",
			},
			Tracks: webmTracks{
				TrackEntry: []webmTrackEntry{
					{
						TrackNumber: 1,
						TrackUID:    0xB1,
						TrackType:   webmTrackVideo,
						CodecID:     "V_VP8",
						Video:       &webmVideo{PixelWidth: 320, PixelHeight: 180},
					},
				},
			},
			Cluster: []webmTestCluster{
				{
					Timecode: 0,
					SimpleBlock: []ebml.Block{
						{TrackNumber: 1, Timecode: 0, Keyframe: true, Data: [][]byte{{0x30}}},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ebml.Marshal(&doc, &buf); err != nil {
		t.Fatalf("ebml.Marshal() error = %v", err)
	}
	src := media.NewBufferSource("live.webm", buf.Bytes())

	p := NewWebM()
	var events eventCollector
	p.Subscribe(events.callbacks())

	if err := p.Parse(context.Background(), src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.initErr != nil {
		t.Fatalf("OnTracks err = %v, want nil", events.initErr)
	}
	if events.duration != media.InvalidDuration {
		t.Errorf("duration = %v, want invalid sentinel for duration-less container", events.duration)
	}
	if len(events.tracks) != 1 {
		t.Errorf("len(tracks) = %d, want 1", len(events.tracks))
	}
	if len(events.samples) != 1 {
		t.Errorf("len(samples) = %d, want 1", len(events.samples))
	}
}

func TestWebMParser_CanceledSubscriptionDropsEvents(t *testing.T) {
	data := marshalTestWebM(t)
	src := media.NewBufferSource("synthetic.webm", data)

	p := NewWebM()
	var events eventCollector
	sub := p.Subscribe(events.callbacks())
	sub.Cancel()

	if err := p.Parse(context.Background(), src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.inits != 0 || len(events.samples) != 0 {
		t.Errorf("canceled subscription received %d inits / %d samples, want 0 / 0",
			events.inits, len(events.samples))
	}
}

func TestWebMParser_SubscribeReplacesPrevious(t *testing.T) {
	data := marshalTestWebM(t)
	src := media.NewBufferSource("synthetic.webm", data)

	p := NewWebM()
	var stale eventCollector
	p.Subscribe(stale.callbacks())

	var live eventCollector
	p.Subscribe(live.callbacks())

	if err := p.Parse(context.Background(), src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	stale.mu.Lock()
	staleInits := stale.inits
	stale.mu.Unlock()
	if staleInits != 0 {
		t.Errorf("replaced subscription received %d inits, want 0", staleInits)
	}

	live.mu.Lock()
	liveInits := live.inits
	live.mu.Unlock()
	if liveInits != 1 {
		t.Errorf("live subscription received %d inits, want 1", liveInits)
	}
}

func TestWebMParser_ContextCancellation(t *testing.T) {
	data := marshalTestWebM(t)
	src := media.NewBufferSource("synthetic.webm", data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewWebM()
	p.Subscribe(Callbacks{})

	err := p.Parse(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Parse() with canceled ctx error = %v, want context.Canceled", err)
	}
}

func TestWebMParser_ContentType(t *testing.T) {
	if got := NewWebM().ContentType(); got != TypeWebM {
		t.Errorf("ContentType() = %q, want %q", got, TypeWebM)
	}
}

func TestWebMParser_ResetDetachesSubscription(t *testing.T) {
	data := marshalTestWebM(t)
	src := media.NewBufferSource("synthetic.webm", data)

	p := NewWebM()
	var events eventCollector
	sub := p.Subscribe(events.callbacks())
	p.Reset()

	if !sub.Canceled() {
		t.Error("Reset() left the subscription uncanceled")
	}

	if err := p.Parse(context.Background(), src); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.inits != 0 {
		t.Errorf("detached subscription received %d inits, want 0", events.inits)
	}
}
