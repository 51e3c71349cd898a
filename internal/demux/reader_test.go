package demux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamweft/go-demux-bridge/internal/dispatch"
	"github.com/streamweft/go-demux-bridge/internal/media"
	"github.com/streamweft/go-demux-bridge/internal/parser"
)

const stubType = "test/stub"

// stubScript tells a stubParser what to emit during Parse.
type stubScript struct {
	tracks      []media.TrackDescriptor
	duration    time.Duration
	settleErr   error
	samples     []media.Sample
	parseErr    error
	settleDelay time.Duration

	// blockUntilCtx makes Parse hang without settling until ctx is done.
	blockUntilCtx bool
}

var (
	stubMu     sync.Mutex
	stubActive stubScript
)

func setStubScript(s stubScript) {
	stubMu.Lock()
	stubActive = s
	stubMu.Unlock()
}

func init() {
	parser.Register(stubType, func() parser.Parser {
		stubMu.Lock()
		script := stubActive
		stubMu.Unlock()
		return &stubParser{script: script}
	})
}

// stubParser emits a canned script instead of parsing real bytes.
type stubParser struct {
	hub    parser.Hub
	script stubScript
}

func (p *stubParser) ContentType() string { return stubType }

func (p *stubParser) Subscribe(cb parser.Callbacks) *parser.Subscription {
	return p.hub.Subscribe(cb)
}

func (p *stubParser) Reset() {
	p.hub.Detach()
}

func (p *stubParser) Parse(ctx context.Context, src media.ByteSource) error {
	if p.script.blockUntilCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.script.settleDelay > 0 {
		select {
		case <-time.After(p.script.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.script.settleErr != nil {
		p.hub.EmitTracks(nil, media.InvalidDuration, p.script.settleErr)
		return p.script.settleErr
	}

	p.hub.EmitTracks(p.script.tracks, p.script.duration, nil)
	for _, s := range p.script.samples {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.hub.EmitSample(s)
	}
	return p.script.parseErr
}

// newTestReader builds a Reader over a fresh pool, with the stub script
// installed and finished-pass summaries captured.
func newTestReader(t *testing.T, script stubScript) (*Reader, chan PassSummary) {
	t.Helper()
	setStubScript(script)

	pool := dispatch.NewPool("test-pool", 2, 0, newTestLogger())
	t.Cleanup(func() { pool.Close() })

	finished := make(chan PassSummary, 8)
	r, err := New(Config{
		ContentType: stubType,
		SinkDepth:   64,
		Pool:        pool,
		Logger:      newTestLogger(),
		Callbacks: Callbacks{
			OnPassFinished: func(s PassSummary) {
				select {
				case finished <- s:
				default:
				}
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r, finished
}

func testSource() media.ByteSource {
	return media.NewBufferSource("test.stub", []byte("stub bytes"))
}

func waitSummary(t *testing.T, finished chan PassSummary) PassSummary {
	t.Helper()
	select {
	case s := <-finished:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not finish in time")
		return PassSummary{}
	}
}

func TestReader_SingleVideoPass(t *testing.T) {
	script := stubScript{
		tracks: []media.TrackDescriptor{
			{ID: 1, Kind: media.KindVideo, Codec: "vp9", Width: 640, Height: 360},
		},
		duration: 10 * time.Second,
		samples: []media.Sample{
			{TrackID: 1, Time: 0, Duration: 33 * time.Millisecond, IsKeyFrame: true, Data: []byte("k0")},
			{TrackID: 1, Time: 33 * time.Millisecond, Duration: 33 * time.Millisecond, Data: []byte("f1")},
			{TrackID: 1, Time: 66 * time.Millisecond, Duration: 33 * time.Millisecond, Data: []byte("f2")},
		},
	}
	r, finished := newTestReader(t, script)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	d, err := r.QueryDuration(context.Background())
	if err != nil {
		t.Fatalf("QueryDuration: %v", err)
	}
	if d != 10*time.Second {
		t.Errorf("duration = %v, want 10s", d)
	}

	tracks, err := r.QueryTracks(context.Background())
	if err != nil {
		t.Fatalf("QueryTracks: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	tr := tracks[0]
	if tr.ID() != 1 || tr.Kind() != media.KindVideo || !tr.Enabled() {
		t.Errorf("track = id %d kind %v enabled %v, want 1/video/true",
			tr.ID(), tr.Kind(), tr.Enabled())
	}

	summary := waitSummary(t, finished)
	if summary.Status != StatusReady {
		t.Errorf("status = %v, want ready", summary.Status)
	}
	if summary.SamplesRouted != 3 || summary.SamplesDelivered != 3 {
		t.Errorf("samples routed/delivered = %d/%d, want 3/3",
			summary.SamplesRouted, summary.SamplesDelivered)
	}

	// Sink drains the three samples in order, then reports end of stream
	var got []string
	for s := range tr.Samples() {
		got = append(got, string(s.Data))
	}
	want := []string{"k0", "f1", "f2"}
	if len(got) != len(want) {
		t.Fatalf("drained %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReader_AllocationFailure(t *testing.T) {
	r, finished := newTestReader(t, stubScript{})

	// Force a content type nothing is registered for
	r.cfg.ContentType = "application/x-nonexistent"

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	// Settlement is immediate: a blocked query returns the error promptly
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.QueryDuration(ctx)
	if !errors.Is(err, ErrAllocation) {
		t.Errorf("QueryDuration err = %v, want allocation failure", err)
	}
	if !errors.Is(err, parser.ErrNoParser) {
		t.Errorf("QueryDuration err = %v, want wrapped no-parser cause", err)
	}

	if _, err := r.QueryTracks(ctx); !errors.Is(err, ErrAllocation) {
		t.Errorf("QueryTracks err = %v, want allocation failure", err)
	}

	summary := waitSummary(t, finished)
	if summary.Status != StatusFailed {
		t.Errorf("status = %v, want failed", summary.Status)
	}
	if len(summary.Tracks) != 0 {
		t.Errorf("failed pass reported %d tracks", len(summary.Tracks))
	}
}

func TestReader_ParsingFailureSettles(t *testing.T) {
	script := stubScript{settleErr: errors.New("corrupt header")}
	r, finished := newTestReader(t, script)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	_, err := r.QueryDuration(context.Background())
	if !errors.Is(err, ErrParsing) {
		t.Errorf("err = %v, want parsing failure", err)
	}

	summary := waitSummary(t, finished)
	if summary.Status != StatusFailed {
		t.Errorf("status = %v, want failed", summary.Status)
	}
}

func TestReader_UnknownTrackSampleDoesNotCrash(t *testing.T) {
	script := stubScript{
		tracks: []media.TrackDescriptor{
			{ID: 1, Kind: media.KindVideo, Codec: "vp9"},
		},
		duration: time.Second,
		samples: []media.Sample{
			{TrackID: 1, Data: []byte("known")},
			{TrackID: 99, Data: []byte("mystery")},
			{TrackID: 1, Data: []byte("known2")},
		},
	}
	r, finished := newTestReader(t, script)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	summary := waitSummary(t, finished)
	if summary.Status != StatusReady {
		t.Fatalf("status = %v, want ready", summary.Status)
	}
	if summary.UnknownDropped != 1 {
		t.Errorf("UnknownDropped = %d, want 1", summary.UnknownDropped)
	}
	if summary.SamplesDelivered != 2 {
		t.Errorf("SamplesDelivered = %d, want 2", summary.SamplesDelivered)
	}
}

func TestReader_EnablementAcrossKinds(t *testing.T) {
	script := stubScript{
		tracks: []media.TrackDescriptor{
			{ID: 1, Kind: media.KindVideo, Codec: "vp9"},
			{ID: 2, Kind: media.KindVideo, Codec: "vp8"},
			{ID: 3, Kind: media.KindAudio, Codec: "opus"},
			{ID: 4, Kind: media.KindText, Codec: "webvtt"},
		},
		duration: time.Second,
	}
	r, _ := newTestReader(t, script)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	tracks, err := r.QueryTracks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 4 {
		t.Fatalf("got %d tracks, want 4", len(tracks))
	}

	type row struct {
		id      uint64
		enabled bool
	}
	want := []row{{1, true}, {2, false}, {3, true}, {4, false}}
	for i, w := range want {
		if tracks[i].ID() != w.id || tracks[i].Enabled() != w.enabled {
			t.Errorf("track %d = id %d enabled %v, want id %d enabled %v",
				i, tracks[i].ID(), tracks[i].Enabled(), w.id, w.enabled)
		}
	}
}

func TestReader_ConcurrentQueriesSeeOneSettlement(t *testing.T) {
	script := stubScript{
		tracks:      videoAudioDescs(),
		duration:    10 * time.Second,
		settleDelay: 50 * time.Millisecond,
	}
	r, _ := newTestReader(t, script)

	var settled atomic.Int64
	r.cfg.Callbacks.OnSettled = func(string, Status, error) {
		settled.Add(1)
	}

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracks, err := r.QueryTracks(context.Background())
			if err != nil {
				t.Errorf("QueryTracks: %v", err)
				return
			}
			if len(tracks) != 2 {
				t.Errorf("got %d tracks, want 2", len(tracks))
			}
			d, err := r.QueryDuration(context.Background())
			if err != nil || d != 10*time.Second {
				t.Errorf("QueryDuration = %v/%v, want 10s", d, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queries did not settle")
	}

	if n := settled.Load(); n != 1 {
		t.Errorf("OnSettled fired %d times, want 1", n)
	}
}

func TestReader_RestartSupersedes(t *testing.T) {
	first := stubScript{
		tracks:   []media.TrackDescriptor{{ID: 1, Kind: media.KindVideo, Codec: "vp9"}},
		duration: 5 * time.Second,
	}
	r, finished := newTestReader(t, first)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AwaitSettled(context.Background()); err != nil {
		t.Fatal(err)
	}
	firstTracks, err := r.QueryTracks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	waitSummary(t, finished)

	second := stubScript{
		tracks:   videoAudioDescs(),
		duration: 8 * time.Second,
	}
	setStubScript(second)

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	d, err := r.QueryDuration(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d != 8*time.Second {
		t.Errorf("duration = %v, want 8s from the second pass", d)
	}

	tracks, err := r.QueryTracks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Errorf("got %d tracks, want 2 from the second pass", len(tracks))
	}

	// First pass's sink is closed by the reset
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-firstTracks[0].Samples():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("first pass sink never closed")
		}
	}
}

func TestReader_QueryTimeoutWhileParsing(t *testing.T) {
	r, _ := newTestReader(t, stubScript{blockUntilCtx: true})

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.QueryDuration(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("query did not honor its deadline")
	}
}

func TestReader_CloseUnblocksQueries(t *testing.T) {
	r, _ := newTestReader(t, stubScript{blockUntilCtx: true})

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := r.QueryTracks(context.Background())
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrParsing) {
			t.Errorf("err = %v, want parsing failure from close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query did not unblock on close")
	}

	if err := r.Start(testSource()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after close = %v, want ErrClosed", err)
	}
}

func TestReader_RequiresPool(t *testing.T) {
	if _, err := New(Config{Logger: newTestLogger()}); err == nil {
		t.Fatal("New without a pool should fail")
	}
}

func TestReader_Accessors(t *testing.T) {
	script := stubScript{
		tracks:   videoAudioDescs(),
		duration: time.Second,
	}
	r, finished := newTestReader(t, script)

	if r.Status() != StatusIdle {
		t.Errorf("status before start = %v, want idle", r.Status())
	}
	if r.TracksSnapshot() != nil {
		t.Error("TracksSnapshot before start should be nil")
	}

	if err := r.Start(testSource()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AwaitSettled(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitSummary(t, finished)

	if r.Status() != StatusReady {
		t.Errorf("status = %v, want ready", r.Status())
	}
	if r.Source() != "test.stub" {
		t.Errorf("source = %q, want test.stub", r.Source())
	}
	if r.ContentType() != stubType {
		t.Errorf("content type = %q, want %q", r.ContentType(), stubType)
	}
	if r.PassSeq() != 1 {
		t.Errorf("pass seq = %d, want 1", r.PassSeq())
	}
	if got := r.TracksSnapshot(); len(got) != 2 {
		t.Errorf("TracksSnapshot = %d tracks, want 2", len(got))
	}
}
