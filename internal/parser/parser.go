// Package parser implements the container parsers behind the demux layer.
//
// A Parser understands one container format. It streams a byte source,
// reporting the discovered track list exactly once and then each sample as
// it is uncovered. Consumers attach through a Subscription so a finished
// pass can detach callbacks without racing late emissions.
package parser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

var (
	// ErrNoParser means no parser is registered for a content type.
	ErrNoParser = errors.New("parser: no parser registered for content type")

	// ErrUnknownFormat means Sniff could not recognize the container.
	ErrUnknownFormat = errors.New("parser: unrecognized container format")
)

// Callbacks receives parser events. Any field may be nil.
type Callbacks struct {
	// OnTracks delivers the discovered track list and the container
	// duration, exactly once per parse pass. A non-nil err means
	// initialization failed; tracks is nil and duration is invalid.
	OnTracks func(tracks []media.TrackDescriptor, duration time.Duration, err error)

	// OnSample delivers one container-level sample. Samples are only
	// emitted after OnTracks has fired with err == nil.
	OnSample func(sample media.Sample)
}

// Parser is the external collaborator that understands one container
// format. Implementations are single-pass: Subscribe, Parse, Reset.
type Parser interface {
	// ContentType returns the MIME type this parser handles.
	ContentType() string

	// Subscribe attaches callbacks for the next Parse call, replacing
	// any previous subscription.
	Subscribe(cb Callbacks) *Subscription

	// Parse streams src from the beginning, emitting events through the
	// current subscription. It returns when the source is exhausted,
	// the container is malformed, or ctx is done.
	Parse(ctx context.Context, src media.ByteSource) error

	// Reset drops the current subscription and any per-pass state.
	Reset()
}

// Subscription connects a parser to its consumer for one parse pass.
// Cancel detaches it; emissions after Cancel are silently dropped.
type Subscription struct {
	canceled atomic.Bool
	cb       Callbacks
}

// Cancel detaches the subscription. Idempotent, safe from any goroutine.
func (s *Subscription) Cancel() {
	s.canceled.Store(true)
}

// Canceled reports whether Cancel has been called.
func (s *Subscription) Canceled() bool {
	return s.canceled.Load()
}

func (s *Subscription) emitTracks(tracks []media.TrackDescriptor, duration time.Duration, err error) {
	if s.canceled.Load() || s.cb.OnTracks == nil {
		return
	}
	s.cb.OnTracks(tracks, duration, err)
}

func (s *Subscription) emitSample(sample media.Sample) {
	if s.canceled.Load() || s.cb.OnSample == nil {
		return
	}
	s.cb.OnSample(sample)
}

// Hub holds a parser's active subscription. Implementations embed a Hub to
// get Subscribe for free and emit events through it; Parse goroutines emit
// while the controlling goroutine swaps or drops subscriptions.
type Hub struct {
	mu  sync.RWMutex
	sub *Subscription
}

// Subscribe attaches callbacks, replacing any previous subscription.
func (h *Hub) Subscribe(cb Callbacks) *Subscription {
	s := &Subscription{cb: cb}

	h.mu.Lock()
	h.sub = s
	h.mu.Unlock()

	return s
}

// Detach cancels and drops the active subscription.
func (h *Hub) Detach() {
	h.mu.Lock()
	if h.sub != nil {
		h.sub.Cancel()
	}
	h.sub = nil
	h.mu.Unlock()
}

// EmitTracks delivers the settlement event to the active subscription.
func (h *Hub) EmitTracks(tracks []media.TrackDescriptor, duration time.Duration, err error) {
	h.mu.RLock()
	s := h.sub
	h.mu.RUnlock()

	if s != nil {
		s.emitTracks(tracks, duration, err)
	}
}

// EmitSample delivers one sample to the active subscription.
func (h *Hub) EmitSample(sample media.Sample) {
	h.mu.RLock()
	s := h.sub
	h.mu.RUnlock()

	if s != nil {
		s.emitSample(sample)
	}
}
