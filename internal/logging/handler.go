package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// MaxAttrLength is the maximum length of a record's flattened
	// attribute string before truncation.
	MaxAttrLength = 4096

	// MaxCapturedRecords is the number of recent warnings retained.
	MaxCapturedRecords = 100
)

// CapturedRecord is a warning or error retained for later display.
type CapturedRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string
}

// captureStore is the ring buffer shared by a CaptureHandler and the
// handlers it derives via WithAttrs and WithGroup.
type captureStore struct {
	mu      sync.Mutex
	records []CapturedRecord
	idx     int
	total   int64
}

// CaptureHandler is a slog.Handler that forwards records to a wrapped
// handler while retaining recent warnings and errors. The dashboard
// shows them in its warnings pane; the exit summary reports the count.
type CaptureHandler struct {
	next  slog.Handler
	store *captureStore
}

// NewCaptureHandler wraps next with warning capture.
func NewCaptureHandler(next slog.Handler) *CaptureHandler {
	return &CaptureHandler{
		next: next,
		store: &captureStore{
			records: make([]CapturedRecord, MaxCapturedRecords),
		},
	}
}

// Enabled reports whether the wrapped handler handles records at level.
func (h *CaptureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle retains warnings and errors, then forwards the record.
func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		h.store.add(r)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler whose derived records land in the same
// capture buffer.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CaptureHandler{next: h.next.WithAttrs(attrs), store: h.store}
}

// WithGroup returns a handler whose derived records land in the same
// capture buffer.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	return &CaptureHandler{next: h.next.WithGroup(name), store: h.store}
}

// Recent returns up to n of the most recently captured records, oldest
// first.
func (h *CaptureHandler) Recent(n int) []CapturedRecord {
	s := h.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.records) {
		n = len(s.records)
	}

	out := make([]CapturedRecord, 0, n)

	// Read from the ring in order
	for i := 0; i < n; i++ {
		idx := (s.idx - n + i + len(s.records)) % len(s.records)
		if s.records[idx].Message != "" {
			out = append(out, s.records[idx])
		}
	}

	return out
}

// Count returns the total number of records captured since creation.
func (h *CaptureHandler) Count() int64 {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.total
}

func (s *captureStore) add(r slog.Record) {
	rec := CapturedRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   flattenAttrs(r),
	}

	s.mu.Lock()
	s.records[s.idx] = rec
	s.idx = (s.idx + 1) % len(s.records)
	s.total++
	s.mu.Unlock()
}

// flattenAttrs renders a record's attributes as "k=v k=v", truncated
// when an attribute carries a very long value.
func flattenAttrs(r slog.Record) string {
	var parts []string
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.Key+"="+a.Value.String())
		return true
	})

	s := strings.Join(parts, " ")
	if len(s) > MaxAttrLength {
		s = s[:MaxAttrLength] + "...(truncated)"
	}
	return s
}
