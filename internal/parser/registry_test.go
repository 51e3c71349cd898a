package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

// stubParser satisfies Parser for registry tests.
type stubParser struct {
	hub Hub
	ct  string
}

func (s *stubParser) ContentType() string                  { return s.ct }
func (s *stubParser) Subscribe(cb Callbacks) *Subscription { return s.hub.Subscribe(cb) }
func (s *stubParser) Reset()                               { s.hub.Detach() }
func (s *stubParser) Parse(context.Context, media.ByteSource) error {
	return nil
}

func TestNew_BuiltinFormats(t *testing.T) {
	tests := []struct {
		contentType string
	}{
		{TypeWebM},
		{TypeWAV},
		{"audio/x-wav"},
		{"VIDEO/WEBM"}, // lookup is case-insensitive
		{"  audio/wav  "},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			p, err := New(tt.contentType)
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.contentType, err)
			}
			if p == nil {
				t.Fatalf("New(%q) returned nil parser", tt.contentType)
			}
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("application/x-nonsense")
	if err == nil {
		t.Fatal("New() of unknown type returned nil error")
	}
	if !errors.Is(err, ErrNoParser) {
		t.Errorf("error = %v, want ErrNoParser", err)
	}
}

func TestNew_ReturnsFreshInstances(t *testing.T) {
	a, err := New(TypeWebM)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New(TypeWebM)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a == b {
		t.Error("New() returned the same instance twice; readers must not share parsers")
	}
}

func TestRegister_Replaces(t *testing.T) {
	const ct = "video/x-registry-test"

	Register(ct, func() Parser { return &stubParser{ct: "first"} })
	Register(ct, func() Parser { return &stubParser{ct: "second"} })

	p, err := New(ct)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := p.ContentType(); got != "second" {
		t.Errorf("ContentType() = %q, want the replacing registration", got)
	}
}

func TestRegistered_IncludesBuiltins(t *testing.T) {
	types := Registered()

	seen := make(map[string]bool, len(types))
	for _, ct := range types {
		seen[ct] = true
	}
	if !seen[TypeWebM] || !seen[TypeWAV] {
		t.Errorf("Registered() = %v, missing built-in formats", types)
	}

	for i := 1; i < len(types); i++ {
		if types[i-1] > types[i] {
			t.Errorf("Registered() not sorted: %v", types)
			break
		}
	}
}
