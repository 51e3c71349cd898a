package media

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTrackKind_String(t *testing.T) {
	tests := []struct {
		kind TrackKind
		want string
	}{
		{KindVideo, "video"},
		{KindAudio, "audio"},
		{KindText, "text"},
		{TrackKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSample_Size(t *testing.T) {
	s := Sample{
		TrackID: 1,
		Time:    time.Second,
		Data:    []byte{0x01, 0x02, 0x03},
	}

	if got := s.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}

	var empty Sample
	if got := empty.Size(); got != 0 {
		t.Errorf("Size() on empty sample = %d, want 0", got)
	}
}

func TestInvalidDuration(t *testing.T) {
	if InvalidDuration >= 0 {
		t.Errorf("InvalidDuration = %v, want negative sentinel", InvalidDuration)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.webm")
	content := []byte("0123456789")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	src, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer src.Close()

	if got := src.Name(); got != "sample.webm" {
		t.Errorf("Name() = %q, want %q", got, "sample.webm")
	}
	if got := src.Size(); got != int64(len(content)) {
		t.Errorf("Size() = %d, want %d", got, len(content))
	}

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("read %q, want %q", data, content)
	}

	// Seek back and reread part of the content.
	if _, err := src.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	tail, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll() after seek error = %v", err)
	}
	if string(tail) != "56789" {
		t.Errorf("read after seek = %q, want %q", tail, "56789")
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.webm")); err == nil {
		t.Error("OpenFile() on missing file returned nil error")
	}
}

func TestBufferSource(t *testing.T) {
	src := NewBufferSource("synthetic", []byte("abcdef"))

	if got := src.Name(); got != "synthetic" {
		t.Errorf("Name() = %q, want %q", got, "synthetic")
	}
	if got := src.Size(); got != 6 {
		t.Errorf("Size() = %d, want 6", got)
	}

	first, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(first) != "abcdef" {
		t.Errorf("read %q, want %q", first, "abcdef")
	}

	// Sources must be reusable across passes.
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	second, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll() after rewind error = %v", err)
	}
	if string(second) != "abcdef" {
		t.Errorf("reread %q, want %q", second, "abcdef")
	}
}
