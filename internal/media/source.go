package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ByteSource is a seekable byte stream feeding a parse pass. Parsers seek
// to the start themselves, so a source may be handed to multiple passes.
type ByteSource interface {
	io.ReadSeeker

	// Name identifies the source in logs and summaries.
	Name() string

	// Size returns the total size in bytes, or 0 when unknown.
	Size() int64
}

// FileSource is a ByteSource backed by a file on disk.
type FileSource struct {
	f    *os.File
	name string
	size int64
}

// OpenFile opens path as a ByteSource.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat source: %w", err)
	}

	return &FileSource{
		f:    f,
		name: filepath.Base(path),
		size: info.Size(),
	}, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *FileSource) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

// Name returns the base name of the underlying file.
func (s *FileSource) Name() string {
	return s.name
}

// Size returns the file size recorded at open time.
func (s *FileSource) Size() int64 {
	return s.size
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// BufferSource is an in-memory ByteSource, used for synthetic containers
// in tests and for sources already loaded into memory.
type BufferSource struct {
	r    *bytes.Reader
	name string
	size int64
}

// NewBufferSource wraps data as a ByteSource.
func NewBufferSource(name string, data []byte) *BufferSource {
	return &BufferSource{
		r:    bytes.NewReader(data),
		name: name,
		size: int64(len(data)),
	}
}

func (s *BufferSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *BufferSource) Seek(offset int64, whence int) (int64, error) {
	return s.r.Seek(offset, whence)
}

// Name returns the name given at construction.
func (s *BufferSource) Name() string {
	return s.name
}

// Size returns the buffer length.
func (s *BufferSource) Size() int64 {
	return s.size
}
