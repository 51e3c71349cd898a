package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/streamweft/go-demux-bridge/internal/media"
)

// Content types understood by the built-in parsers.
const (
	TypeWebM = "video/webm"
	TypeWAV  = "audio/wav"
)

var (
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// Sniff inspects the leading bytes of src and reports its container
// content type. The read position is rewound before returning, so a
// sniffed source can go straight into a parse pass.
func Sniff(src media.ByteSource) (string, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("sniff: seek: %w", err)
	}

	header := make([]byte, 12)
	n, err := io.ReadFull(src, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniff: read: %w", err)
	}
	header = header[:n]

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("sniff: rewind: %w", err)
	}

	switch {
	case bytes.HasPrefix(header, ebmlMagic):
		return TypeWebM, nil
	case len(header) >= 12 && bytes.HasPrefix(header, riffMagic) && bytes.Equal(header[8:12], waveMagic):
		return TypeWAV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, src.Name())
	}
}
