package demux

import "errors"

var (
	// ErrAllocation means a pass could not construct its parser or working
	// state. Passes settle immediately when allocation fails.
	ErrAllocation = errors.New("demux: allocation failure")

	// ErrParsing means the container could not be parsed far enough to
	// settle, or the byte source failed before settlement.
	ErrParsing = errors.New("demux: parsing failure")

	// ErrClosed is returned for operations on a closed Reader.
	ErrClosed = errors.New("demux: reader closed")
)
