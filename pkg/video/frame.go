// Package video provides webcam frame acquisition for the presence detectors.
//
// Frames are shared by reference: neither publishers nor consumers may
// modify Frame.JPEG once a frame has been published.
package video

import (
	"errors"
	"time"
)

// Errors returned by frame sources.
var (
	ErrNoFrame = errors.New("video: no frame available")
	ErrClosed  = errors.New("video: source closed")
)

// Frame is a single JPEG-encoded camera frame.
type Frame struct {
	// Seq increases monotonically per source, starting at 1.
	Seq uint64

	// Timestamp is the capture time.
	Timestamp time.Time

	Width  int
	Height int

	// JPEG holds the encoded image. Read-only after publish.
	JPEG []byte
}

// IsZero reports whether f carries no image.
func (f Frame) IsZero() bool {
	return len(f.JPEG) == 0
}

// Source supplies the most recent camera frame.
type Source interface {
	// Frame returns the latest frame, or ErrNoFrame before the first capture.
	Frame() (Frame, error)
}

// Stats describes frame flow through a source.
type Stats struct {
	Published uint64    `json:"published"`
	Consumed  uint64    `json:"consumed"`
	Dropped   uint64    `json:"dropped"`
	LastSeq   uint64    `json:"last_seq"`
	LastAt    time.Time `json:"last_at"`
}
