// Package source supplies frames to the detection pipeline.  Sources keep
// only the latest frame, each frame carries a sequence number so consumers
// can tell a new frame from one they have already processed.
package source

import (
	"image"
	"time"
)

// Frame is a captured image and its position in the stream
type Frame struct {
	// Image must not be modified once published
	Image image.Image
	// Seq is assigned on publish, starting at 1 and increasing monotonically
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
}

// Width returns the frame width in pixels
func (f Frame) Width() int {
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels
func (f Frame) Height() int {
	return f.Image.Bounds().Dy()
}

// Source supplies the most recent frame on demand
type Source interface {
	// Latest returns the most recent frame, ok is false until the first
	// frame arrives
	Latest() (frame Frame, ok bool)
	// Close stops the source
	Close() error
}
